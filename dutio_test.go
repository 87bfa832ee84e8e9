// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package xstools

import (
	"strings"
	"testing"
)

// simDutClient wires a DUT client to a simulated bridge with one DUT
// module and runs the HostIO bring-up.
func simDutClient(t *testing.T, moduleID uint8, inputWidth uint, outputWidth uint) (*DutIo, *SimDut) {
	t.Helper()

	sim := NewHostIoSimulator()
	dut := sim.AddDut(moduleID, inputWidth, outputWidth)
	if err := sim.Open(1); err != nil {
		t.Fatal(err)
	}

	hostIo := NewHostIo(NewJtagPort(sim))
	if err := hostIo.Reset(); err != nil {
		t.Fatal(err)
	}

	return NewDutIo(hostIo), dut
}

func TestDutIoGetSize(t *testing.T) {
	dutIo, _ := simDutClient(t, 4, 4, 2)

	numInputs, numOutputs, err := dutIo.GetSize(4)
	if err != nil {
		t.Fatal(err)
	}
	if numInputs != 4 || numOutputs != 2 {
		t.Fatalf("GetSize = (%d, %d), want (4, 2)", numInputs, numOutputs)
	}
}

func TestDutIoWriteThenRead(t *testing.T) {
	dutIo, dut := simDutClient(t, 4, 4, 2)

	// Respond with the two low input bits.
	dut.Respond = func(inputs *BitStream) *BitStream {
		return inputs.GetBits(0, 2)
	}

	if _, _, err := dutIo.GetSize(4); err != nil {
		t.Fatal(err)
	}

	if err := dutIo.Write(BitStreamFromString("1011")); err != nil {
		t.Fatal(err)
	}
	if got := dut.Inputs().String(); got != "1011" {
		t.Fatalf("DUT inputs = %q, want %q", got, "1011")
	}

	result, err := dutIo.Read()
	if err != nil {
		t.Fatal(err)
	}
	if result.Size() != 2 {
		t.Fatalf("DUT read returned %d bits, want exactly 2", result.Size())
	}
	if got := result.String(); got != "11" {
		t.Fatalf("DUT outputs = %q, want %q", got, "11")
	}

	// Writes are independent; each read returns exactly the output
	// width again.
	if err := dutIo.Write(BitStreamFromString("0100")); err != nil {
		t.Fatal(err)
	}
	result, err = dutIo.Read()
	if err != nil {
		t.Fatal(err)
	}
	if got := result.String(); got != "00" {
		t.Fatalf("DUT outputs after second write = %q, want %q", got, "00")
	}
}

func TestDutIoExec(t *testing.T) {
	dutIo, dut := simDutClient(t, 1, 8, 8)

	// Byte-wide incrementer.
	dut.Respond = func(inputs *BitStream) *BitStream {
		return BitStreamFromUint(inputs.Uint()+1, 8)
	}

	if _, _, err := dutIo.GetSize(1); err != nil {
		t.Fatal(err)
	}

	result, err := dutIo.Exec(BitStreamFromUint(0x41, 8))
	if err != nil {
		t.Fatal(err)
	}
	if got := result.Uint(); got != 0x42 {
		t.Fatalf("Exec(0x41) = %#x, want 0x42", got)
	}
}

func TestDutIoFieldPartitions(t *testing.T) {
	dutIo, dut := simDutClient(t, 5, 16, 8)

	// An 8-bit subtractor with two 8-bit inputs: minuend in the low
	// field, subtrahend in the high field.
	dut.Respond = func(inputs *BitStream) *BitStream {
		minuend := inputs.Front(8)
		subtrahend := inputs.Back(8)
		return BitStreamFromUint(minuend-subtrahend, 8)
	}

	if _, _, err := dutIo.GetSize(5); err != nil {
		t.Fatal(err)
	}

	if err := dutIo.SetFieldWidths([]uint{8, 8}, []uint{8}); err != nil {
		t.Fatal(err)
	}

	if err := dutIo.WriteFields(BitStreamFromUint(100, 8), BitStreamFromUint(58, 8)); err != nil {
		t.Fatal(err)
	}

	fields, err := dutIo.ReadFields()
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 1 {
		t.Fatalf("got %d output fields, want 1", len(fields))
	}
	if got := fields[0].Uint(); got != 42 {
		t.Fatalf("subtractor output = %d, want 42", got)
	}
}

func TestDutIoFieldWidthValidation(t *testing.T) {
	dutIo, _ := simDutClient(t, 5, 16, 8)

	if _, _, err := dutIo.GetSize(5); err != nil {
		t.Fatal(err)
	}

	if err := dutIo.SetFieldWidths([]uint{8, 4}, nil); SeverityOf(err) != SeverityFatal {
		t.Fatalf("mismatched field widths returned %v, want a fatal error", err)
	}

	if err := dutIo.Write(BitStreamFromString("101")); SeverityOf(err) != SeverityFatal {
		t.Fatalf("wrong-width vector returned %v, want a fatal error", err)
	}
}

func TestDutIoReadBeforeGetSizeIsFatal(t *testing.T) {
	dutIo, _ := simDutClient(t, 4, 4, 2)

	_, err := dutIo.Read()
	if SeverityOf(err) != SeverityFatal {
		t.Fatalf("read before GetSize returned %v, want a fatal error", err)
	}
	if !strings.Contains(err.Error(), "querying its parameters") {
		t.Fatalf("error message %q does not mention querying its parameters", err.Error())
	}
}
