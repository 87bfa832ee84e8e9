// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package xstools

import (
	"bytes"
	"testing"
)

// scriptPort records every frame written to it and serves queued replies,
// so tests can check the exact bytes a JtagPort puts on the wire.
type scriptPort struct {
	writes   [][]byte
	replies  []byte
	writeErr error
	readErr  error
}

func (p *scriptPort) Open(numTrials uint) error { return nil }
func (p *scriptPort) Close() error              { return nil }

func (p *scriptPort) Write(data []byte, timeoutMs uint) error {
	p.writes = append(p.writes, append([]byte(nil), data...))
	if p.writeErr != nil {
		return p.writeErr
	}
	return nil
}

func (p *scriptPort) Read(numBytes uint, timeoutMs uint) ([]byte, error) {
	if p.readErr != nil {
		return nil, p.readErr
	}
	if uint(len(p.replies)) < numBytes {
		return nil, MinorError(CodeShortRead, "script ran out of reply bytes")
	}
	reply := p.replies[:numBytes]
	p.replies = p.replies[numBytes:]
	return reply, nil
}

func (p *scriptPort) lastWrite(t *testing.T) []byte {
	t.Helper()
	if len(p.writes) == 0 {
		t.Fatal("nothing was written to the port")
	}
	return p.writes[len(p.writes)-1]
}

func TestResetTapFraming(t *testing.T) {
	port := &scriptPort{}
	jtag := NewJtagPort(port)

	if err := jtag.ResetTap(); err != nil {
		t.Fatal(err)
	}

	// Five TMS=1 bits pack into 0x1f.
	want := []byte{jtagCmd, 5, 0, 0, 0, putTmsMask, 0x1f}
	if got := port.lastWrite(t); !bytes.Equal(got, want) {
		t.Fatalf("reset frame = %x, want %x", got, want)
	}

	if jtag.TapState() != TestLogicReset {
		t.Fatalf("TAP state after reset = %v, want %v", jtag.TapState(), TestLogicReset)
	}
	if !jtag.buffersEmpty() {
		t.Fatal("bit buffers not empty after reset")
	}
}

func TestGoThruTapStatesFraming(t *testing.T) {
	port := &scriptPort{}
	jtag := NewJtagPort(port)

	if err := jtag.ResetTap(); err != nil {
		t.Fatal(err)
	}
	if err := jtag.GoThruTapStates(RunTestIdle, SelectDRScan, SelectIRScan, CaptureIR, ShiftIR); err != nil {
		t.Fatal(err)
	}

	// TMS pattern 0,1,1,0,0 packs into 0x06.
	want := []byte{jtagCmd, 5, 0, 0, 0, putTmsMask, 0x06}
	if got := port.lastWrite(t); !bytes.Equal(got, want) {
		t.Fatalf("state walk frame = %x, want %x", got, want)
	}

	if jtag.TapState() != ShiftIR {
		t.Fatalf("TAP state = %v, want %v", jtag.TapState(), ShiftIR)
	}
	if !jtag.buffersEmpty() {
		t.Fatal("TMS buffer not empty after state walk")
	}
}

func TestGoThruTapStatesRejectsUnreachableHop(t *testing.T) {
	port := &scriptPort{}
	jtag := NewJtagPort(port)

	if err := jtag.ResetTap(); err != nil {
		t.Fatal(err)
	}

	err := jtag.GoThruTapStates(ShiftDR)
	if SeverityOf(err) != SeverityFatal {
		t.Fatalf("walking straight into Shift-DR returned %v, want a fatal error", err)
	}
}

func TestShiftTdiExitShiftSplitsTrailingBit(t *testing.T) {
	port := &scriptPort{}
	jtag := NewJtagPort(port)

	if err := jtag.ResetTap(); err != nil {
		t.Fatal(err)
	}
	if err := jtag.GoThruTapStates(RunTestIdle, SelectDRScan, SelectIRScan, CaptureIR, ShiftIR); err != nil {
		t.Fatal(err)
	}

	port.writes = nil
	if err := jtag.ShiftTdi(BitStreamFromString("000010"), true, true); err != nil {
		t.Fatal(err)
	}

	if len(port.writes) != 2 {
		t.Fatalf("got %d frames, want 2 (bulk TDI then trailing TMS+TDI pair)", len(port.writes))
	}

	// First five TDI bits of "000010" are 0,1,0,0,0 -> 0x02, no TMS.
	wantBulk := []byte{jtagCmd, 5, 0, 0, 0, putTdiMask, 0x02}
	if !bytes.Equal(port.writes[0], wantBulk) {
		t.Fatalf("bulk frame = %x, want %x", port.writes[0], wantBulk)
	}

	// The final bit goes out interleaved: TMS byte 0x01 first, TDI byte
	// 0x00 second.
	wantLast := []byte{jtagCmd, 1, 0, 0, 0, putTmsMask | putTdiMask, 0x01, 0x00}
	if !bytes.Equal(port.writes[1], wantLast) {
		t.Fatalf("trailing frame = %x, want %x", port.writes[1], wantLast)
	}

	if jtag.TapState() != Exit1IR {
		t.Fatalf("TAP state = %v, want %v", jtag.TapState(), Exit1IR)
	}
	if !jtag.buffersEmpty() {
		t.Fatal("bit buffers not empty after exit shift")
	}
}

func TestFlushInterleavesEqualLengthBuffers(t *testing.T) {
	port := &scriptPort{}
	jtag := NewJtagPort(port)

	tms := BitStreamFromString("1100101011001010")
	tdi := BitStreamFromString("0011010100110101")
	jtag.tmsBits.PushBack(tms)
	jtag.tdiBits.PushBack(tdi)

	if err := jtag.flush(); err != nil {
		t.Fatal(err)
	}

	frame := port.lastWrite(t)
	payload := frame[jtagCmdHeaderLen:]
	if len(payload) != 4 {
		t.Fatalf("payload is %d bytes, want 4", len(payload))
	}
	if frame[5] != putTmsMask|putTdiMask {
		t.Fatalf("flags = %#x, want %#x", frame[5], putTmsMask|putTdiMask)
	}

	// Even payload bytes depack to the TMS bits, odd bytes to TDI.
	gotTms := NewBitStream()
	gotTdi := NewBitStream()
	for i, word := range payload {
		if i%2 == 0 {
			gotTms.PushBackUint(uint64(word), 8)
		} else {
			gotTdi.PushBackUint(uint64(word), 8)
		}
	}
	if gotTms.String() != tms.String() {
		t.Fatalf("depacked TMS = %s, want %s", gotTms, tms)
	}
	if gotTdi.String() != tdi.String() {
		t.Fatalf("depacked TDI = %s, want %s", gotTdi, tdi)
	}
}

func TestFlushRejectsMismatchedBuffers(t *testing.T) {
	port := &scriptPort{}
	jtag := NewJtagPort(port)

	jtag.tmsBits.PushBack(BitStreamFromString("101"))
	jtag.tdiBits.PushBack(BitStreamFromString("1010101"))

	err := jtag.flush()
	if SeverityOf(err) != SeverityFatal {
		t.Fatalf("mismatched flush returned %v, want a fatal error", err)
	}
	if !jtag.buffersEmpty() {
		t.Fatal("bit buffers not cleared after failed flush")
	}
}

func TestShiftTdoStaysInShiftState(t *testing.T) {
	port := &scriptPort{}
	jtag := NewJtagPort(port)

	if err := jtag.ResetTap(); err != nil {
		t.Fatal(err)
	}
	if err := jtag.GoThruTapStates(RunTestIdle, SelectDRScan, CaptureDR, ShiftDR); err != nil {
		t.Fatal(err)
	}

	port.writes = nil
	port.replies = []byte{0x34, 0x12, 0x02} // 18 bits: 0x1234 then 0b10

	tdo, err := jtag.ShiftTdo(18, false)
	if err != nil {
		t.Fatal(err)
	}

	want := []byte{jtagCmd, 18, 0, 0, 0, getTdoMask}
	if got := port.lastWrite(t); !bytes.Equal(got, want) {
		t.Fatalf("TDO command = %x, want %x", got, want)
	}

	if tdo.Size() != 18 {
		t.Fatalf("TDO stream is %d bits, want 18", tdo.Size())
	}
	if got := tdo.Front(16); got != 0x1234 {
		t.Fatalf("first TDO word = %#x, want 0x1234", got)
	}
	if jtag.TapState() != ShiftDR {
		t.Fatalf("TAP state = %v, want %v", jtag.TapState(), ShiftDR)
	}
}

func TestShiftTdoExitShiftIssuesFinalStaticTmsRead(t *testing.T) {
	port := &scriptPort{}
	jtag := NewJtagPort(port)

	if err := jtag.ResetTap(); err != nil {
		t.Fatal(err)
	}
	if err := jtag.GoThruTapStates(RunTestIdle, SelectDRScan, CaptureDR, ShiftDR); err != nil {
		t.Fatal(err)
	}

	port.writes = nil
	port.replies = []byte{0x05, 0x01} // 3 bits 101, then the final 1

	tdo, err := jtag.ShiftTdo(4, true)
	if err != nil {
		t.Fatal(err)
	}

	if len(port.writes) != 2 {
		t.Fatalf("got %d TDO commands, want 2", len(port.writes))
	}

	wantFirst := []byte{jtagCmd, 3, 0, 0, 0, getTdoMask}
	if !bytes.Equal(port.writes[0], wantFirst) {
		t.Fatalf("first TDO command = %x, want %x", port.writes[0], wantFirst)
	}
	wantLast := []byte{jtagCmd, 1, 0, 0, 0, getTdoMask | tmsValMask}
	if !bytes.Equal(port.writes[1], wantLast) {
		t.Fatalf("final TDO command = %x, want %x", port.writes[1], wantLast)
	}

	if got, want := tdo.String(), "1101"; got != want {
		t.Fatalf("TDO stream = %s, want %s", got, want)
	}
	if jtag.TapState() != Exit1DR {
		t.Fatalf("TAP state = %v, want %v", jtag.TapState(), Exit1DR)
	}
}

func TestShiftTdoShortReadLeavesBuffersEmpty(t *testing.T) {
	port := &scriptPort{}
	jtag := NewJtagPort(port)

	if err := jtag.ResetTap(); err != nil {
		t.Fatal(err)
	}
	if err := jtag.GoThruTapStates(RunTestIdle, SelectDRScan, CaptureDR, ShiftDR); err != nil {
		t.Fatal(err)
	}

	port.replies = []byte{0xff} // one byte where two are needed

	_, err := jtag.ShiftTdo(16, false)
	if err == nil {
		t.Fatal("short read did not surface an error")
	}
	if sev := SeverityOf(err); sev != SeverityMinor && sev != SeverityMajor {
		t.Fatalf("short read severity = %v, want minor or major", sev)
	}
	if !jtag.buffersEmpty() {
		t.Fatal("bit buffers not empty after failed TDO read")
	}
}

func TestShiftTdiOutsideShiftStateIsFatal(t *testing.T) {
	port := &scriptPort{}
	jtag := NewJtagPort(port)

	if err := jtag.ResetTap(); err != nil {
		t.Fatal(err)
	}

	err := jtag.ShiftTdi(BitStreamFromUint(0xff, 8), false, true)
	if SeverityOf(err) != SeverityFatal {
		t.Fatalf("TDI shift in Test-Logic-Reset returned %v, want a fatal error", err)
	}
}

func TestRunTestEchoCheck(t *testing.T) {
	port := &scriptPort{}
	jtag := NewJtagPort(port)

	port.replies = []byte{runtestCmd, 0x00, 0x01, 0x00, 0x00}
	if err := jtag.RunTest(256); err != nil {
		t.Fatal(err)
	}

	want := []byte{runtestCmd, 0x00, 0x01, 0x00, 0x00}
	if got := port.lastWrite(t); !bytes.Equal(got, want) {
		t.Fatalf("run-test command = %x, want %x", got, want)
	}

	// A garbled echo is a protocol violation.
	port.replies = []byte{0x00, 0x00, 0x00, 0x00, 0x00}
	err := jtag.RunTest(1)
	if SeverityOf(err) != SeverityMajor {
		t.Fatalf("bad echo returned %v, want a major error", err)
	}
}
