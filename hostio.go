// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// HostIo multiplexes several logical FPGA modules behind a single JTAG
// USER data-register scan. Every command frames its payload together with
// a 32-bit bit count and an 8-bit module id; replies are harvested from
// TDO on a later sweep. The TAP parks in Shift-DR between commands.

package xstools

import "fmt"

// HostIo is the common transport shared by the memory and DUT clients.
type HostIo struct {
	jtag      *JtagPort
	userInstr *BitStream
	lastError error
}

// NewHostIo attaches to a JTAG port using the default USER1 instruction.
func NewHostIo(jtag *JtagPort) *HostIo {
	return &HostIo{
		jtag:      jtag,
		userInstr: BitStreamFromString(DefaultUserInstr),
	}
}

// UserInstr returns the instruction that selects the HostIO data register.
func (h *HostIo) UserInstr() *BitStream {
	return h.userInstr
}

// SetUserInstr overrides the USER instruction, e.g. to address USER2. The
// length is whatever the target device's instruction register needs.
func (h *HostIo) SetUserInstr(instr string) {
	h.userInstr = BitStreamFromString(instr)
}

// LastError reports the outcome of the most recent command.
func (h *HostIo) LastError() error {
	return h.lastError
}

// Reset restarts the HostIO connection: the TAP is reset, the USER
// instruction is loaded, and the TAP is parked in Shift-DR where it stays
// between commands.
func (h *HostIo) Reset() error {
	if h.jtag == nil {
		h.lastError = FatalError("can't initialize HostIo without a JTAG port")
		return h.lastError
	}

	err := h.jtag.ResetTap()
	err = OrErrors(err, h.jtag.GoThruTapStates(RunTestIdle, SelectDRScan, SelectIRScan, CaptureIR, ShiftIR))
	if err == nil {
		err = h.jtag.ShiftTdi(h.userInstr, true, true)
	}
	err = OrErrors(err, h.jtag.GoThruTapStates(UpdateIR, SelectDRScan, CaptureDR, ShiftDR))

	h.lastError = err
	return err
}

// Cmd sends one HostIO command to the module with the given id and
// harvests numResultBits of reply. The wire frame is the concatenation
// payload, bit count, id — the device sees the payload first and decodes
// the trailing id.
func (h *HostIo) Cmd(id *BitStream, payload *BitStream, numResultBits uint) (*BitStream, error) {
	if h.jtag == nil {
		h.lastError = FatalError("HostIo command without a JTAG port")
		return nil, h.lastError
	}

	numBits := BitStreamFromUint(uint64(payload.Size())+uint64(numResultBits), lenFieldLen)
	frame := payload.Cat(numBits).Cat(id)

	logger.Debugf("HostIo command to module %d: %d payload bits, %d result bits",
		id.Uint(), payload.Size(), numResultBits)

	err := h.jtag.ShiftTdi(frame, false, true)

	results := NewBitStream()
	if err == nil && numResultBits > 0 {
		results, err = h.jtag.ShiftTdo(numResultBits, false)
	}

	h.lastError = err
	return results, err
}

// Close releases the underlying physical port.
func (h *HostIo) Close() error {
	if h.jtag == nil || h.jtag.Port() == nil {
		return nil
	}
	return h.jtag.Port().Close()
}

// moduleIDField renders a module id as the 8-bit trailing field of a
// HostIO frame.
func moduleIDField(moduleID uint8) *BitStream {
	return BitStreamFromUint(uint64(moduleID), idFieldLen)
}

// checkResultLen verifies that a reply carries the expected number of
// bits.
func checkResultLen(results *BitStream, want uint) error {
	if uint(results.Size()) != want {
		return MajorError(CodeShortResult,
			fmt.Sprintf("HostIo reply is %d bits, want %d", results.Size(), want))
	}
	return nil
}
