// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// JtagPort keeps a software replica of the JTAG TAP state machine and
// translates TAP manipulations into the byte-oriented command language of
// the XSUSB bridge. TMS and TDI bits are buffered until a flush packs them
// into one command frame; TDO bits are read back with a separate command
// and unpacked into a BitStream.

package xstools

import (
	"fmt"
)

// JtagPort drives the TAP of a single device behind a Port. It owns the
// port exclusively; commands on one JtagPort are strictly serialized.
type JtagPort struct {
	port     Port
	tapState TapState
	tmsBits  *BitStream
	tdiBits  *BitStream
}

// NewJtagPort wraps an opened port. The TAP state is unknown until the
// first ResetTap.
func NewJtagPort(port Port) *JtagPort {
	return &JtagPort{
		port:     port,
		tapState: InvalidTapState,
		tmsBits:  NewBitStream(),
		tdiBits:  NewBitStream(),
	}
}

// Port returns the physical port this JtagPort drives.
func (j *JtagPort) Port() Port {
	return j.port
}

// TapState reports the tracked TAP controller state.
func (j *JtagPort) TapState() TapState {
	return j.tapState
}

func (j *JtagPort) buffersEmpty() bool {
	return j.tmsBits.Empty() && j.tdiBits.Empty()
}

// shiftTms queues one TMS bit and advances the tracked TAP state in
// lock-step with it.
func (j *JtagPort) shiftTms(bit bool) {
	j.tmsBits.PushBackBit(bit)
	j.tapState = NextTapState(j.tapState, bit)
}

// ResetTap forces the TAP into Test-Logic-Reset with five TMS=1 cycles,
// which works from any state including an unknown one.
func (j *JtagPort) ResetTap() error {
	if !j.buffersEmpty() {
		return FatalError("TAP reset with bits still buffered")
	}

	for i := 0; i < 5; i++ {
		j.tmsBits.PushBackBit(true)
	}
	err := j.flush()

	j.tapState = TestLogicReset
	return err
}

// GoThruTapStates walks the TAP through the given sequence of states. Each
// hop must be reachable in one TMS transition from its predecessor.
func (j *JtagPort) GoThruTapStates(states ...TapState) error {
	if !j.buffersEmpty() {
		return FatalError("TAP state walk with bits still buffered")
	}

	for _, next := range states {
		if j.tapState < TestLogicReset || j.tapState > UpdateIR {
			return FatalError("TAP state walk from invalid state; reset the TAP first")
		}

		// TMS=1 if that input reaches the requested state, else TMS=0
		// must reach it by table construction.
		tms := nextTapState[j.tapState][1] == next
		if !tms && nextTapState[j.tapState][0] != next {
			return FatalError(fmt.Sprintf("TAP state %v is not reachable in one step from %v",
				next, j.tapState))
		}

		j.shiftTms(tms)
	}

	return j.flush()
}

// ShiftTdi queues TDI bits for transmission while in Shift-DR or Shift-IR.
// With exitShift the final bit is paired with TMS=1 so the TAP leaves the
// shift state; with doFlush the buffers are sent to the device.
func (j *JtagPort) ShiftTdi(tdiBits *BitStream, exitShift bool, doFlush bool) error {
	if !j.tmsBits.Empty() {
		return FatalError("TDI shift with TMS bits still buffered")
	}
	if j.tapState != ShiftDR && j.tapState != ShiftIR {
		return FatalError(fmt.Sprintf("TDI shift outside a shift state (TAP is in %v)", j.tapState))
	}

	j.tdiBits.PushBack(tdiBits)

	if exitShift {
		j.shiftTms(true)
	}

	if doFlush {
		return j.flush()
	}
	return nil
}

// ShiftTdo clocks numBits TCK cycles with static TDI and collects the TDO
// bits shifted out of the device. With exitShift the final bit is captured
// with static TMS=1 so the TAP leaves the shift state.
func (j *JtagPort) ShiftTdo(numBits uint, exitShift bool) (*BitStream, error) {
	if !j.buffersEmpty() {
		return nil, FatalError("TDO shift with TMS or TDI bits still buffered")
	}
	if j.tapState != ShiftDR && j.tapState != ShiftIR {
		return nil, FatalError(fmt.Sprintf("TDO shift outside a shift state (TAP is in %v)", j.tapState))
	}
	if numBits == 0 {
		return NewBitStream(), nil
	}

	tdoBits := NewBitStream()

	if exitShift {
		// Collect all but the final bit while remaining in the shift
		// state, then grab the last one with static TMS=1.
		if numBits > 1 {
			first, err := j.ShiftTdo(numBits-1, false)
			if err != nil {
				return nil, err
			}
			tdoBits.PushBack(first)
		}

		// Track the state change caused by the static TMS value; no TMS
		// bit travels in the payload.
		j.tapState = NextTapState(j.tapState, true)

		if err := j.port.Write(jtagCmdHeader(1, getTdoMask|tmsValMask), DefaultUsbTimeoutMs); err != nil {
			return nil, err
		}

		reply, err := j.port.Read(1, DefaultUsbTimeoutMs)
		if err != nil {
			return nil, err
		}
		tdoBits.PushBackUint(uint64(reply[0]), 1)

		return tdoBits, nil
	}

	if err := j.port.Write(jtagCmdHeader(uint32(numBits), getTdoMask), DefaultUsbTimeoutMs); err != nil {
		return nil, err
	}

	numBytes := (numBits + 7) / 8
	reply, err := j.port.Read(numBytes, DefaultUsbTimeoutMs)
	if err != nil {
		return nil, err
	}

	remaining := numBits
	for _, word := range reply {
		chunk := remaining
		if chunk > 8 {
			chunk = 8
		}
		tdoBits.PushBackUint(uint64(word), chunk)
		remaining -= chunk
	}

	return tdoBits, nil
}

// RunTest pulses TCK numTcks times and checks the confirmation echoed by
// the device.
func (j *JtagPort) RunTest(numTcks uint32) error {
	cmd := []byte{
		runtestCmd,
		byte(numTcks),
		byte(numTcks >> 8),
		byte(numTcks >> 16),
		byte(numTcks >> 24),
	}

	if err := j.port.Write(cmd, DefaultUsbTimeoutMs); err != nil {
		return err
	}

	echo, err := j.port.Read(runtestCmdLen, DefaultUsbTimeoutMs)
	if err != nil {
		return err
	}

	if echo[0] != runtestCmd {
		return MajorError(CodeProtocol,
			fmt.Sprintf("run-test echo opcode 0x%02x, want 0x%02x", echo[0], runtestCmd))
	}

	return nil
}

// flush transmits the buffered TMS and TDI bits as one or two JTAG command
// frames. The buffers are empty afterwards, also when the transfer fails.
func (j *JtagPort) flush() error {
	if j.port == nil {
		return FatalError("flush with no physical port attached")
	}
	if j.buffersEmpty() {
		return FatalError("flush of empty TMS and TDI buffers")
	}

	numTms := j.tmsBits.Size()
	numTdi := j.tdiBits.Size()

	var frame []byte

	switch {
	case numTdi == 0:
		// TMS bits only.
		frame = jtagCmdHeader(uint32(numTms), putTmsMask)
		frame = append(frame, packBitsIntoBytes(j.tmsBits)...)

	case numTms == 0:
		// TDI bits only.
		frame = jtagCmdHeader(uint32(numTdi), putTdiMask)
		frame = append(frame, packBitsIntoBytes(j.tdiBits)...)

	case numTms == numTdi:
		// Lock-step TMS and TDI, byte-interleaved with TMS bytes at the
		// even payload positions.
		frame = jtagCmdHeader(uint32(numTdi), putTmsMask|putTdiMask)
		frame = append(frame, interleaveBytes(
			packBitsIntoBytes(j.tmsBits),
			packBitsIntoBytes(j.tdiBits))...)

	case numTms == 1:
		// A single trailing TMS bit: send the first N-1 TDI bits alone,
		// then the final TMS+TDI pair.
		lastTms := j.tmsBits.Back(1)
		j.tmsBits.PopBack(1)
		lastTdi := j.tdiBits.Back(1)
		j.tdiBits.PopBack(1)

		if err := j.flush(); err != nil {
			j.discardBuffers()
			return err
		}

		j.tmsBits.PushBackUint(lastTms, 1)
		j.tdiBits.PushBackUint(lastTdi, 1)
		return j.flush()

	default:
		j.discardBuffers()
		return FatalError(fmt.Sprintf("mismatched # of TMS and TDI bits (%d vs %d)", numTms, numTdi))
	}

	logger.Tracef("flush %d TMS / %d TDI bits in a %d byte frame", numTms, numTdi, len(frame))

	err := j.port.Write(frame, DefaultUsbTimeoutMs)
	j.discardBuffers()
	return err
}

// discardBuffers restores the between-operations invariant that both bit
// buffers are empty.
func (j *JtagPort) discardBuffers() {
	if !j.tmsBits.Empty() {
		j.tmsBits.PopFront(uint(j.tmsBits.Size()))
	}
	if !j.tdiBits.Empty() {
		j.tdiBits.PopFront(uint(j.tdiBits.Size()))
	}
}

// jtagCmdHeader frames a JTAG command: opcode, 32-bit little-endian bit
// count, flag byte.
func jtagCmdHeader(numBits uint32, flags byte) []byte {
	return []byte{
		jtagCmd,
		byte(numBits),
		byte(numBits >> 8),
		byte(numBits >> 16),
		byte(numBits >> 24),
		flags,
	}
}

// packBitsIntoBytes drains a bit stream into bytes, packing bits LSB-first
// in transmission order. The stream is empty afterwards.
func packBitsIntoBytes(bits *BitStream) []byte {
	packed := make([]byte, 0, (bits.Size()+7)/8)

	for bits.Size() > 0 {
		chunk := uint(8)
		if uint(bits.Size()) < chunk {
			chunk = uint(bits.Size())
		}
		packed = append(packed, byte(bits.Front(chunk)))
		bits.PopFront(chunk)
	}

	return packed
}

// interleaveBytes merges two equal-length byte slices, the first at even
// positions and the second at odd positions.
func interleaveBytes(even []byte, odd []byte) []byte {
	merged := make([]byte, 0, len(even)+len(odd))
	for i := range even {
		merged = append(merged, even[i], odd[i])
	}
	return merged
}
