// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// In-process emulation of an XSUSB bridge with HostIO modules behind it.
// The simulator implements Port at the byte-frame level: it decodes the
// same JTAG command frames the firmware does, clocks its own TAP replica,
// and models the one-cycle reply pipeline of the fabric modules. It lets
// the whole stack above Port run without hardware attached.

package xstools

import "fmt"

// simModule is a HostIO fabric module the simulator can address.
type simModule interface {
	exec(opcode uint64, payload *BitStream, numResultBits uint) *BitStream
}

// SimMemory models RAM-like circuitry behind a memory-mapped HostIO
// module.
type SimMemory struct {
	AddrWidth uint
	DataWidth uint

	cells map[uint64]uint64
}

// Peek inspects a memory cell directly, bypassing the wire protocol.
func (m *SimMemory) Peek(address uint64) uint64 {
	return m.cells[m.maskAddr(address)]
}

// Poke sets a memory cell directly, bypassing the wire protocol.
func (m *SimMemory) Poke(address uint64, value uint64) {
	m.cells[m.maskAddr(address)] = value & m.maskData()
}

func (m *SimMemory) maskAddr(address uint64) uint64 {
	if m.AddrWidth >= BitsWordLen {
		return address
	}
	return address & (1<<m.AddrWidth - 1)
}

func (m *SimMemory) maskData() uint64 {
	if m.DataWidth >= BitsWordLen {
		return ^uint64(0)
	}
	return 1<<m.DataWidth - 1
}

func (m *SimMemory) exec(opcode uint64, payload *BitStream, numResultBits uint) *BitStream {
	reply := NewBitStream()

	switch opcode {
	case BitStreamFromString(sizeOpcode).Uint():
		reply.PushBackUint(0, sizeSkipCycles)
		reply.PushBackUint(uint64(m.AddrWidth), sizeResultLen/2)
		reply.PushBackUint(uint64(m.DataWidth), sizeResultLen/2)

	case BitStreamFromString(readOpcode).Uint():
		if numResultBits < m.DataWidth || uint(payload.Size()) < m.AddrWidth {
			break
		}
		address := payload.Front(m.AddrWidth)
		// The first word returned is pipeline garbage; the values follow.
		reply.PushBackUint(0, m.DataWidth)
		numReads := numResultBits/m.DataWidth - 1
		for i := uint(0); i < numReads; i++ {
			reply.PushBackUint(m.Peek(address+uint64(i)), m.DataWidth)
		}

	case BitStreamFromString(writeOpcode).Uint():
		if uint(payload.Size()) < m.AddrWidth {
			break
		}
		address := payload.Back(m.AddrWidth)
		payload.PopBack(m.AddrWidth)
		for offset := uint64(0); uint(payload.Size()) >= m.DataWidth; offset++ {
			m.Poke(address+offset, payload.Front(m.DataWidth))
			payload.PopFront(m.DataWidth)
		}
	}

	return reply
}

// SimDut models a device-under-test behind a HostIO module. Respond, when
// set, computes the output vector from the last written inputs; otherwise
// the outputs stay all-zero.
type SimDut struct {
	InputWidth  uint
	OutputWidth uint

	Respond func(inputs *BitStream) *BitStream

	inputs *BitStream
}

// Inputs returns the vector most recently forced onto the DUT.
func (d *SimDut) Inputs() *BitStream {
	return d.inputs
}

func (d *SimDut) outputs() *BitStream {
	result := NewBitStream()
	if d.Respond != nil && d.inputs != nil {
		result = d.Respond(d.inputs).Clone()
	}
	// Clip or zero-pad to the advertised width.
	for uint(result.Size()) > d.OutputWidth {
		result.PopBack(1)
	}
	for uint(result.Size()) < d.OutputWidth {
		result.PushBackBit(false)
	}
	return result
}

func (d *SimDut) exec(opcode uint64, payload *BitStream, numResultBits uint) *BitStream {
	reply := NewBitStream()

	switch opcode {
	case BitStreamFromString(sizeOpcode).Uint():
		reply.PushBackUint(0, sizeSkipCycles)
		reply.PushBackUint(uint64(d.InputWidth), sizeResultLen/2)
		reply.PushBackUint(uint64(d.OutputWidth), sizeResultLen/2)

	case BitStreamFromString(readOpcode).Uint():
		reply.PushBackUint(0, sizeSkipCycles)
		reply.PushBack(d.outputs())

	case BitStreamFromString(writeOpcode).Uint():
		d.inputs = payload.Clone()
	}

	return reply
}

// HostIoSimulator emulates the XSUSB bridge and the FPGA fabric behind it.
// It is single-owner like a real port.
type HostIoSimulator struct {
	open bool

	tapState     TapState
	instrShift   *BitStream
	currentInstr uint64
	haveInstr    bool

	drStream *BitStream
	pending  *BitStream

	modules map[uint8]simModule
	readBuf []byte
}

// NewHostIoSimulator creates a simulator with no modules attached.
func NewHostIoSimulator() *HostIoSimulator {
	return &HostIoSimulator{
		tapState:   TestLogicReset,
		instrShift: NewBitStream(),
		drStream:   NewBitStream(),
		pending:    NewBitStream(),
		modules:    make(map[uint8]simModule),
	}
}

// AddMemory attaches a memory module with the given widths at the given
// module id.
func (s *HostIoSimulator) AddMemory(moduleID uint8, addrWidth uint, dataWidth uint) *SimMemory {
	mem := &SimMemory{
		AddrWidth: addrWidth,
		DataWidth: dataWidth,
		cells:     make(map[uint64]uint64),
	}
	s.modules[moduleID] = mem
	return mem
}

// AddDut attaches a DUT module with the given vector widths at the given
// module id.
func (s *HostIoSimulator) AddDut(moduleID uint8, inputWidth uint, outputWidth uint) *SimDut {
	dut := &SimDut{
		InputWidth:  inputWidth,
		OutputWidth: outputWidth,
	}
	s.modules[moduleID] = dut
	return dut
}

// TapState reports the simulator's own TAP replica, useful for checking
// that host and device agree.
func (s *HostIoSimulator) TapState() TapState {
	return s.tapState
}

// Open readies the simulated port.
func (s *HostIoSimulator) Open(numTrials uint) error {
	s.open = true
	return nil
}

// Close releases the simulated port. It is idempotent.
func (s *HostIoSimulator) Close() error {
	s.open = false
	return nil
}

// Read hands out reply bytes queued by previously written commands.
func (s *HostIoSimulator) Read(numBytes uint, timeoutMs uint) ([]byte, error) {
	if !s.open {
		return nil, FatalError("read from closed simulator port")
	}
	if numBytes == 0 {
		return nil, nil
	}
	if uint(len(s.readBuf)) < numBytes {
		return nil, MinorError(CodeTimeout,
			fmt.Sprintf("simulated device has %d reply bytes, %d requested", len(s.readBuf), numBytes))
	}

	reply := s.readBuf[:numBytes]
	s.readBuf = s.readBuf[numBytes:]
	return reply, nil
}

// Write decodes and executes the command frames in data.
func (s *HostIoSimulator) Write(data []byte, timeoutMs uint) error {
	if !s.open {
		return FatalError("write to closed simulator port")
	}

	for len(data) > 0 {
		switch data[0] {
		case runtestCmd:
			if len(data) < runtestCmdLen {
				return MajorError(CodeProtocol, "truncated run-test command")
			}
			s.readBuf = append(s.readBuf, data[:runtestCmdLen]...)
			data = data[runtestCmdLen:]

		case jtagCmd:
			if len(data) < jtagCmdHeaderLen {
				return MajorError(CodeProtocol, "truncated JTAG command header")
			}
			numBits := uint(data[1]) | uint(data[2])<<8 | uint(data[3])<<16 | uint(data[4])<<24
			flags := data[5]
			data = data[jtagCmdHeaderLen:]

			payloadLen := jtagPayloadLen(numBits, flags)
			if uint(len(data)) < payloadLen {
				return MajorError(CodeProtocol, "truncated JTAG command payload")
			}
			s.execJtagCmd(numBits, flags, data[:payloadLen])
			data = data[payloadLen:]

		default:
			return MajorError(CodeProtocol,
				fmt.Sprintf("unknown command opcode 0x%02x", data[0]))
		}
	}

	return nil
}

// jtagPayloadLen computes how many payload bytes follow a JTAG command
// header with the given flags.
func jtagPayloadLen(numBits uint, flags byte) uint {
	words := (numBits + 7) / 8
	switch {
	case flags&putTmsMask != 0 && flags&putTdiMask != 0:
		return 2 * words
	case flags&putTmsMask != 0 || flags&putTdiMask != 0:
		return words
	default:
		return 0
	}
}

func (s *HostIoSimulator) execJtagCmd(numBits uint, flags byte, payload []byte) {
	tmsBits, tdiBits := unpackTmsTdi(numBits, flags, payload)

	if flags&getTdoMask != 0 {
		s.readBuf = append(s.readBuf, s.popReplyBytes(numBits)...)
	}

	for i := uint(0); i < numBits; i++ {
		s.clock(tmsBits.Bit(int(i)), tdiBits.Bit(int(i)), flags&putTdiMask != 0)
	}

	if flags&putTdiMask != 0 {
		s.decodeHostIoFrame()
	}
}

// unpackTmsTdi expands a command payload into one TMS and one TDI bit per
// clock, resolving static values for directions not present.
func unpackTmsTdi(numBits uint, flags byte, payload []byte) (*BitStream, *BitStream) {
	tmsBits := NewBitStream()
	tdiBits := NewBitStream()

	fill := func(bits *BitStream, value bool) {
		for uint(bits.Size()) < numBits {
			bits.PushBackBit(value)
		}
	}

	unpack := func(bits *BitStream, words []byte, stride int, offset int) {
		remaining := numBits
		for i := offset; i < len(words) && remaining > 0; i += stride {
			chunk := remaining
			if chunk > 8 {
				chunk = 8
			}
			bits.PushBackUint(uint64(words[i]), chunk)
			remaining -= chunk
		}
	}

	putTms := flags&putTmsMask != 0
	putTdi := flags&putTdiMask != 0

	switch {
	case putTms && putTdi:
		unpack(tmsBits, payload, 2, 0)
		unpack(tdiBits, payload, 2, 1)
	case putTms:
		unpack(tmsBits, payload, 1, 0)
		fill(tdiBits, flags&tdiValMask != 0)
	case putTdi:
		unpack(tdiBits, payload, 1, 0)
		fill(tmsBits, flags&tmsValMask != 0)
	default:
		fill(tmsBits, flags&tmsValMask != 0)
		fill(tdiBits, flags&tdiValMask != 0)
	}

	return tmsBits, tdiBits
}

// clock advances the simulated TAP one TCK cycle. TDI is sampled while in
// a shift state; live payload bits feed the HostIO frame decoder, static
// bits are the idle cycles of a TDO sweep and carry nothing.
func (s *HostIoSimulator) clock(tms bool, tdi bool, liveTdi bool) {
	switch s.tapState {
	case ShiftIR:
		s.instrShift.PushBackBit(tdi)
	case ShiftDR:
		if s.isUserInstr() && liveTdi {
			s.drStream.PushBackBit(tdi)
		}
	}

	previous := s.tapState
	s.tapState = NextTapState(s.tapState, tms)

	switch s.tapState {
	case CaptureIR:
		s.instrShift = NewBitStream()
	case CaptureDR:
		s.drStream = NewBitStream()
	case UpdateIR:
		if previous != UpdateIR && !s.instrShift.Empty() {
			s.currentInstr = s.instrShift.Uint()
			s.haveInstr = true
			s.instrShift = NewBitStream()
		}
	case TestLogicReset:
		s.haveInstr = false
	}
}

func (s *HostIoSimulator) isUserInstr() bool {
	return s.haveInstr && s.currentInstr == BitStreamFromString(DefaultUserInstr).Uint()
}

// decodeHostIoFrame executes a completed HostIO command sitting in the
// accumulated DR stream: trailing 8-bit id, 32-bit total bit count before
// it, payload ahead of that.
func (s *HostIoSimulator) decodeHostIoFrame() {
	if s.tapState != ShiftDR || !s.isUserInstr() {
		return
	}
	if s.drStream.Size() < idFieldLen+lenFieldLen {
		return
	}

	size := s.drStream.Size()
	moduleID := uint8(s.drStream.Back(idFieldLen))
	total := s.drStream.GetBits(size-idFieldLen-lenFieldLen, size-idFieldLen).Uint()
	payloadPresent := uint(size - idFieldLen - lenFieldLen)

	if total < uint64(payloadPresent) {
		// Garbled frame; drop it.
		s.drStream = NewBitStream()
		return
	}
	numResultBits := uint(total) - payloadPresent

	payload := s.drStream.GetBits(0, int(payloadPresent))
	s.drStream = NewBitStream()

	module, ok := s.modules[moduleID]
	if !ok {
		// Unmapped module ids answer with nothing; reads then come back
		// all-zero, which is how the size probe reports absence.
		s.pending = NewBitStream()
		return
	}

	if payload.Size() < 2 {
		s.pending = NewBitStream()
		return
	}

	opcode := payload.Back(2)
	payload.PopBack(2)
	s.pending = module.exec(opcode, payload, numResultBits)
}

// popReplyBytes packs numBits pending reply bits into bytes, padding with
// zeros once the pipeline runs dry.
func (s *HostIoSimulator) popReplyBytes(numBits uint) []byte {
	bits := NewBitStream()
	for i := uint(0); i < numBits; i++ {
		if s.pending.Empty() {
			bits.PushBackBit(false)
		} else {
			bits.PushBackBit(s.pending.Bit(0))
			s.pending.PopFront(1)
		}
	}
	return packBitsIntoBytes(bits)
}
