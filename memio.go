// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Memory-mapped I/O between the host PC and RAM-like circuitry in the
// FPGA. The module understands four two-bit opcodes; addresses and data
// words travel LSB-first ahead of the opcode.

package xstools

import "fmt"

// MemIo reads and writes a memory-mapped HostIO module.
type MemIo struct {
	*HostIo

	id           *BitStream
	addressWidth uint
	dataWidth    uint
}

// NewMemIo creates a memory client on an existing HostIO transport. Call
// GetSize before the first read or write.
func NewMemIo(hostIo *HostIo) *MemIo {
	return &MemIo{HostIo: hostIo}
}

// AddressWidth reports the negotiated address width in bits.
func (m *MemIo) AddressWidth() uint {
	return m.addressWidth
}

// DataWidth reports the negotiated data width in bits.
func (m *MemIo) DataWidth() uint {
	return m.dataWidth
}

// GetSize queries the memory module for its address and data widths and
// binds the client to the given module id.
func (m *MemIo) GetSize(moduleID uint8) (uint, uint, error) {
	m.id = moduleIDField(moduleID)

	params, err := m.Cmd(m.id, BitStreamFromString(sizeOpcode), sizeResultLen+sizeSkipCycles)
	if err == nil {
		err = checkResultLen(params, sizeResultLen+sizeSkipCycles)
	}
	if err != nil {
		m.lastError = err
		return 0, 0, err
	}

	params.PopFront(sizeSkipCycles)
	m.addressWidth = uint(params.Front(sizeResultLen / 2))
	params.PopFront(sizeResultLen / 2)
	m.dataWidth = uint(params.Front(sizeResultLen / 2))

	logger.Debugf("memory module %d: address width = %d, data width = %d",
		moduleID, m.addressWidth, m.dataWidth)

	return m.addressWidth, m.dataWidth, nil
}

// Read returns numReads values from sequential addresses starting at
// address, in ascending address order.
func (m *MemIo) Read(address uint64, numReads uint) ([]uint64, error) {
	if m.id == nil {
		m.lastError = FatalError("trying to read from memory before querying its parameters")
		return nil, m.lastError
	}
	if numReads == 0 {
		return nil, nil
	}

	payload := BitStreamFromUint(address, m.addressWidth)
	payload.PushBackString(readOpcode)

	// One extra value comes back first while the memory pipeline fills;
	// it carries nothing.
	numResultBits := m.dataWidth * (numReads + 1)
	words, err := m.Cmd(m.id, payload, numResultBits)
	if err == nil {
		err = checkResultLen(words, numResultBits)
	}
	if err != nil {
		m.lastError = err
		return nil, err
	}

	words.PopFront(m.dataWidth)

	values := make([]uint64, 0, numReads)
	for words.Size() > 0 {
		values = append(values, words.Front(m.dataWidth))
		words.PopFront(m.dataWidth)
	}

	return values, nil
}

// ReadWord returns the single value stored at address.
func (m *MemIo) ReadWord(address uint64) (uint64, error) {
	values, err := m.Read(address, 1)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// Write stores values at sequential addresses starting at address. No
// reply is expected.
func (m *MemIo) Write(address uint64, values []uint64) error {
	if m.id == nil {
		m.lastError = FatalError("trying to write to memory before querying its parameters")
		return m.lastError
	}
	if len(values) == 0 {
		return FatalError(fmt.Sprintf("write of no values to memory address 0x%x", address))
	}

	payload := NewBitStream()
	for _, value := range values {
		payload.PushBackUint(value, m.dataWidth)
	}
	payload.PushBackUint(address, m.addressWidth)
	payload.PushBackString(writeOpcode)

	_, err := m.Cmd(m.id, payload, 0)
	return err
}

// WriteWord stores one value at address.
func (m *MemIo) WriteWord(address uint64, value uint64) error {
	return m.Write(address, []uint64{value})
}
