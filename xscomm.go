// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// One-call bring-up of a HostIO session over a freshly opened USB bridge,
// mirroring the channel-per-module model of the original C API. Each Init
// owns its own UsbPort/JtagPort/HostIo stack; Close on the returned client
// releases it.

package xstools

// Façade status codes.
const (
	StatusSuccess     = 0 // operation completed
	StatusCommError   = 1 // communication with the device failed
	StatusShortResult = 2 // device returned fewer result bits than expected
)

// statusOf collapses an error chain into the façade status codes.
func statusOf(err error) int {
	switch {
	case err == nil:
		return StatusSuccess
	case CodeOf(err) == CodeShortResult:
		return StatusShortResult
	default:
		return StatusCommError
	}
}

// openHostIo opens the usbInstance-th XSUSB bridge and parks its TAP in
// Shift-DR with the USER instruction loaded.
func openHostIo(usbInstance uint) (*HostIo, error) {
	port := NewUsbPort(DefaultUsbConfig(usbInstance))
	if err := port.Open(defaultOpenTrials); err != nil {
		return nil, err
	}

	hostIo := NewHostIo(NewJtagPort(port))
	if err := hostIo.Reset(); err != nil {
		port.Close()
		return nil, err
	}

	return hostIo, nil
}

// MemInit opens a channel to a memory-mapped module in the FPGA and
// negotiates its widths. A module reporting a zero address or data width
// does not exist; the channel is torn down and an error returned.
func MemInit(usbInstance uint, moduleID uint8) (*MemIo, error) {
	if moduleID == 0 {
		moduleID = DefaultModuleID
	}

	hostIo, err := openHostIo(usbInstance)
	if err != nil {
		return nil, err
	}

	memIo := NewMemIo(hostIo)
	addrWidth, dataWidth, err := memIo.GetSize(moduleID)
	if err != nil {
		hostIo.Close()
		return nil, err
	}

	if addrWidth == 0 || dataWidth == 0 {
		hostIo.Close()
		return nil, MajorError(CodeProtocol, "memory module reported a zero width; it does not exist")
	}

	return memIo, nil
}

// MemRead reads numReads sequential values starting at address.
func MemRead(memIo *MemIo, address uint64, numReads uint) ([]uint64, int) {
	values, err := memIo.Read(address, numReads)
	if status := statusOf(err); status != StatusSuccess {
		return nil, status
	}
	if uint(len(values)) < numReads {
		return values, StatusShortResult
	}
	return values, StatusSuccess
}

// MemWrite writes values to sequential addresses starting at address.
func MemWrite(memIo *MemIo, address uint64, values []uint64) int {
	return statusOf(memIo.Write(address, values))
}

// DutInit opens a channel to a DUT module in the FPGA and negotiates its
// vector widths. Only a module reporting zero inputs AND zero outputs is
// treated as non-existent, matching the device-side convention for
// output-only and input-only DUTs.
func DutInit(usbInstance uint, moduleID uint8) (*DutIo, error) {
	if moduleID == 0 {
		moduleID = DefaultModuleID
	}

	hostIo, err := openHostIo(usbInstance)
	if err != nil {
		return nil, err
	}

	dutIo := NewDutIo(hostIo)
	numInputs, numOutputs, err := dutIo.GetSize(moduleID)
	if err != nil {
		hostIo.Close()
		return nil, err
	}

	if numInputs == 0 && numOutputs == 0 {
		hostIo.Close()
		return nil, MajorError(CodeProtocol, "DUT module reported zero widths; it does not exist")
	}

	return dutIo, nil
}

// DutRead returns the DUT output vector expanded to one byte per bit.
func DutRead(dutIo *DutIo) ([]byte, int) {
	result, err := dutIo.Read()
	if status := statusOf(err); status != StatusSuccess {
		return nil, status
	}
	if uint(result.Size()) < dutIo.OutputWidth() {
		return result.Bytes(), StatusShortResult
	}
	return result.Bytes(), StatusSuccess
}

// DutWrite forces one byte-per-bit vector onto the DUT inputs.
func DutWrite(dutIo *DutIo, bits []byte) int {
	return statusOf(dutIo.Write(BitStreamFromBytes(bits)))
}
