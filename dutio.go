// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Stimulus/response channel to a device-under-test wired to a HostIO
// module in the FPGA: force a vector onto the DUT inputs, read the vector
// on its outputs.

package xstools

import "fmt"

// DutIo drives and observes a device-under-test behind a HostIO module.
type DutIo struct {
	*HostIo

	id          *BitStream
	inputWidth  uint
	outputWidth uint

	// Optional partitions of the input and output vectors into named-by-
	// position fields. Empty means one field covering the whole vector.
	inputWidths  []uint
	outputWidths []uint
}

// NewDutIo creates a DUT client on an existing HostIO transport. Call
// GetSize before the first read or write.
func NewDutIo(hostIo *HostIo) *DutIo {
	return &DutIo{HostIo: hostIo}
}

// InputWidth reports the negotiated total width of the DUT input vector.
func (d *DutIo) InputWidth() uint {
	return d.inputWidth
}

// OutputWidth reports the negotiated total width of the DUT output vector.
func (d *DutIo) OutputWidth() uint {
	return d.outputWidth
}

// GetSize queries the DUT module for its input and output vector widths
// and binds the client to the given module id.
func (d *DutIo) GetSize(moduleID uint8) (uint, uint, error) {
	d.id = moduleIDField(moduleID)

	params, err := d.Cmd(d.id, BitStreamFromString(sizeOpcode), sizeResultLen+sizeSkipCycles)
	if err == nil {
		err = checkResultLen(params, sizeResultLen+sizeSkipCycles)
	}
	if err != nil {
		d.lastError = err
		return 0, 0, err
	}

	params.PopFront(sizeSkipCycles)
	d.inputWidth = uint(params.Front(sizeResultLen / 2))
	params.PopFront(sizeResultLen / 2)
	d.outputWidth = uint(params.Front(sizeResultLen / 2))

	logger.Debugf("DUT module %d: %d input bits, %d output bits",
		moduleID, d.inputWidth, d.outputWidth)

	return d.inputWidth, d.outputWidth, nil
}

// SetFieldWidths partitions the input and output vectors into fields for
// WriteFields and ReadFields. Each list must total the negotiated width;
// nil keeps a single full-width field.
func (d *DutIo) SetFieldWidths(inputWidths []uint, outputWidths []uint) error {
	if d.id == nil {
		return FatalError("trying to partition DUT vectors before querying its parameters")
	}

	if inputWidths != nil {
		if sumWidths(inputWidths) != d.inputWidth {
			return FatalError(fmt.Sprintf("input fields total %d bits, DUT has %d inputs",
				sumWidths(inputWidths), d.inputWidth))
		}
		d.inputWidths = inputWidths
	}

	if outputWidths != nil {
		if sumWidths(outputWidths) != d.outputWidth {
			return FatalError(fmt.Sprintf("output fields total %d bits, DUT has %d outputs",
				sumWidths(outputWidths), d.outputWidth))
		}
		d.outputWidths = outputWidths
	}

	return nil
}

// Read returns the current DUT output vector.
func (d *DutIo) Read() (*BitStream, error) {
	if d.id == nil {
		d.lastError = FatalError("trying to read DUT outputs before querying its parameters")
		return nil, d.lastError
	}

	result, err := d.Cmd(d.id, BitStreamFromString(readOpcode), d.outputWidth+sizeSkipCycles)
	if err == nil {
		err = checkResultLen(result, d.outputWidth+sizeSkipCycles)
	}
	if err != nil {
		d.lastError = err
		return nil, err
	}

	result.PopFront(sizeSkipCycles)
	return result, nil
}

// ReadFields returns the DUT output vector split into the configured
// fields, front field first.
func (d *DutIo) ReadFields() ([]*BitStream, error) {
	result, err := d.Read()
	if err != nil {
		return nil, err
	}

	widths := d.outputWidths
	if len(widths) == 0 {
		widths = []uint{d.outputWidth}
	}

	fields := make([]*BitStream, 0, len(widths))
	for _, width := range widths {
		fields = append(fields, result.GetBits(0, int(width)))
		result.PopFront(width)
	}
	return fields, nil
}

// Write forces a vector onto the DUT inputs. The vector must match the
// negotiated input width.
func (d *DutIo) Write(vector *BitStream) error {
	if d.id == nil {
		d.lastError = FatalError("trying to write DUT inputs before querying its parameters")
		return d.lastError
	}
	if uint(vector.Size()) != d.inputWidth {
		return FatalError(fmt.Sprintf("DUT input vector is %d bits, want %d",
			vector.Size(), d.inputWidth))
	}

	payload := vector.Cat(BitStreamFromString(writeOpcode))

	_, err := d.Cmd(d.id, payload, 0)
	return err
}

// WriteFields assembles one input vector from per-field streams, front
// field first, and writes it to the DUT.
func (d *DutIo) WriteFields(fields ...*BitStream) error {
	widths := d.inputWidths
	if len(widths) == 0 {
		widths = []uint{d.inputWidth}
	}
	if len(fields) != len(widths) {
		return FatalError(fmt.Sprintf("got %d DUT input fields, want %d", len(fields), len(widths)))
	}

	vector := NewBitStream()
	for i, field := range fields {
		if uint(field.Size()) != widths[i] {
			return FatalError(fmt.Sprintf("DUT input field %d is %d bits, want %d",
				i, field.Size(), widths[i]))
		}
		vector.PushBack(field)
	}

	return d.Write(vector)
}

// Exec writes an input vector and reads back the resulting outputs.
func (d *DutIo) Exec(vector *BitStream) (*BitStream, error) {
	if err := d.Write(vector); err != nil {
		return nil, err
	}
	return d.Read()
}

func sumWidths(widths []uint) uint {
	var total uint
	for _, w := range widths {
		total += w
	}
	return total
}
