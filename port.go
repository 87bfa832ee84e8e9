// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package xstools

// Port is the byte-stream transport a JtagPort drives. The production
// implementation is UsbPort; the HostIoSimulator provides a hardware-free
// one for tests and development.
type Port interface {
	// Open readies the port, retrying up to numTrials times.
	Open(numTrials uint) error

	// Read blocks up to timeoutMs milliseconds and returns exactly
	// numBytes bytes on success.
	Read(numBytes uint, timeoutMs uint) ([]byte, error)

	// Write delivers all bytes of data within timeoutMs milliseconds.
	Write(data []byte, timeoutMs uint) error

	// Close releases the port. It is idempotent.
	Close() error
}
