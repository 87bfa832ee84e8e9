// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package xstools

import "github.com/google/gousb"

// USB identity of an XSUSB JTAG bridge.
const (
	DefaultUsbVid      gousb.ID = 0x04d8
	DefaultUsbPid      gousb.ID = 0xff8c
	DefaultUsbEndpoint uint8    = 0x01
)

// usb endpoint definitions
const (
	usbEndpointIn  = 0x80
	usbEndpointOut = 0x00
)

// USB transfer limits. Each bulk transfer carries its own timeout; the
// hard ceiling mirrors the device firmware watchdog.
const (
	DefaultUsbTimeoutMs uint = 100
	maxUsbTimeoutMs     uint = 20000

	defaultOpenTrials uint = 1
)

// Command opcodes understood by the XSUSB bridge firmware. Only the JTAG
// and run-test commands are exercised by this package; the rest of the
// firmware command set (flash, EEPROM, test vectors) is out of scope.
const (
	runtestCmd = 0x47 // pulse TCK a given number of times
	jtagCmd    = 0x4f // send TMS/TDI bits, receive TDO bits
)

// Flag fields for jtagCmd.
const (
	getTdoMask = 0x01 // read bits from the TDO pin
	putTmsMask = 0x02 // TMS bits are included in the payload
	tmsValMask = 0x04 // static TMS value when putTmsMask is cleared
	putTdiMask = 0x08 // TDI bits are included in the payload
	tdiValMask = 0x10 // static TDI value when putTdiMask is cleared
)

// jtagCmd header: opcode, 32-bit little-endian bit count, flag byte.
const jtagCmdHeaderLen = 6

// runtestCmd header and its echo reply share one length.
const runtestCmdLen = 5

// HostIO frame field widths. The device decodes the trailing id, then the
// 32-bit payload-plus-result bit count that precedes it.
const (
	idFieldLen  = 8
	lenFieldLen = 32
)

// DefaultUserInstr is the six-bit USER1 instruction that connects the
// HostIO scan chain on Xilinx 7-series and similar devices.
const DefaultUserInstr = "000010"

// DefaultModuleID addresses the catch-all HostIO module.
const DefaultModuleID uint8 = 255

// Opcodes shared by the memory and DUT HostIO modules.
const (
	nopOpcode   = "00"
	sizeOpcode  = "01"
	writeOpcode = "10"
	readOpcode  = "11"
)

// SIZE replies carry two 8-bit widths after the skip cycle.
const (
	sizeResultLen  = 16
	sizeSkipCycles = 1
)
