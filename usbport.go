// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package xstools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// UsbConfig names one bulk endpoint pair of one instance of a VID/PID
// device.
type UsbConfig struct {
	Vid      gousb.ID
	Pid      gousb.ID
	Instance uint
	Endpoint uint8
}

func NewUsbConfig(vid gousb.ID, pid gousb.ID, instance uint, endpoint uint8) *UsbConfig {
	return &UsbConfig{
		Vid:      vid,
		Pid:      pid,
		Instance: instance,
		Endpoint: endpoint,
	}
}

// DefaultUsbConfig targets the given instance of an XSUSB bridge.
func DefaultUsbConfig(instance uint) *UsbConfig {
	return NewUsbConfig(DefaultUsbVid, DefaultUsbPid, instance, DefaultUsbEndpoint)
}

// UsbPort reads and writes the bulk endpoint pair of a USB device. The OUT
// endpoint carries host-to-device traffic on the configured endpoint
// number; the IN endpoint is the same number with the direction bit set.
//
// A UsbPort is owned exclusively by one JtagPort; it performs no internal
// locking.
type UsbPort struct {
	vid      gousb.ID
	pid      gousb.ID
	instance uint
	endpoint uint8

	device *gousb.Device
	config *gousb.Config

	// One readiness flag per direction, set once the endpoint has been
	// resolved during Open.
	outReady bool
	inReady  bool
}

// NewUsbPort creates a closed port for the described device.
func NewUsbPort(cfg *UsbConfig) *UsbPort {
	return &UsbPort{
		vid:      cfg.Vid,
		pid:      cfg.Pid,
		instance: cfg.Instance,
		endpoint: cfg.Endpoint,
	}
}

// Open locates the instance-th device matching the configured VID/PID and
// readies both directions of its bulk endpoint pair. Up to numTrials
// attempts are made before the last error is returned.
func (p *UsbPort) Open(numTrials uint) error {
	if p.device != nil {
		return nil
	}

	if err := InitializeUSB(); err != nil {
		return MinorError(CodeOpenFailed, err.Error())
	}

	if numTrials == 0 {
		numTrials = 1
	}

	var err error
	for trial := uint(0); trial < numTrials && p.device == nil; trial++ {
		err = p.tryOpen()
		if err != nil {
			logger.Debugf("open trial %d of [%04x:%04x] failed: %v",
				trial+1, uint16(p.vid), uint16(p.pid), err)
			p.Close()
		}
	}

	if err != nil {
		p.Close()
		return err
	}

	logger.Infof("opened USB device [%04x:%04x] instance %d, endpoint pair %02x/%02x",
		uint16(p.vid), uint16(p.pid), p.instance,
		p.endpoint|usbEndpointOut, p.endpoint|usbEndpointIn)
	return nil
}

func (p *UsbPort) tryOpen() error {
	devices, err := usbFindDevices(p.vid, p.pid)
	if err != nil {
		return MinorError(CodeOpenFailed, err.Error())
	}

	if uint(len(devices)) <= p.instance {
		for _, dev := range devices {
			dev.Close()
		}
		return MinorError(CodeNotFound,
			fmt.Sprintf("no instance %d of USB device [%04x:%04x] found",
				p.instance, uint16(p.vid), uint16(p.pid)))
	}

	// Keep the requested instance, release the rest.
	for i, dev := range devices {
		if uint(i) == p.instance {
			p.device = dev
		} else {
			dev.Close()
		}
	}

	p.config, err = p.device.Config(1)
	if err != nil {
		p.device.Close()
		p.device = nil
		return MinorError(CodeBusy, "could not claim configuration #1: "+err.Error())
	}

	// Resolve both endpoint directions once so later transfers can fail
	// fast when the descriptor lies.
	intf, err := p.config.Interface(0, 0)
	if err != nil {
		p.config.Close()
		p.config = nil
		p.device.Close()
		p.device = nil
		return MinorError(CodeBusy, "could not claim interface 0,0: "+err.Error())
	}
	defer intf.Close()

	if _, err = intf.OutEndpoint(int(p.endpoint)); err != nil {
		return MinorError(CodeOpenFailed,
			fmt.Sprintf("no OUT endpoint %02x: %v", p.endpoint|usbEndpointOut, err))
	}
	p.outReady = true

	if _, err = intf.InEndpoint(int(p.endpoint)); err != nil {
		return MinorError(CodeOpenFailed,
			fmt.Sprintf("no IN endpoint %02x: %v", p.endpoint|usbEndpointIn, err))
	}
	p.inReady = true

	return nil
}

// Read blocks up to timeoutMs milliseconds and returns exactly numBytes
// bytes. The kernel interface is claimed for the duration of the transfer
// and released on every exit path.
func (p *UsbPort) Read(numBytes uint, timeoutMs uint) ([]byte, error) {
	if timeoutMs >= maxUsbTimeoutMs {
		return nil, FatalError(fmt.Sprintf("read timeout %d ms exceeds the %d ms ceiling",
			timeoutMs, maxUsbTimeoutMs))
	}

	if numBytes == 0 {
		return nil, nil
	}

	if p.config == nil || !p.inReady {
		return nil, FatalError("read from USB port with no open IN endpoint")
	}

	intf, err := p.config.Interface(0, 0)
	if err != nil {
		return nil, MinorError(CodeBusy, "could not claim interface for read: "+err.Error())
	}
	defer intf.Close()

	endpoint, err := intf.InEndpoint(int(p.endpoint))
	if err != nil {
		return nil, FatalError("IN endpoint vanished after open: " + err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	buffer := make([]byte, numBytes)
	read, err := endpoint.ReadContext(ctx, buffer)

	logger.Tracef("read %d of %d bytes from endpoint %02x", read, numBytes, p.endpoint|usbEndpointIn)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && read == 0 {
			return nil, MinorError(CodeTimeout,
				fmt.Sprintf("read of %d bytes timed out after %d ms", numBytes, timeoutMs))
		}
		return nil, MajorError(CodeShortRead, "read of USB device failed: "+err.Error())
	}

	if uint(read) < numBytes {
		return nil, MinorError(CodeShortRead,
			fmt.Sprintf("incomplete read of USB device: got %d of %d bytes", read, numBytes))
	}

	return buffer, nil
}

// Write delivers all bytes of data within timeoutMs milliseconds, claiming
// and releasing the kernel interface around the transfer.
func (p *UsbPort) Write(data []byte, timeoutMs uint) error {
	if timeoutMs >= maxUsbTimeoutMs {
		return FatalError(fmt.Sprintf("write timeout %d ms exceeds the %d ms ceiling",
			timeoutMs, maxUsbTimeoutMs))
	}

	if len(data) == 0 {
		return nil
	}

	if p.config == nil || !p.outReady {
		return FatalError("write to USB port with no open OUT endpoint")
	}

	intf, err := p.config.Interface(0, 0)
	if err != nil {
		return MinorError(CodeBusy, "could not claim interface for write: "+err.Error())
	}
	defer intf.Close()

	endpoint, err := intf.OutEndpoint(int(p.endpoint))
	if err != nil {
		return FatalError("OUT endpoint vanished after open: " + err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	written, err := endpoint.WriteContext(ctx, data)

	logger.Tracef("wrote %d of %d bytes to endpoint %02x", written, len(data), p.endpoint|usbEndpointOut)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && written == 0 {
			return MinorError(CodeTimeout,
				fmt.Sprintf("write of %d bytes timed out after %d ms", len(data), timeoutMs))
		}
		return MajorError(CodeShortWrite, "write to USB device failed: "+err.Error())
	}

	if written < len(data) {
		return MinorError(CodeShortWrite,
			fmt.Sprintf("incomplete write to USB device: sent %d of %d bytes", written, len(data)))
	}

	return nil
}

// Close releases both endpoint directions. It may be called repeatedly.
func (p *UsbPort) Close() error {
	p.outReady = false
	p.inReady = false

	if p.config != nil {
		if err := p.config.Close(); err != nil {
			logger.Warn("error closing USB configuration: ", err)
		}
		p.config = nil
	}

	if p.device != nil {
		logger.Debugf("closing USB device [%04x:%04x]", uint16(p.vid), uint16(p.pid))
		if err := p.device.Close(); err != nil {
			p.device = nil
			return MinorError(CodeOpenFailed, "error closing USB device: "+err.Error())
		}
		p.device = nil
	}

	return nil
}
