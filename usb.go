// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package xstools

import (
	"github.com/google/gousb"
)

var usbCtx *gousb.Context = nil

// InitializeUSB brings up the libusb context shared by all ports.
func InitializeUSB() error {
	if usbCtx == nil {
		usbCtx = gousb.NewContext()

		logger.Debug("initialized libusb context")
		return nil
	}

	logger.Warn("USB already initialized")
	return nil
}

// CloseUSB tears down the shared libusb context.
func CloseUSB() {
	if usbCtx != nil {
		usbCtx.Close()
		usbCtx = nil
	} else {
		logger.Warn("could not close uninitialized usb context")
	}
}

// usbFindDevices opens every connected device matching the given vendor
// and product ID. The caller owns the returned devices and must close the
// ones it does not keep.
func usbFindDevices(vid gousb.ID, pid gousb.ID) ([]*gousb.Device, error) {
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == vid && desc.Product == pid {
			logger.Infof("found USB device [%04x:%04x] on bus %03d:%03d",
				uint16(desc.Vendor), uint16(desc.Product), desc.Bus, desc.Address)
			return true
		}
		return false
	})

	if err != nil {
		// OpenDevices can report access errors for unrelated devices
		// while still returning usable matches.
		logger.Debug("got error during usb device scan: ", err)
	}

	logger.Debugf("found %d devices matching [%04x:%04x]", len(devices), uint16(vid), uint16(pid))
	return devices, nil
}
