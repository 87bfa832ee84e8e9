// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Smoke test for the XSUSB bulk endpoint pair: open the bridge, pulse TCK
// a few times through the run-test command, and check the echo comes back.

package main

import (
	"flag"

	xstools "github.com/xesscorp/XSTOOLs"
	log "github.com/sirupsen/logrus"
)

func main() {
	flagInstance := flag.Uint("instance", 0, "XSUSB device instance")
	flagVerbose := flag.Bool("v", false, "enable debug output")
	flag.Parse()

	if *flagVerbose {
		log.SetLevel(log.DebugLevel)
	}

	log.Info("Starting XSUSB bulk port test...")

	if err := xstools.InitializeUSB(); err != nil {
		log.Panic(err)
	}
	defer xstools.CloseUSB()

	port := xstools.NewUsbPort(xstools.DefaultUsbConfig(*flagInstance))

	if err := port.Open(3); err != nil {
		log.Fatal("Could not open any XSUSB bridge on your computer: ", err)
	}
	defer port.Close()

	log.Info("Found an XSUSB bridge on your computer! :)")

	jtag := xstools.NewJtagPort(port)

	if err := jtag.ResetTap(); err != nil {
		log.Fatal("TAP reset failed: ", err)
	}

	if err := jtag.RunTest(16); err != nil {
		log.Fatal("Run-test echo check failed: ", err)
	}

	log.Info("Run-test echo received, bulk endpoints are alive")
}
