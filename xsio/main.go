// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// xsio is a command-line front end for the HostIO modules of an FPGA
// board attached through an XSUSB bridge.

package main

import (
	"fmt"
	"os"
	"strconv"

	xstools "github.com/xesscorp/XSTOOLs"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	flagInstance uint
	flagModule   uint8
	flagVerbose  bool
)

func setUpLogger() {
	log.SetFormatter(&prefixed.TextFormatter{
		FullTimestamp: true,
	})
	if flagVerbose {
		log.SetLevel(log.TraceLevel)
	}
	xstools.SetLogger(log.StandardLogger())
}

var rootCmd = &cobra.Command{
	Use:   "xsio",
	Short: "Talk to HostIO modules in an FPGA over an XSUSB JTAG bridge",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setUpLogger()
	},
}

var memCmd = &cobra.Command{
	Use:   "mem",
	Short: "Access a memory-mapped module",
}

var memSizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Report the address and data widths of the memory module",
	RunE: func(cmd *cobra.Command, args []string) error {
		memIo, err := xstools.MemInit(flagInstance, flagModule)
		if err != nil {
			return err
		}
		defer memIo.Close()

		fmt.Printf("address width: %d bits\ndata width:    %d bits\n",
			memIo.AddressWidth(), memIo.DataWidth())
		return nil
	},
}

var memReadCount uint

var memReadCmd = &cobra.Command{
	Use:   "read <address>",
	Short: "Read one or more words from the memory module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return err
		}

		memIo, err := xstools.MemInit(flagInstance, flagModule)
		if err != nil {
			return err
		}
		defer memIo.Close()

		values, status := xstools.MemRead(memIo, address, memReadCount)
		if status != xstools.StatusSuccess {
			return fmt.Errorf("memory read failed with status %d: %v", status, memIo.LastError())
		}

		for i, value := range values {
			fmt.Printf("0x%0*x: 0x%0*x\n",
				(memIo.AddressWidth()+3)/4, address+uint64(i),
				(memIo.DataWidth()+3)/4, value)
		}
		return nil
	},
}

var memWriteCmd = &cobra.Command{
	Use:   "write <address> <value>...",
	Short: "Write words to sequential addresses of the memory module",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return err
		}

		values := make([]uint64, 0, len(args)-1)
		for _, arg := range args[1:] {
			value, err := strconv.ParseUint(arg, 0, 64)
			if err != nil {
				return err
			}
			values = append(values, value)
		}

		memIo, err := xstools.MemInit(flagInstance, flagModule)
		if err != nil {
			return err
		}
		defer memIo.Close()

		if status := xstools.MemWrite(memIo, address, values); status != xstools.StatusSuccess {
			return fmt.Errorf("memory write failed with status %d: %v", status, memIo.LastError())
		}
		return nil
	},
}

var dutCmd = &cobra.Command{
	Use:   "dut",
	Short: "Access a device-under-test module",
}

var dutSizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Report the input and output vector widths of the DUT",
	RunE: func(cmd *cobra.Command, args []string) error {
		dutIo, err := xstools.DutInit(flagInstance, flagModule)
		if err != nil {
			return err
		}
		defer dutIo.Close()

		fmt.Printf("input width:  %d bits\noutput width: %d bits\n",
			dutIo.InputWidth(), dutIo.OutputWidth())
		return nil
	},
}

var dutReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Read the DUT output vector",
	RunE: func(cmd *cobra.Command, args []string) error {
		dutIo, err := xstools.DutInit(flagInstance, flagModule)
		if err != nil {
			return err
		}
		defer dutIo.Close()

		result, err := dutIo.Read()
		if err != nil {
			return err
		}

		fmt.Println(result)
		return nil
	},
}

var dutWriteCmd = &cobra.Command{
	Use:   "write <bits>",
	Short: "Force a binary vector onto the DUT inputs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dutIo, err := xstools.DutInit(flagInstance, flagModule)
		if err != nil {
			return err
		}
		defer dutIo.Close()

		return dutIo.Write(xstools.BitStreamFromString(args[0]))
	},
}

var runtestCount uint32

var runtestCmd = &cobra.Command{
	Use:   "runtest",
	Short: "Pulse TCK a number of times and verify the device echo",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := xstools.NewUsbPort(xstools.DefaultUsbConfig(flagInstance))
		if err := port.Open(1); err != nil {
			return err
		}
		defer port.Close()

		return xstools.NewJtagPort(port).RunTest(runtestCount)
	},
}

func main() {
	rootCmd.PersistentFlags().UintVar(&flagInstance, "instance", 0, "XSUSB device instance")
	rootCmd.PersistentFlags().Uint8Var(&flagModule, "module", xstools.DefaultModuleID, "HostIO module id")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable wire-level trace output")

	memReadCmd.Flags().UintVarP(&memReadCount, "count", "n", 1, "number of words to read")
	runtestCmd.Flags().Uint32VarP(&runtestCount, "count", "n", 1, "number of TCK pulses")

	memCmd.AddCommand(memSizeCmd, memReadCmd, memWriteCmd)
	dutCmd.AddCommand(dutSizeCmd, dutReadCmd, dutWriteCmd)
	rootCmd.AddCommand(memCmd, dutCmd, runtestCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
