// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package xstools

import "fmt"

// TapState identifies a state of the IEEE 1149.1 TAP controller, plus a
// sentinel for the unknown state before the first reset.
type TapState uint8

const (
	InvalidTapState TapState = iota
	TestLogicReset
	RunTestIdle
	SelectDRScan
	SelectIRScan
	CaptureDR
	CaptureIR
	ShiftDR
	ShiftIR
	Exit1DR
	Exit1IR
	PauseDR
	PauseIR
	Exit2DR
	Exit2IR
	UpdateDR
	UpdateIR
)

// nextTapState is the TAP controller transition table, indexed by the
// current state and the TMS bit value.
var nextTapState = [17][2]TapState{
	//  TMS=0           TMS=1            CURRENT STATE
	{InvalidTapState, InvalidTapState}, // InvalidTapState
	{RunTestIdle, TestLogicReset},      // TestLogicReset
	{RunTestIdle, SelectDRScan},        // RunTestIdle
	{CaptureDR, SelectIRScan},          // SelectDRScan
	{CaptureIR, TestLogicReset},        // SelectIRScan
	{ShiftDR, Exit1DR},                 // CaptureDR
	{ShiftIR, Exit1IR},                 // CaptureIR
	{ShiftDR, Exit1DR},                 // ShiftDR
	{ShiftIR, Exit1IR},                 // ShiftIR
	{PauseDR, UpdateDR},                // Exit1DR
	{PauseIR, UpdateIR},                // Exit1IR
	{PauseDR, Exit2DR},                 // PauseDR
	{PauseIR, Exit2IR},                 // PauseIR
	{ShiftDR, UpdateDR},                // Exit2DR
	{ShiftIR, UpdateIR},                // Exit2IR
	{RunTestIdle, SelectDRScan},        // UpdateDR
	{RunTestIdle, SelectDRScan},        // UpdateIR
}

// NextTapState looks up the state reached by clocking TCK once with the
// given TMS value.
func NextTapState(current TapState, tms bool) TapState {
	if current > UpdateIR {
		return InvalidTapState
	}
	if tms {
		return nextTapState[current][1]
	}
	return nextTapState[current][0]
}

var tapStateLabels = map[TapState]string{
	TestLogicReset: "Test-Logic-Reset",
	RunTestIdle:    "Run-Test/Idle",
	SelectDRScan:   "Select-DR-Scan",
	SelectIRScan:   "Select-IR-Scan",
	CaptureDR:      "Capture-DR",
	CaptureIR:      "Capture-IR",
	ShiftDR:        "Shift-DR",
	ShiftIR:        "Shift-IR",
	Exit1DR:        "Exit1-DR",
	Exit1IR:        "Exit1-IR",
	PauseDR:        "Pause-DR",
	PauseIR:        "Pause-IR",
	Exit2DR:        "Exit2-DR",
	Exit2IR:        "Exit2-IR",
	UpdateDR:       "Update-DR",
	UpdateIR:       "Update-IR",
}

func (s TapState) String() string {
	if label, ok := tapStateLabels[s]; ok {
		return label
	}
	if s == InvalidTapState {
		return "Invalid"
	}
	return fmt.Sprintf("TapState(%d)", uint8(s))
}
