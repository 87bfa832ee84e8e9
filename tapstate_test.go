// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package xstools

import "testing"

// The full IEEE 1149.1 next-state table, written out independently of the
// table in tapstate.go.
func TestNextTapStateTable(t *testing.T) {
	cases := []struct {
		current TapState
		onZero  TapState
		onOne   TapState
	}{
		{InvalidTapState, InvalidTapState, InvalidTapState},
		{TestLogicReset, RunTestIdle, TestLogicReset},
		{RunTestIdle, RunTestIdle, SelectDRScan},
		{SelectDRScan, CaptureDR, SelectIRScan},
		{SelectIRScan, CaptureIR, TestLogicReset},
		{CaptureDR, ShiftDR, Exit1DR},
		{CaptureIR, ShiftIR, Exit1IR},
		{ShiftDR, ShiftDR, Exit1DR},
		{ShiftIR, ShiftIR, Exit1IR},
		{Exit1DR, PauseDR, UpdateDR},
		{Exit1IR, PauseIR, UpdateIR},
		{PauseDR, PauseDR, Exit2DR},
		{PauseIR, PauseIR, Exit2IR},
		{Exit2DR, ShiftDR, UpdateDR},
		{Exit2IR, ShiftIR, UpdateIR},
		{UpdateDR, RunTestIdle, SelectDRScan},
		{UpdateIR, RunTestIdle, SelectDRScan},
	}

	if len(cases) != 17 {
		t.Fatalf("expected all 17 states covered, have %d", len(cases))
	}

	for _, tc := range cases {
		if got := NextTapState(tc.current, false); got != tc.onZero {
			t.Errorf("NextTapState(%v, 0) = %v, want %v", tc.current, got, tc.onZero)
		}
		if got := NextTapState(tc.current, true); got != tc.onOne {
			t.Errorf("NextTapState(%v, 1) = %v, want %v", tc.current, got, tc.onOne)
		}
	}
}

func TestFiveTmsOnesReachTestLogicReset(t *testing.T) {
	for state := TestLogicReset; state <= UpdateIR; state++ {
		current := state
		for i := 0; i < 5; i++ {
			current = NextTapState(current, true)
		}
		if current != TestLogicReset {
			t.Errorf("five TMS=1 from %v ended in %v", state, current)
		}
	}
}

func TestTapStateLabels(t *testing.T) {
	cases := []struct {
		state TapState
		label string
	}{
		{TestLogicReset, "Test-Logic-Reset"},
		{RunTestIdle, "Run-Test/Idle"},
		{ShiftDR, "Shift-DR"},
		{Exit1IR, "Exit1-IR"},
		{UpdateIR, "Update-IR"},
	}

	for _, tc := range cases {
		if got := tc.state.String(); got != tc.label {
			t.Errorf("%d.String() = %q, want %q", tc.state, got, tc.label)
		}
	}
}
