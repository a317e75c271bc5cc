package pipeline

import (
	"errors"
	"testing"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle("an-1")

	if lc.State() != StateCollecting {
		t.Errorf("expected StateCollecting, got %v", lc.State())
	}
	if lc.AnalysisID() != "an-1" {
		t.Errorf("expected an-1, got %v", lc.AnalysisID())
	}
	if !lc.CanCollect() {
		t.Error("expected CanCollect to be true")
	}
	if lc.IsClosed() {
		t.Error("expected IsClosed to be false")
	}
	if lc.Err() != nil {
		t.Errorf("expected no error, got %v", lc.Err())
	}
}

func TestLifecycle_FullCycle(t *testing.T) {
	lc := NewLifecycle("an-1")

	for _, to := range []State{StateFinalizing, StateAnalyzing, StateAssembling, StateDone} {
		if err := lc.Advance(to); err != nil {
			t.Fatalf("advance to %s: unexpected error: %v", to, err)
		}
		if lc.State() != to {
			t.Fatalf("expected %s, got %s", to, lc.State())
		}
	}

	if !lc.IsClosed() {
		t.Error("expected IsClosed after DONE")
	}
	if lc.IsFailed() {
		t.Error("expected IsFailed to be false after DONE")
	}
}

func TestLifecycle_CanCollect_WhileFinalizing(t *testing.T) {
	lc := NewLifecycle("an-1")
	_ = lc.Advance(StateFinalizing)

	// The final result arrives during FINALIZING.
	if !lc.CanCollect() {
		t.Error("expected CanCollect while finalizing")
	}

	_ = lc.Advance(StateAnalyzing)
	if lc.CanCollect() {
		t.Error("expected CanCollect to be false while analyzing")
	}
}

func TestLifecycle_Advance_RejectsSkips(t *testing.T) {
	lc := NewLifecycle("an-1")

	err := lc.Advance(StateAnalyzing)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if lc.State() != StateCollecting {
		t.Errorf("state should be unchanged, got %v", lc.State())
	}
}

func TestLifecycle_Advance_RejectsBackwards(t *testing.T) {
	lc := NewLifecycle("an-1")
	_ = lc.Advance(StateFinalizing)

	if err := lc.Advance(StateCollecting); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestLifecycle_Advance_CannotReachFailed(t *testing.T) {
	lc := NewLifecycle("an-1")
	for _, to := range []State{StateFinalizing, StateAnalyzing, StateAssembling, StateDone} {
		_ = lc.Advance(to)
	}
	if err := lc.Advance(StateFailed); err != ErrRequestClosed {
		t.Errorf("expected ErrRequestClosed, got %v", err)
	}
}

func TestLifecycle_Fail_FromEveryStage(t *testing.T) {
	stages := []State{StateCollecting, StateFinalizing, StateAnalyzing, StateAssembling}

	for i, stage := range stages {
		t.Run(stage.String(), func(t *testing.T) {
			lc := NewLifecycle("an-1")
			for _, to := range stages[1 : i+1] {
				_ = lc.Advance(to)
			}
			cause := errors.New("boom")

			if !lc.Fail(cause) {
				t.Fatal("expected Fail to return true")
			}
			if lc.State() != StateFailed {
				t.Errorf("expected StateFailed, got %v", lc.State())
			}
			if lc.Err() != cause {
				t.Errorf("expected recorded cause, got %v", lc.Err())
			}
		})
	}
}

func TestLifecycle_Fail_KeepsFirstError(t *testing.T) {
	lc := NewLifecycle("an-1")
	first := errors.New("first")

	lc.Fail(first)
	if lc.Fail(errors.New("second")) {
		t.Error("second Fail should return false")
	}
	if lc.Err() != first {
		t.Errorf("expected first error kept, got %v", lc.Err())
	}
}

func TestLifecycle_Fail_AfterDone(t *testing.T) {
	lc := NewLifecycle("an-1")
	for _, to := range []State{StateFinalizing, StateAnalyzing, StateAssembling, StateDone} {
		_ = lc.Advance(to)
	}

	if lc.Fail(errors.New("late")) {
		t.Error("Fail should return false after DONE")
	}
	if lc.State() != StateDone {
		t.Errorf("expected StateDone, got %v", lc.State())
	}
}

func TestLifecycle_OperationsFailAfterFail(t *testing.T) {
	lc := NewLifecycle("an-1")
	lc.Fail(errors.New("boom"))

	if err := lc.Advance(StateFinalizing); err != ErrRequestClosed {
		t.Errorf("expected ErrRequestClosed, got %v", err)
	}
	if lc.CanCollect() {
		t.Error("expected CanCollect to be false after failure")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateCollecting, "COLLECTING"},
		{StateFinalizing, "FINALIZING"},
		{StateAnalyzing, "ANALYZING"},
		{StateAssembling, "ASSEMBLING"},
		{StateDone, "DONE"},
		{StateFailed, "FAILED"},
		{State(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.expected)
		}
	}
}

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
	}{
		{StateCollecting, false},
		{StateFinalizing, false},
		{StateAnalyzing, false},
		{StateAssembling, false},
		{StateDone, true},
		{StateFailed, true},
	}

	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}
