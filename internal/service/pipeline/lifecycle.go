// Package pipeline runs one dialog analysis request end to end: decoding,
// recognition, spectral analysis and dialog assembly.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of an analysis request.
type State int

const (
	// StateCollecting - Audio is being fed to the recognizer.
	StateCollecting State = iota
	// StateFinalizing - Input is exhausted, waiting for the final result.
	StateFinalizing
	// StateAnalyzing - Results are being measured against the frame store.
	StateAnalyzing
	// StateAssembling - Utterances are being turned into dialog turns.
	StateAssembling
	// StateDone - The dialog result was produced.
	StateDone
	// StateFailed - The request was abandoned. No result is produced.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCollecting:
		return "COLLECTING"
	case StateFinalizing:
		return "FINALIZING"
	case StateAnalyzing:
		return "ANALYZING"
	case StateAssembling:
		return "ASSEMBLING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (DONE or FAILED).
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Errors for invalid state transitions.
var (
	ErrRequestClosed     = errors.New("analysis request is closed")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Lifecycle manages the state machine for a single analysis request.
// Thread-safe for concurrent access: recognizer callbacks may run on their
// own goroutine.
//
// State transitions:
//
//	COLLECTING → FINALIZING → ANALYZING → ASSEMBLING → DONE
//	     │            │            │            │
//	     └────────────┴────────────┴────────────┴──→ FAILED
//
// Stages only move forward one step at a time. FAILED is reachable from any
// non-terminal state and records the first failure.
type Lifecycle struct {
	mu         sync.RWMutex
	analysisID string
	state      State
	failure    error
}

// NewLifecycle creates a new lifecycle in COLLECTING state.
func NewLifecycle(analysisID string) *Lifecycle {
	return &Lifecycle{
		analysisID: analysisID,
		state:      StateCollecting,
	}
}

// AnalysisID returns the request ID.
func (l *Lifecycle) AnalysisID() string {
	return l.analysisID
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Err returns the failure recorded by Fail, if any.
func (l *Lifecycle) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.failure
}

// CanCollect returns true while recognizer output is still accepted.
func (l *Lifecycle) CanCollect() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateCollecting || l.state == StateFinalizing
}

// IsClosed returns true if the request is in a terminal state.
func (l *Lifecycle) IsClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// IsFailed returns true if the request was abandoned.
func (l *Lifecycle) IsFailed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateFailed
}

// Advance moves to the next stage. to must be exactly one step ahead of the
// current state.
func (l *Lifecycle) Advance(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return ErrRequestClosed
	}
	if to != l.state+1 || to > StateDone {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, l.state, to)
	}
	l.state = to
	return nil
}

// Fail abandons the request. Returns true if the request was failed by this
// call, false if it was already terminal.
func (l *Lifecycle) Fail(err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return false
	}
	l.state = StateFailed
	l.failure = err
	return true
}
