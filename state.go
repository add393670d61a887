package fiberloop

import (
	"sync/atomic"
)

// LoopState represents the current state of a Loop.
//
// State Machine:
//
//	StateAwake (0) → StateRunning (3)        [Run(), via TryTransition]
//	StateRunning (3) → StateSleeping (2)     [before Poller.Wait, via Store]
//	StateSleeping (2) → StateRunning (3)     [after Poller.Wait, via Store]
//	StateRunning (3) → StateTerminated (1)   [Run returns, via Store]
//	StateTerminated (1) → (terminal)
//
// State Transition Rules:
//   - Run enters Running with TryTransition() (CAS) from Awake, so a second
//     concurrent Run fails
//   - Every other transition is a plain Store() made by the goroutine
//     executing Run
//   - Loop never stores StateTerminating
type LoopState uint64

const (
	// StateAwake indicates the loop has been created but Run has not been
	// called yet.
	StateAwake LoopState = 0
	// StateTerminated indicates the loop has finished running: Run has
	// returned (background fibers may still be parked).
	StateTerminated LoopState = 1
	// StateSleeping indicates the scheduler has no runnable fiber and the
	// loop is blocked in the poller waiting for I/O readiness or a timer.
	StateSleeping LoopState = 2
	// StateRunning indicates a fiber is executing or the scheduler is
	// actively choosing the next one to run.
	StateRunning LoopState = 3
	// StateTerminating names a shutting-down state. Loop never stores it
	// (Close does not change the state), so Load does not report it for a
	// Loop's own state.
	StateTerminating LoopState = 4
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// FastState is a lock-free state machine with cache-line padding, used by
// Loop to track its own lifecycle across goroutines (the owning goroutine
// and any fiber/worker goroutine that observes Close).
type FastState struct { // betteralign:ignore
	_ [64]byte      // Cache line padding (before value) //nolint:unused
	v atomic.Uint64 // State value
	_ [56]byte      // Pad to complete cache line (64 - 8 = 56) //nolint:unused
}

// NewFastState creates a new state machine in the Awake state.
func NewFastState() *FastState {
	s := &FastState{}
	s.v.Store(uint64(StateAwake))
	return s
}

// Load returns the current state atomically.
func (s *FastState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store atomically stores a new state, bypassing transition validation.
func (s *FastState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to another.
// Returns true if the transition was successful.
func (s *FastState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// TransitionAny attempts to transition from any valid source state to the target.
// Returns true if the transition was successful.
func (s *FastState) TransitionAny(validFrom []LoopState, to LoopState) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint64(from), uint64(to)) {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the current state is terminal (Terminated).
func (s *FastState) IsTerminal() bool {
	return s.Load() == StateTerminated
}

// IsRunning returns true if the loop is currently running or sleeping in
// the poller.
func (s *FastState) IsRunning() bool {
	state := s.Load()
	return state == StateRunning || state == StateSleeping
}

// CanAcceptWork returns true if the loop can accept new fibers or I/O
// registrations.
func (s *FastState) CanAcceptWork() bool {
	state := s.Load()
	return state == StateAwake || state == StateRunning || state == StateSleeping
}
