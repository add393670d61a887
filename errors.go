// Package fiberloop error taxonomy. Contract violations use plain sentinel
// errors; cancellation and worker-side failures carry a cause chain so
// callers can use errors.Is/errors.As, the same shape the teacher package's
// PanicError/AggregateError pair uses.
package fiberloop

import (
	"errors"
	"fmt"
)

// Sentinel errors for contract violations and lifecycle misuse.
var (
	// ErrLoopAlreadyRunning is returned when Run is called on a running loop.
	ErrLoopAlreadyRunning = errors.New("fiberloop: loop is already running")
	// ErrLoopTerminated is returned by Run when the loop has already
	// finished running. Other Loop methods do not check for it.
	ErrLoopTerminated = errors.New("fiberloop: loop has been terminated")
	// ErrReentrantRun names the misuse of calling Run from within a fiber
	// running on the same loop. No function in this package returns it: such
	// a call finds the loop running and gets ErrLoopAlreadyRunning.
	ErrReentrantRun = errors.New("fiberloop: cannot call Run from within the loop")

	// ErrFDAlreadyRegistered is returned by RegisterFD on a double-register.
	ErrFDAlreadyRegistered = errors.New("fiberloop: fd already registered")
	// ErrFDNotRegistered is returned when an operation references an fd
	// that was never registered (or was already unregistered).
	ErrFDNotRegistered = errors.New("fiberloop: fd not registered")

	// ErrWouldBlock mirrors EAGAIN for a zero-timeout non-blocking probe
	// that did not find the operation ready.
	ErrWouldBlock = errors.New("fiberloop: operation would block")
	// ErrTimeout is surfaced (as an EAGAIN-equivalent) when a timer
	// installed alongside a blocking operation fires first.
	ErrTimeout = errors.New("fiberloop: operation timed out")

	// ErrQueueNotEmpty names the destruction invariant in spec §3/§4.2:
	// an Event's or Semaphore's wait-queue must be empty on teardown. No
	// function in this package returns it; Event.HasWaiters reports the
	// condition for callers that check it.
	ErrQueueNotEmpty = errors.New("fiberloop: wait-queue is not empty")

	// ErrPoolStopped is returned by ThreadPool.Submit after Close.
	ErrPoolStopped = errors.New("fiberloop: thread pool is stopped")
	// ErrTaskCancelled is the result error of a task TryCancel won the
	// race against a worker claiming it.
	ErrTaskCancelled = errors.New("fiberloop: task cancelled before it ran")

	// ErrTruncatedVarint is returned by Decoder when the buffer ends in
	// the middle of an encoded value.
	ErrTruncatedVarint = errors.New("fiberloop: truncated varint")
)

// CancellationError is the panic value delivered to an interrupted fiber.
// It propagates through ordinary deferred cleanup exactly like an exception
// would in the reference implementation's host language (spec §4.1); the
// fiber trampoline recovers it and does not treat it as an escaped panic.
type CancellationError struct {
	// Reason is an optional human-readable description of why the fiber
	// was interrupted.
	Reason string
}

func (e *CancellationError) Error() string {
	if e.Reason == "" {
		return "fiberloop: fiber interrupted"
	}
	return "fiberloop: fiber interrupted: " + e.Reason
}

// IsCancellation reports whether err (or something it wraps) is a
// *CancellationError.
func IsCancellation(err error) bool {
	var c *CancellationError
	return errors.As(err, &c)
}

// AsyncError wraps a panic value raised by a task running on a ThreadPool
// worker. It is re-raised (via panic, from the submitting fiber's
// perspective) when the submitting fiber resumes, mirroring the "worker-side
// error" row of spec §7.
type AsyncError struct {
	// Value is the raw value passed to panic() on the worker.
	Value any
}

func (e *AsyncError) Error() string {
	if err, ok := e.Value.(error); ok {
		return fmt.Sprintf("fiberloop: async task failed: %v", err)
	}
	return fmt.Sprintf("fiberloop: async task failed: %v", e.Value)
}

// Unwrap returns the underlying error if Value is itself an error,
// enabling errors.Is/errors.As through the worker boundary.
func (e *AsyncError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// WrapError wraps err with a message, preserving the chain for errors.Is.
func WrapError(message string, err error) error {
	return fmt.Errorf("%s: %w", message, err)
}
