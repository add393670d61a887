package fiberloop

// fiberState is a Fiber's position in the scheduler's bookkeeping, per the
// lifecycle table in spec §4.1.
type fiberState int

const (
	fiberRunnable fiberState = iota
	fiberRunning
	fiberSuspended
)

func (s fiberState) String() string {
	switch s {
	case fiberRunnable:
		return "runnable"
	case fiberRunning:
		return "running"
	case fiberSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Fiber is a non-owning handle to a user-space thread of execution. The
// Scheduler exclusively owns the underlying bookkeeping; a Fiber handle
// remains valid only until its entry closure returns or is interrupted to
// completion (spec §3 "Fiber", Ownership).
type Fiber struct {
	record    *fiberRecord
	scheduler *Scheduler
}

// Background reports whether this fiber is excluded from the "are there
// foreground fibers left" check that ends Scheduler.Run/Loop.Run (spec
// §4.6, "Background fibers").
func (f *Fiber) Background() bool {
	return f.record.background
}

// StackSize returns the rounded stack-size hint this fiber was created
// with (see roundStackSize); Go goroutines grow their own stacks, so this
// value is informational only.
func (f *Fiber) StackSize() int {
	return f.record.stackSize
}

// Yield cooperatively hands control to the next runnable fiber (spec §4.1
// "current_fiber_yields"). This fiber keeps its existing position in the
// runnable order — it is not moved to the tail — so yielding round-robins
// through whatever fibers were already runnable rather than letting a
// fast-yielding fiber cut back in ahead of one created just before it. It
// returns once this fiber is rescheduled.
func (f *Fiber) Yield() {
	f.scheduler.yieldCurrent(f)
}

// Interrupt requests that this fiber's current or next suspension point
// unwind via a panic carrying *CancellationError with the given reason
// (spec §4.1 "interrupt_fiber"). If the fiber is currently Suspended,
// Interrupt switches into it before returning, so the target has already
// observed the interrupt and unwound by the time Interrupt returns (see
// Scheduler.Interrupt).
func (f *Fiber) Interrupt(reason string) {
	f.scheduler.Interrupt(f, reason)
}
