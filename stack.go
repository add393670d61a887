package fiberloop

import "sync"

// minStackSize is the floor every requested fiber stack size is clamped to
// before rounding, mirroring the original scheduler's MinFiberSize (4 KiB).
const minStackSize = 4096

// roundStackSize clamps size up to minStackSize and rounds it up to the
// next power of two, the Go analogue of the original Scheduler's use of
// NextPowerOfTwo on every fiber-size request (spec "next_power_of_two.h",
// folded in here per the stack-size rounding helper this package needs).
// Go goroutines do not take an explicit stack size — the runtime grows
// goroutine stacks on demand — so the rounded value is carried only as a
// hint recorded on the fiber record (Fiber.StackSize) for callers that want
// to reason about it (e.g. sizing a read buffer to match), not used to
// preallocate memory.
func roundStackSize(size int) int {
	if size < minStackSize {
		size = minStackSize
	}
	return int(nextPowerOfTwo(uint64(size)))
}

// fiberRecord is the scheduler's internal bookkeeping for one fiber: the
// rendezvous channel used to hand the baton to its goroutine,
// plus the lifecycle fields spec §3 attaches to a Fiber. It is the Go
// analogue of detail::Fiber in the original scheduler.
type fiberRecord struct {
	listNode

	resumeCh chan struct{} // holds the baton: signalled when this fiber may run
	started  bool          // whether its goroutine has been spawned yet

	entry      func(*Fiber)
	stackSize  int
	background bool
	handle     *Fiber

	state fiberState

	// interruptPending/interruptReason collapse the original's separate
	// pre-run/post-run cancellation bits (spec §4.1) into one flag, which
	// every suspension point checks immediately after being woken (not
	// before blocking). A fiber that is Suspended when
	// interrupted is switched into synchronously (see Scheduler.Interrupt),
	// so it observes the flag at the "just resumed" check without waiting
	// for its natural turn — preserving the synchronous-from-the-caller's-
	// perspective guarantee the original's pre-run bit provided.
	interruptPending bool
	interruptReason  string

	exitErr any // never set: a panic other than *CancellationError is kept in Scheduler.pendingErr

	seq uint64 // creation order, assigned by CreateFiber and not read anywhere
}

// fiberRecordPool is a free-list of fiberRecord values, reused across fiber
// exit/create cycles so a busy loop doesn't allocate a fresh channel
// for every fiber. This supplements the original's memory_pool.h/
// object_pool.h intent (avoid allocation churn) within Go's GC model: we
// cannot reuse the goroutine itself (a Go goroutine that returns is gone
// for good), but the channels and the record are cheap to keep and clear.
type fiberRecordPool struct {
	mu   sync.Mutex
	free []*fiberRecord
}

func (p *fiberRecordPool) get() *fiberRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		r := p.free[n-1]
		p.free = p.free[:n-1]
		return r
	}
	r := &fiberRecord{
		resumeCh: make(chan struct{}),
	}
	r.listNode.owner = r
	return r
}

func (p *fiberRecordPool) put(r *fiberRecord) {
	r.entry = nil
	r.stackSize = 0
	r.background = false
	r.handle = nil
	r.started = false
	r.state = 0
	r.interruptPending = false
	r.interruptReason = ""
	r.exitErr = nil
	r.seq = 0
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, r)
}
