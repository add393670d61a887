package fiberloop

import "golang.org/x/sys/unix"

// Async bridges fibers and a ThreadPool (spec §4.7 "Async"). Completions
// arrive on a ThreadPool worker goroutine, but triggering the Event a fiber
// is waiting on mutates scheduler-owned state that only a fiber (or Loop.Run
// itself, between fibers) may safely touch (spec §9, "single-threaded"): no
// code outside that world is allowed to call resumeFiber or Event.Trigger
// directly. So the notifier goroutine does no scheduler work at all — it
// only forwards each completed task onto a Loop-exclusive channel and writes
// a byte to a self-pipe, the Go analogue of the original runtime's
// eventfd-signalled worker pool. NewLoop registers the pipe's read end and
// spawns a background fiber (spec §4.6 "Background fibers") whose entry
// blocks in Loop.Read on it; each wakeup calls DispatchCompleted, which does
// the actual, safe Event triggering from fiber context.
type Async struct {
	scheduler *Scheduler
	pool      *ThreadPool
	pending   map[*poolTask]*Event

	ready      chan *poolTask
	notifyR    int
	notifyW    int
	notifyDone chan struct{}
}

// NewAsync wires scheduler to pool and starts the background notifier
// goroutine. The caller (Loop) is responsible for registering NotifyFD and
// calling DispatchCompleted whenever it becomes readable — NewLoop does
// both, via the Async background fiber.
func NewAsync(scheduler *Scheduler, pool *ThreadPool) (*Async, error) {
	r, w, err := unix.Pipe()
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(r, true); err != nil {
		_ = unix.Close(r)
		_ = unix.Close(w)
		return nil, err
	}
	if err := unix.SetNonblock(w, true); err != nil {
		_ = unix.Close(r)
		_ = unix.Close(w)
		return nil, err
	}

	a := &Async{
		scheduler:  scheduler,
		pool:       pool,
		pending:    make(map[*poolTask]*Event),
		ready:      make(chan *poolTask, 64),
		notifyR:    r,
		notifyW:    w,
		notifyDone: make(chan struct{}),
	}
	go a.notify()
	return a, nil
}

// notify forwards each completed task onto ready and pokes the self-pipe.
// The write is best-effort: EAGAIN just means a wakeup is already pending
// and undrained, which is exactly the coalescing a self-pipe is for. It
// exits once pool.Completed() closes, i.e. after ThreadPool.Close.
func (a *Async) notify() {
	defer close(a.notifyDone)
	for t := range a.pool.Completed() {
		a.ready <- t
		_, _ = unix.Write(a.notifyW, []byte{0})
	}
	close(a.ready)
}

// NotifyFD returns the self-pipe's read end, for the Loop to register and
// read from its background fiber.
func (a *Async) NotifyFD() int {
	return a.notifyR
}

// DispatchCompleted drains the self-pipe and every already-completed task
// without blocking, triggering the Event each submitter is waiting on. It
// must only be called from fiber context; NewLoop's Async background fiber
// is the only caller.
func (a *Async) DispatchCompleted() {
	var discard [64]byte
	for {
		if _, err := unix.Read(a.notifyR, discard[:]); err != nil {
			break
		}
	}
	for {
		select {
		case t, ok := <-a.ready:
			if !ok {
				return
			}
			if ev, found := a.pending[t]; found {
				delete(a.pending, t)
				ev.Trigger()
			}
		default:
			return
		}
	}
}

// Close releases the self-pipe. The caller must close the ThreadPool first
// so the notifier goroutine has run to completion.
func (a *Async) Close() error {
	<-a.notifyDone
	errW := unix.Close(a.notifyW)
	errR := unix.Close(a.notifyR)
	if errW != nil {
		return errW
	}
	return errR
}

// Call runs fn on a ThreadPool worker, suspending the calling fiber until
// it completes, then returns fn's result or panics with *AsyncError if fn
// panicked on the worker (spec §7, "worker-side error"). If the calling
// fiber is interrupted while the task is still queued, Call cancels the
// submission and re-raises the interrupt immediately; if the task has
// already been claimed by a worker, Call instead waits for it to finish
// (so its result/cleanup is never silently dropped) and only then
// re-raises the interrupt it deferred — matching the original's "defer the
// interrupt, self-interrupt after reaping" rule for cancellation racing an
// in-flight task (spec §4.7).
func (a *Async) Call(fn func() (any, error)) (any, error) {
	t, err := a.pool.Submit(fn)
	if err != nil {
		return nil, err
	}
	ev := NewEvent(a.scheduler)
	a.pending[t] = ev

	var deferredReason string
	deferred := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				c, ok := r.(*CancellationError)
				if !ok {
					panic(r)
				}
				if a.pool.TryCancel(t) {
					delete(a.pending, t)
					panic(c)
				}
				deferred = true
				deferredReason = c.Reason
			}
		}()
		ev.WaitFor()
	}()

	if deferred {
		ev.WaitFor()
		panic(&CancellationError{Reason: deferredReason})
	}

	if t.err != nil {
		if ae, ok := t.err.(*AsyncError); ok {
			panic(ae)
		}
		return t.result, t.err
	}
	return t.result, nil
}
