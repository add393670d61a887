// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fiberloop

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// fdState tracks the register_fd/unregister_fd contract for one fd (spec
// §6, "fd state contract"): a registered fd is non-blocking; an
// unregistered fd is blocking. The poller's I/O context for an fd is not
// tied to registration: it exists only while the fd has at least one
// watcher.
type fdState struct {
	registered bool
}

// Loop owns the scheduler, poller, and clock that together implement the
// alternation described in spec §4.6: drain runnable fibers, then block in
// the poller for readiness up to the next timer's due time, then fire
// timers. It also owns the ThreadPool/Async bridge used by fibers that want
// to offload blocking work.
type Loop struct {
	state *FastState
	opts  *loopOptions

	scheduler  *Scheduler
	poller     *Poller
	clock      *IOClock
	pool       *ThreadPool
	async      *Async
	asyncFiber *Fiber

	fds map[int]*fdState
}

// NewLoop constructs a Loop ready to run. The only fiber NewLoop creates
// itself is the background Async drain fiber; call CreateFiber before or
// during Run for application fibers.
func NewLoop(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	poller, err := NewPoller()
	if err != nil {
		return nil, fmt.Errorf("fiberloop: creating poller: %w", err)
	}

	scheduler := NewScheduler()
	pool := NewThreadPool(cfg.workerCount)

	async, err := NewAsync(scheduler, pool)
	if err != nil {
		pool.Close()
		poller.Close()
		return nil, fmt.Errorf("fiberloop: creating async bridge: %w", err)
	}

	l := &Loop{
		state:     NewFastState(),
		opts:      cfg,
		scheduler: scheduler,
		poller:    poller,
		clock:     NewIOClock(),
		pool:      pool,
		async:     async,
		fds:       make(map[int]*fdState),
	}
	if err := l.registerNew(async.NotifyFD()); err != nil {
		pool.Close()
		_ = async.Close()
		poller.Close()
		return nil, fmt.Errorf("fiberloop: registering async notify fd: %w", err)
	}

	// The Async completion drain runs as a genuine background fiber (spec
	// §4.6/§4.7), not a bare poller callback: its entry blocks in Read on
	// the self-pipe exactly like any other fiber I/O, suspending on the
	// scheduler like every other waiter, and resumes through the ordinary
	// watcher-wakeup path in waitForCondition. Being background excludes it
	// from AllFibersExited, so Run returns once only this sentinel is left.
	l.asyncFiber = l.CreateFiber(func(*Fiber) {
		buf := make([]byte, 64)
		for {
			if _, err := l.Read(async.NotifyFD(), buf, -1); err != nil {
				return
			}
			l.async.DispatchCompleted()
		}
	}, 0, true)

	cfg.logger.Info().Log("fiberloop: loop created")
	return l, nil
}

// CreateFiber spawns a new fiber on this loop (spec §6 "create_fiber").
func (l *Loop) CreateFiber(entry func(*Fiber), stackSize int, background bool) *Fiber {
	return l.scheduler.CreateFiber(entry, stackSize, background)
}

// InterruptFiber requests that f unwind at its next safe point (spec §6
// "interrupt_fiber").
func (l *Loop) InterruptFiber(f *Fiber, reason string) {
	l.scheduler.Interrupt(f, reason)
}

// CurrentFiber returns the fiber executing on the calling goroutine, or nil.
func (l *Loop) CurrentFiber() *Fiber {
	return l.scheduler.Current()
}

// YieldToScheduler cooperatively yields the calling fiber's turn (spec §6
// "yield_to_scheduler").
func (l *Loop) YieldToScheduler() {
	l.scheduler.Current().Yield()
}

// MakeEvent creates an Event bound to this loop's scheduler (spec §6
// "make_event").
func (l *Loop) MakeEvent() *Event {
	return NewEvent(l.scheduler)
}

// MakeMutex creates a Mutex bound to this loop's scheduler (spec §6
// "make_mutex").
func (l *Loop) MakeMutex() *Mutex {
	return NewMutex(l.scheduler)
}

// MakeSemaphore creates a Semaphore bound to this loop's scheduler (spec §6
// "make_semaphore").
func (l *Loop) MakeSemaphore(init, min, max int) *Semaphore {
	return NewSemaphore(l.scheduler, init, min, max)
}

// CallFunction runs fn on a worker thread, suspending the calling fiber
// until it completes (spec §6 "Async API", "call_function"). A panic
// inside fn is captured and re-raised here as *AsyncError.
func (l *Loop) CallFunction(fn func() (any, error)) (any, error) {
	return l.async.Call(fn)
}

// Sleep suspends the calling fiber for d, implemented as a single-shot
// timer whose callback resumes it (spec §6 "sleep"/"usleep").
func (l *Loop) Sleep(d time.Duration) {
	f := l.scheduler.Current()
	rec := f.record
	timer := l.clock.AddTimer(d, func() {
		l.scheduler.resumeFiber(rec)
	})
	defer l.clock.RemoveTimer(timer)
	l.scheduler.suspendCurrent(f)
}

// RegisterFD turns fd non-blocking and records it as registered (spec §6
// "register_fd"); it does not create a poller I/O context, which the poller
// creates when the first watcher for fd is added. Registering an
// already-registered fd is a contract violation reported via
// ErrFDAlreadyRegistered.
func (l *Loop) RegisterFD(fd int) error {
	if st, ok := l.fds[fd]; ok && st.registered {
		return ErrFDAlreadyRegistered
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	l.fds[fd] = &fdState{registered: true}
	return nil
}

// UnregisterFD restores fd to blocking mode (spec §6 "unregister_fd").
// Unregistering an fd that was never registered is a contract violation
// reported via ErrFDNotRegistered.
func (l *Loop) UnregisterFD(fd int) error {
	st, ok := l.fds[fd]
	if !ok || !st.registered {
		return ErrFDNotRegistered
	}
	delete(l.fds, fd)
	return unix.SetNonblock(fd, false)
}

func (l *Loop) requireRegistered(fd int) error {
	if st, ok := l.fds[fd]; !ok || !st.registered {
		return ErrFDNotRegistered
	}
	return nil
}

// waitForCondition suspends the calling fiber until fd becomes ready for
// condition, or timeout elapses (spec §4.6, the "wait step" a fiber I/O
// method takes on EAGAIN). A one-shot watcher and, if timeout >= 0, a
// parallel one-shot timer both resume the fiber; whichever fires first
// wins, and the loser is torn down via defer before returning, matching
// the scoped-release discipline in spec §7.
func (l *Loop) waitForCondition(fd int, condition Condition, timeout time.Duration) error {
	if timeout == 0 {
		return ErrWouldBlock
	}

	f := l.scheduler.Current()
	rec := f.record

	// resolved guards against both the watcher and the timer firing within
	// the same Run iteration (the fd becomes ready in exactly the poll that
	// also finds the timeout due): only the first to fire may tear down the
	// other and resume rec, since rec isn't safe to resumeFiber twice before
	// it has had a turn to run and remove itself from the runnable list.
	resolved := false
	timedOut := false
	var w *ioWatcher
	var timer *ioTimer

	w = l.poller.AddWatcher(fd, condition, func(Condition) {
		if resolved {
			return
		}
		resolved = true
		l.poller.RemoveWatcher(w)
		w = nil
		if timer != nil {
			l.clock.RemoveTimer(timer)
			timer = nil
		}
		l.scheduler.resumeFiber(rec)
	})
	defer func() {
		if w != nil {
			l.poller.RemoveWatcher(w)
		}
	}()

	if timeout > 0 {
		timer = l.clock.AddTimer(timeout, func() {
			if resolved {
				return
			}
			resolved = true
			timedOut = true
			timer = nil
			if w != nil {
				l.poller.RemoveWatcher(w)
				w = nil
			}
			l.scheduler.resumeFiber(rec)
		})
		defer func() {
			if timer != nil {
				l.clock.RemoveTimer(timer)
			}
		}()
	}

	l.scheduler.suspendCurrent(f)

	if timedOut {
		return ErrTimeout
	}
	return nil
}

// Run drives the loop's main alternation (spec §4.6): run every runnable
// fiber to its next suspension point, then — as long as at least one
// foreground fiber remains — block in the poller up to the next timer's
// due time, dispatch whatever became ready, and fire expired timers. Run
// returns once only background fibers are left.
func (l *Loop) Run() error {
	if !l.state.TryTransition(StateAwake, StateRunning) {
		if l.state.Load() == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}
	defer l.state.Store(StateTerminated)

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(error); ok {
					runErr = err
				} else {
					runErr = fmt.Errorf("fiberloop: %v", r)
				}
			}
		}()
		for {
			l.scheduler.Run()
			if l.scheduler.AllFibersExited() {
				return
			}

			l.state.Store(StateSleeping)
			due := l.clock.GetDueTime()
			// Start/Stop bracket the blocking poll so l.clock.now advances by
			// exactly the time actually spent parked waiting for I/O (spec
			// §4.4) — advancing it anywhere else would let fiber execution
			// time leak into timer accounting.
			l.clock.Start()
			_, err := l.poller.Wait(due)
			l.clock.Stop()
			if err != nil {
				l.state.Store(StateRunning)
				runErr = err
				return
			}
			l.state.Store(StateRunning)

			for _, t := range l.clock.GetExpiredTimers() {
				t.callback()
			}
		}
	}()
	return runErr
}

// Close stops the loop's thread pool and releases the poller. It does not
// interrupt foreground fibers; callers that want a clean shutdown should
// interrupt or otherwise wind down their own fibers before calling Close.
// The Async background fiber is the one exception: Close always interrupts
// it and drives the scheduler once to let it unwind cleanly, since by
// construction it is the only fiber still parked once Run has returned (if
// Run was never called, the fiber never started a goroutine and there is
// nothing to unwind).
func (l *Loop) Close() error {
	if l.state.Load() != StateAwake {
		l.scheduler.Interrupt(l.asyncFiber, "loop closing")
		l.scheduler.Run()
	}
	l.pool.Close()
	errAsync := l.async.Close()
	errPoller := l.poller.Close()
	if errAsync != nil {
		return errAsync
	}
	return errPoller
}
