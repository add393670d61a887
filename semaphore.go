package fiberloop

// Semaphore is a bounded counting semaphore: value is clamped to [min, max],
// Up raises it and Down lowers it, and either blocks the calling fiber when
// the bound in its direction is already reached (spec §3 "Semaphore", §4.2).
// It is the Go analogue of the original runtime's Semaphore, transcribed
// from semaphore.cc's up()/down() chain-wake pattern: waking a blocked
// waiter does not hand it the slot directly — it only gives the waiter its
// turn to retry, at which point it re-checks the bound against the
// (possibly since-changed) value and either completes or re-blocks. A
// waiter that does complete may in turn wake the next of its own kind,
// chaining through an arbitrarily deep FIFO queue one fiber at a time.
//
// The original's up()/down() additionally exploit a scheduler primitive
// that can suspend an arbitrary *non-running* fiber (rescinding an
// already-queued wake before it is ever scheduled, as a scheduling-fairness
// optimization). Our Scheduler can only suspend the fiber currently
// running, so that optimization is dropped here: a rescinded wake instead
// runs its turn, discovers the bound no longer holds, and re-blocks itself.
// The net effect observed by callers is identical, just with one extra
// scheduling round trip in the race it guarded against.
type Semaphore struct {
	scheduler *Scheduler

	value, min, max int

	upWaiters   *list
	downWaiters *list
}

type semWaiter struct {
	listNode
	rec *fiberRecord
}

// NewSemaphore creates a Semaphore bound to scheduler with the given
// initial value and [min, max] bounds. init is clamped into [min, max].
func NewSemaphore(scheduler *Scheduler, init, min, max int) *Semaphore {
	if init < min {
		init = min
	}
	if init > max {
		init = max
	}
	return &Semaphore{
		scheduler:   scheduler,
		value:       init,
		min:         min,
		max:         max,
		upWaiters:   newList(),
		downWaiters: newList(),
	}
}

// Value returns the current value, mainly for tests and diagnostics.
func (s *Semaphore) Value() int {
	return s.value
}

// wakeHead moves the head of waiters to the runnable list's tail, giving it
// its next turn without guaranteeing its bound still holds by the time it
// runs (see the Semaphore doc comment).
func (s *Semaphore) wakeHead(waiters *list) {
	if n := waiters.head(); !waiters.isNil(n) {
		s.scheduler.resumeFiber(nodeOwner[*semWaiter](n).rec)
	}
}

// Up raises the value by one, blocking the calling fiber while value is at
// max. Transcribed from Semaphore::up(): reaching min+1 from min wakes the
// longest-waiting Down() call, and leaving room behind after a blocked Up()
// completes chains to the next queued Up() call in turn.
func (s *Semaphore) Up() {
	for s.value == s.max {
		f := s.scheduler.Current()
		w := &semWaiter{rec: f.record}
		w.listNode.owner = w
		s.upWaiters.insertTail(&w.listNode)
		func() {
			defer w.listNode.remove()
			s.scheduler.suspendCurrent(f)
		}()
	}
	s.value++
	if s.value == s.min+1 {
		s.wakeHead(s.downWaiters)
	}
	if s.value < s.max {
		s.wakeHead(s.upWaiters)
	}
}

// Down lowers the value by one, blocking the calling fiber while value is
// at min. Symmetric to Up(): reaching max-1 from above wakes the
// longest-waiting Up() call, and leaving a unit behind after a blocked
// Down() completes chains to the next queued Down() call in turn.
func (s *Semaphore) Down() {
	for s.value == s.min {
		f := s.scheduler.Current()
		w := &semWaiter{rec: f.record}
		w.listNode.owner = w
		s.downWaiters.insertTail(&w.listNode)
		func() {
			defer w.listNode.remove()
			s.scheduler.suspendCurrent(f)
		}()
	}
	s.value--
	if s.value == s.max-1 {
		s.wakeHead(s.upWaiters)
	}
	if s.value > s.min {
		s.wakeHead(s.downWaiters)
	}
}

// TryUp raises the value by one without blocking, returning false if the
// value is already at max. Matches the original's non-blocking fast path,
// including the min+1 down-waiter wake.
func (s *Semaphore) TryUp() bool {
	if s.value == s.max {
		return false
	}
	s.value++
	if s.value == s.min+1 {
		s.wakeHead(s.downWaiters)
	}
	return true
}

// TryDown lowers the value by one without blocking, returning false if the
// value is already at min. Matches the original's non-blocking fast path,
// including the max-1 up-waiter wake.
func (s *Semaphore) TryDown() bool {
	if s.value == s.min {
		return false
	}
	s.value--
	if s.value == s.max-1 {
		s.wakeHead(s.upWaiters)
	}
	return true
}
