package fiberloop

// Event is a one-shot wakeup signal with no remembered state: Trigger wakes
// whoever is currently waiting, but a fiber that calls WaitFor afterwards
// still blocks until the next Trigger (spec §3 "Event", §4.2). It is the Go
// analogue of the original runtime's Event/EventWaiter pair.
type Event struct {
	scheduler *Scheduler
	waiters   *list
}

// eventWaiter links a single WaitFor call into an Event's waiter list.
type eventWaiter struct {
	listNode
	rec *fiberRecord
}

// NewEvent creates an Event bound to scheduler. Events are cheap and are not
// pooled; a Loop typically owns many of them for the lifetime of whatever
// they coordinate.
func NewEvent(scheduler *Scheduler) *Event {
	return &Event{scheduler: scheduler, waiters: newList()}
}

// Trigger wakes every fiber currently blocked in WaitFor, walking the
// waiter list tail-to-head to match the original's SIREN_LIST_FOREACH_REVERSE
// dispatch order. It does not drain the list itself — each woken waiter
// removes its own node as it returns from WaitFor, tolerating a waiter that
// is resumed by something other than this Trigger call (see the deferred
// self-removal in WaitFor).
func (e *Event) Trigger() {
	e.waiters.forEachReverse(func(n *listNode) {
		w := nodeOwner[*eventWaiter](n)
		e.scheduler.resumeFiber(w.rec)
	})
}

// WaitFor blocks the calling fiber until the next Trigger. It must be
// called from within a fiber running on e's scheduler.
func (e *Event) WaitFor() {
	f := e.scheduler.Current()
	w := &eventWaiter{rec: f.record}
	w.listNode.owner = w
	e.waiters.insertTail(&w.listNode)
	defer w.listNode.remove() // no-op if already unlinked
	e.scheduler.suspendCurrent(f)
}

// HasWaiters reports whether any fiber is currently blocked in WaitFor,
// used by callers that need to assert the teardown invariant in spec §3/§4.2
// (an Event's wait-queue must be empty when it is discarded).
func (e *Event) HasWaiters() bool {
	return !e.waiters.isEmpty()
}
