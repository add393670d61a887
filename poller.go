package fiberloop

import "time"

// Condition is a bitmask of I/O readiness conditions a Watcher can ask the
// poller to notify it about (spec §3 "Watcher", §4.4 "IOPoller").
type Condition uint8

const (
	Readable Condition = 1 << iota
	Writable

	// error and hangup are never requested explicitly — every watcher is
	// implicitly notified of them alongside whatever condition it did ask
	// for, matching the original poller's always-include-EPOLLERR|EPOLLHUP
	// registration.
	errorCondition
	hangupCondition

	alwaysNotified = errorCondition | hangupCondition
)

func (c Condition) String() string {
	var s string
	if c&Readable != 0 {
		s += "R"
	}
	if c&Writable != 0 {
		s += "W"
	}
	if c&errorCondition != 0 {
		s += "E"
	}
	if c&hangupCondition != 0 {
		s += "H"
	}
	if s == "" {
		return "-"
	}
	return s
}

// ioWatcher is one caller's registered interest in a single fd's readiness.
// A fd can have more than one watcher (e.g. independent readers and writers
// racing on the same socket), matching the original's per-condition
// watcher-count design rather than one-callback-per-fd.
type ioWatcher struct {
	listNode
	ctx       *ioContext
	condition Condition
	notify    func(Condition)
}

// ioContext is the poller's bookkeeping for one registered fd: the set of
// conditions currently installed with the kernel, the set desired given all
// live watchers, and whether those two sets have diverged since the last
// flush (spec §4.4 "IOContext").
type ioContext struct {
	listNode // membership in the poller's dirty list

	fd         int
	conditions Condition // installed with the kernel
	pending    Condition // desired, given current watchers

	watcherCounts [2]int // indexed by conditionBit(Readable/Writable)
	watchers      *list

	dirty bool
}

func conditionBit(c Condition) int {
	if c == Writable {
		return 1
	}
	return 0
}

// Poller multiplexes readiness notification across many fds using whatever
// syscall facility the platform provides (epoll on Linux, kqueue on
// Darwin/BSD — see poller_linux.go/poller_darwin.go). It batches
// registration changes into a dirty list and only reconciles them with the
// kernel immediately before blocking, the same flush-on-demand strategy the
// original runtime uses to coalesce repeated add/remove/modify churn on a
// busy fd into a single syscall (spec §4.4).
type Poller struct {
	backend pollerBackend

	contexts map[int]*ioContext
	dirty    *list

	events buffer[readyEvent]
}

// readyEvent is one fd's worth of readiness reported by a single wait call.
type readyEvent struct {
	fd     int
	events Condition
}

// pollerBackend is the OS-specific half of Poller: installing the desired
// condition set for one fd with the kernel, and blocking for up to
// timeoutMs milliseconds for readiness, retrying internally on EINTR.
type pollerBackend interface {
	// sync reconciles ctx.conditions towards ctx.pending for one fd,
	// issuing ADD/MOD/DEL as appropriate, and updates ctx.conditions to
	// match on success.
	sync(ctx *ioContext) error
	// wait blocks for up to timeoutMs (negative means forever) and appends
	// ready fd/condition pairs to out, returning the number appended.
	wait(timeoutMs int, out *buffer[readyEvent]) (int, error)
	close() error
}

// NewPoller creates a Poller using the platform's native backend.
func NewPoller() (*Poller, error) {
	backend, err := newPollerBackend()
	if err != nil {
		return nil, err
	}
	return &Poller{
		backend:  backend,
		contexts: make(map[int]*ioContext),
		dirty:    newList(),
	}, nil
}

// Close releases the underlying kernel poll object. Registered watchers are
// not individually notified; callers are expected to have already
// unregistered everything they own.
func (p *Poller) Close() error {
	return p.backend.close()
}

func (p *Poller) contextFor(fd int) *ioContext {
	ctx, ok := p.contexts[fd]
	if !ok {
		ctx = &ioContext{fd: fd, watchers: newList()}
		ctx.listNode.owner = ctx
		p.contexts[fd] = ctx
	}
	return ctx
}

func (p *Poller) markDirty(ctx *ioContext) {
	if ctx.dirty {
		return
	}
	ctx.dirty = true
	p.dirty.insertTail(&ctx.listNode)
}

// AddWatcher registers notify to be called, whenever fd becomes ready for
// any of the requested conditions (error/hangup always included), with the
// subset of them that is ready. It returns a handle that RemoveWatcher uses to undo exactly
// this registration, leaving any other watcher on the same fd untouched.
func (p *Poller) AddWatcher(fd int, condition Condition, notify func(Condition)) *ioWatcher {
	ctx := p.contextFor(fd)
	w := &ioWatcher{ctx: ctx, condition: condition | alwaysNotified, notify: notify}
	w.listNode.owner = w
	ctx.watchers.insertTail(&w.listNode)

	bit := conditionBit(condition)
	ctx.watcherCounts[bit]++
	if ctx.watcherCounts[bit] == 1 {
		ctx.pending |= condition
		p.markDirty(ctx)
	}
	return w
}

// RemoveWatcher undoes a single AddWatcher registration.
func (p *Poller) RemoveWatcher(w *ioWatcher) {
	ctx := w.ctx
	w.listNode.remove()

	bit := conditionBit(w.condition &^ alwaysNotified)
	ctx.watcherCounts[bit]--
	if ctx.watcherCounts[bit] == 0 {
		ctx.pending &^= w.condition &^ alwaysNotified
		p.markDirty(ctx)
	}

	if ctx.watchers.isEmpty() {
		delete(p.contexts, ctx.fd)
	}
}

// flush reconciles every dirty context with the kernel, draining the dirty
// list. A context whose sync fails is left marked dirty and re-queued so a
// subsequent flush retries it, mirroring the original's scope-guard-based
// rollback on a failed EpollCtl/kevent call.
func (p *Poller) flush() error {
	var firstErr error
	p.dirty.forEachSafe(func(n *listNode) {
		ctx := nodeOwner[*ioContext](n)
		ctx.listNode.remove()
		if err := p.backend.sync(ctx); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			p.dirty.insertTail(&ctx.listNode)
			return
		}
		ctx.dirty = false
	})
	return firstErr
}

// Wait flushes pending registration changes, then blocks for up to timeout
// (negative means forever, zero means poll without blocking) for readiness,
// dispatching each ready fd's watchers. It returns the number of watcher
// callbacks invoked.
func (p *Poller) Wait(timeout time.Duration) (int, error) {
	if err := p.flush(); err != nil {
		return 0, err
	}

	timeoutMs := -1
	if timeout >= 0 {
		timeoutMs = int(timeout / time.Millisecond)
	}

	p.events.setLength(0)
	n, err := p.backend.wait(timeoutMs, &p.events)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		ev := p.events.data[i]
		ctx, ok := p.contexts[ev.fd]
		if !ok {
			continue
		}
		ctx.watchers.forEachReverseSafe(func(wn *listNode) {
			w := nodeOwner[*ioWatcher](wn)
			if masked := ev.events & w.condition; masked != 0 {
				w.notify(masked)
				dispatched++
			}
		})
	}
	return dispatched, nil
}
