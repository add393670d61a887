//go:build darwin

package fiberloop

import (
	"golang.org/x/sys/unix"
)

const initialKqueueBatch = 64

type kqueueBackend struct {
	fd int
}

func newPollerBackend() (pollerBackend, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueBackend{fd: fd}, nil
}

func (b *kqueueBackend) close() error {
	return unix.Close(b.fd)
}

// sync issues one kevent changelist entry per condition whose membership in
// ctx.pending changed, registering/deregistering EVFILT_READ and
// EVFILT_WRITE independently (kqueue has no combined read+write filter the
// way epoll has a combined bitmask, so unlike the epoll backend this is a
// per-filter diff rather than a single ADD/MOD/DEL call).
func (b *kqueueBackend) sync(ctx *ioContext) error {
	var changes []unix.Kevent_t
	diff := ctx.pending ^ ctx.conditions
	if diff&Readable != 0 {
		changes = append(changes, kevent(ctx.fd, unix.EVFILT_READ, ctx.pending&Readable != 0))
	}
	if diff&Writable != 0 {
		changes = append(changes, kevent(ctx.fd, unix.EVFILT_WRITE, ctx.pending&Writable != 0))
	}
	if len(changes) == 0 {
		ctx.conditions = ctx.pending
		return nil
	}
	if _, err := unix.Kevent(b.fd, changes, nil, nil); err != nil {
		return err
	}
	ctx.conditions = ctx.pending
	return nil
}

func kevent(fd int, filter int16, enable bool) unix.Kevent_t {
	flags := uint16(unix.EV_DELETE)
	if enable {
		flags = unix.EV_ADD | unix.EV_CLEAR
	}
	return unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}
}

// wait mirrors the epoll backend's EINTR-retry and buffer-exactly-full
// redrain behavior, translated to kevent's timespec-based timeout.
func (b *kqueueBackend) wait(timeoutMs int, out *buffer[readyEvent]) (int, error) {
	clock := NewIOClock()
	clock.Start()
	remaining := timeoutMs

	batch := initialKqueueBatch
	raw := make([]unix.Kevent_t, batch)

	total := 0
	for {
		ts, hasTimeout := timeoutFor(remaining)
		var tsPtr *unix.Timespec
		if hasTimeout {
			tsPtr = &ts
		}

		n, err := unix.Kevent(b.fd, nil, raw, tsPtr)
		if err != nil {
			if err == unix.EINTR {
				if timeoutMs < 0 {
					continue
				}
				clock.Stop()
				elapsedMs := int(clock.Now().Milliseconds())
				remaining = timeoutMs - elapsedMs
				if remaining < 0 {
					remaining = 0
				}
				clock.Start()
				continue
			}
			return total, err
		}

		out.setLength(total + n)
		for i := 0; i < n; i++ {
			out.data[total+i] = readyEvent{fd: int(raw[i].Ident), events: keventToCondition(&raw[i])}
		}
		total += n

		if n < len(raw) {
			return total, nil
		}

		batch *= 2
		raw = make([]unix.Kevent_t, batch)
		remaining = 0
	}
}

func timeoutFor(timeoutMs int) (unix.Timespec, bool) {
	if timeoutMs < 0 {
		return unix.Timespec{}, false
	}
	return unix.NsecToTimespec(int64(timeoutMs) * 1e6), true
}

func keventToCondition(ev *unix.Kevent_t) Condition {
	var c Condition
	switch ev.Filter {
	case unix.EVFILT_READ:
		c |= Readable
	case unix.EVFILT_WRITE:
		c |= Writable
	}
	if ev.Flags&unix.EV_EOF != 0 {
		c |= hangupCondition
	}
	if ev.Flags&unix.EV_ERROR != 0 {
		c |= errorCondition
	}
	return c
}
