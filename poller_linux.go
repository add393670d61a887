//go:build linux

package fiberloop

import (
	"golang.org/x/sys/unix"
)

const initialEpollBatch = 64

type epollBackend struct {
	fd int
}

func newPollerBackend() (pollerBackend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{fd: fd}, nil
}

func (b *epollBackend) close() error {
	return unix.Close(b.fd)
}

// sync reconciles ctx.conditions to ctx.pending, always requesting
// EPOLLET (edge-triggered): the original poller registers every fd
// edge-triggered so a busy fd's readiness is reported exactly once per
// transition rather than re-reported on every wait call while unconsumed
// data remains (spec §4.4).
func (b *epollBackend) sync(ctx *ioContext) error {
	switch {
	case ctx.pending == 0 && ctx.conditions != 0:
		if err := unix.EpollCtl(b.fd, unix.EPOLL_CTL_DEL, ctx.fd, nil); err != nil {
			return err
		}
	case ctx.pending != 0 && ctx.conditions == 0:
		ev := conditionToEpoll(ctx.pending)
		if err := unix.EpollCtl(b.fd, unix.EPOLL_CTL_ADD, ctx.fd, &unix.EpollEvent{Events: ev, Fd: int32(ctx.fd)}); err != nil {
			return err
		}
	case ctx.pending != ctx.conditions:
		ev := conditionToEpoll(ctx.pending)
		if err := unix.EpollCtl(b.fd, unix.EPOLL_CTL_MOD, ctx.fd, &unix.EpollEvent{Events: ev, Fd: int32(ctx.fd)}); err != nil {
			return err
		}
	}
	ctx.conditions = ctx.pending
	return nil
}

func conditionToEpoll(c Condition) uint32 {
	ev := uint32(unix.EPOLLET)
	if c&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if c&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func epollToCondition(ev uint32) Condition {
	var c Condition
	if ev&unix.EPOLLIN != 0 {
		c |= Readable
	}
	if ev&unix.EPOLLOUT != 0 {
		c |= Writable
	}
	if ev&unix.EPOLLERR != 0 {
		c |= errorCondition
	}
	if ev&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		c |= hangupCondition
	}
	return c
}

// wait blocks for readiness, retrying on EINTR (restarting the timeout
// accounting the way the original IOPoller does via its clock), and, if the
// kernel buffer came back exactly full, re-polls with a zero timeout to
// drain any remaining ready fds rather than leaving readiness unreported
// until the next call (spec §4.4, "never leave readiness behind").
func (b *epollBackend) wait(timeoutMs int, out *buffer[readyEvent]) (int, error) {
	clock := NewIOClock()
	clock.Start()
	remaining := timeoutMs

	batch := initialEpollBatch
	raw := make([]unix.EpollEvent, batch)

	total := 0
	for {
		n, err := unix.EpollWait(b.fd, raw, remaining)
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
			out.data[total+i] = readyEvent{fd: int(raw[i].Fd), events: epollToCondition(raw[i].Events)}
		}
		total += n

		if n < len(raw) {
			return total, nil
		}

		// Buffer came back exactly full: there may be more ready fds we
		// didn't have room to report. Grow and drain with no further wait.
		batch *= 2
		raw = make([]unix.EpollEvent, batch)
		remaining = 0
	}
}
