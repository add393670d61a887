//go:build linux

package fiberloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// Readv reads into bufs (scatter) from fd using the vectored readv(2)
// syscall, the vectored analogue of Read (spec §6 "readv"). x/sys/unix only
// exposes a direct Readv/Writev wrapper on Linux; see loop_io_portable.go
// for the sequential fallback used on other platforms.
func (l *Loop) Readv(fd int, bufs [][]byte, timeout time.Duration) (int, error) {
	return l.retryIO(fd, Readable, timeout, func() (int, error) {
		return unix.Readv(fd, bufs)
	})
}

// Writev writes bufs (gather) to fd using the vectored writev(2) syscall,
// the vectored analogue of Write (spec §6 "writev").
func (l *Loop) Writev(fd int, bufs [][]byte, timeout time.Duration) (int, error) {
	return l.retryIO(fd, Writable, timeout, func() (int, error) {
		return unix.Writev(fd, bufs)
	})
}
