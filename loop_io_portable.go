//go:build !linux

package fiberloop

import "time"

// Readv and Writev fall back to sequential Read/Write calls per buffer on
// platforms where x/sys/unix does not expose readv(2)/writev(2) directly
// (everything this module's poller supports besides Linux — see
// poller_darwin.go). This loses the single-syscall atomicity of a true
// vectored call but preserves the method's observable contract: each
// buffer is filled/drained in order, suspending the fiber on EAGAIN exactly
// as Read/Write do (spec §6 "readv"/"writev").
func (l *Loop) Readv(fd int, bufs [][]byte, timeout time.Duration) (int, error) {
	total := 0
	for _, buf := range bufs {
		for len(buf) > 0 {
			n, err := l.Read(fd, buf, timeout)
			total += n
			if err != nil {
				return total, err
			}
			if n == 0 {
				return total, nil
			}
			buf = buf[n:]
		}
	}
	return total, nil
}

func (l *Loop) Writev(fd int, bufs [][]byte, timeout time.Duration) (int, error) {
	total := 0
	for _, buf := range bufs {
		for len(buf) > 0 {
			n, err := l.Write(fd, buf, timeout)
			total += n
			if err != nil {
				return total, err
			}
			buf = buf[n:]
		}
	}
	return total, nil
}
