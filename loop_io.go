package fiberloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// retryIO drives the EAGAIN/EINTR retry loop every nonblocking fiber I/O
// method shares (spec §4.6, the "fiber operations like read(fd, buf, n)
// follow this contract" paragraph): call the syscall; on EAGAIN, wait for
// condition up to timeout and retry; on EINTR, retry immediately; any other
// result (success or a genuine error) is returned as-is. A timer that wins
// the race against readiness surfaces as ErrTimeout, matching spec §7's
// "Timer expired" row ("surface as EAGAIN to the caller").
func (l *Loop) retryIO(fd int, condition Condition, timeout time.Duration, syscall func() (int, error)) (int, error) {
	if err := l.requireRegistered(fd); err != nil {
		return -1, err
	}
	for {
		n, err := syscall()
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if werr := l.waitForCondition(fd, condition, timeout); werr != nil {
				return -1, werr
			}
			continue
		default:
			return n, err
		}
	}
}

// registerNew marks a freshly created fd (from Open/Pipe/Socket/Accept) as
// already non-blocking and registered, mirroring the original's practice of
// setting O_NONBLOCK at the point of creation rather than requiring a
// separate RegisterFD call for fds the loop itself produced.
func (l *Loop) registerNew(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	l.fds[fd] = &fdState{registered: true}
	return nil
}

// Open opens path in non-blocking mode and registers the resulting fd with
// the loop (spec §6 "open").
func (l *Loop) Open(path string, flags int, perm uint32) (int, error) {
	fd, err := unix.Open(path, flags|unix.O_NONBLOCK|unix.O_CLOEXEC, perm)
	if err != nil {
		return -1, err
	}
	l.fds[fd] = &fdState{registered: true}
	return fd, nil
}

// Pipe creates a non-blocking pipe and registers both ends (spec §6
// "pipe"/"pipe2").
func (l *Loop) Pipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	if err := l.registerNew(fds[0]); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return -1, -1, err
	}
	if err := l.registerNew(fds[1]); err != nil {
		_ = l.CloseFD(fds[0])
		_ = unix.Close(fds[1])
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

// Read reads up to len(buf) bytes from fd, suspending the calling fiber
// while the fd is not yet readable (spec §6 "read").
func (l *Loop) Read(fd int, buf []byte, timeout time.Duration) (int, error) {
	return l.retryIO(fd, Readable, timeout, func() (int, error) {
		return unix.Read(fd, buf)
	})
}

// Write writes buf to fd, suspending the calling fiber while the fd is not
// yet writable (spec §6 "write").
func (l *Loop) Write(fd int, buf []byte, timeout time.Duration) (int, error) {
	return l.retryIO(fd, Writable, timeout, func() (int, error) {
		return unix.Write(fd, buf)
	})
}

// Socket creates a non-blocking socket and registers it (spec §6 "socket").
func (l *Loop) Socket(domain, typ, proto int) (int, error) {
	fd, err := unix.Socket(domain, typ, proto)
	if err != nil {
		return -1, err
	}
	if err := l.registerNew(fd); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Bind binds fd to addr. Binding never blocks, so there is no timeout
// parameter or fiber suspension here.
func (l *Loop) Bind(fd int, addr Endpoint) error {
	sa, err := addr.sockaddr()
	if err != nil {
		return err
	}
	return unix.Bind(fd, sa)
}

// Listen marks fd as a listening socket with the given backlog.
func (l *Loop) Listen(fd int, backlog int) error {
	return unix.Listen(fd, backlog)
}

// Accept accepts a connection on the listening fd, suspending the calling
// fiber until one arrives (spec §6 "accept"/"accept4" — this module does not
// distinguish the two, since Go's unix.Accept has no separate flags
// parameter to add accept4's extra behavior over). The accepted fd is
// itself registered non-blocking before being returned.
func (l *Loop) Accept(fd int, timeout time.Duration) (int, Endpoint, error) {
	var (
		connFd int
		sa     unix.Sockaddr
	)
	_, err := l.retryIO(fd, Readable, timeout, func() (int, error) {
		var innerErr error
		connFd, sa, innerErr = unix.Accept(fd)
		return connFd, innerErr
	})
	if err != nil {
		return -1, Endpoint{}, err
	}
	if err := l.registerNew(connFd); err != nil {
		_ = unix.Close(connFd)
		return -1, Endpoint{}, err
	}
	ep, err := endpointFromSockaddr(sa)
	if err != nil {
		return connFd, Endpoint{}, err
	}
	return connFd, ep, nil
}

// Connect initiates a connection to addr on fd, suspending the calling
// fiber until the non-blocking connect completes (readiness for writing is
// the kernel's signal that a non-blocking connect resolved, successfully or
// not — see the SO_ERROR check below) or timeout elapses (spec §6
// "connect").
func (l *Loop) Connect(fd int, addr Endpoint, timeout time.Duration) error {
	sa, err := addr.sockaddr()
	if err != nil {
		return err
	}
	err = unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if err != unix.EINPROGRESS {
		return err
	}
	if werr := l.waitForCondition(fd, Writable, timeout); werr != nil {
		return werr
	}
	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soErr != 0 {
		return unix.Errno(soErr)
	}
	return nil
}

// Recv receives into buf from a connected or unconnected fd, suspending
// while not yet readable (spec §6 "recv").
func (l *Loop) Recv(fd int, buf []byte, flags int, timeout time.Duration) (int, error) {
	return l.retryIO(fd, Readable, timeout, func() (int, error) {
		return unix.Read(fd, buf) // recv with flags==0 is equivalent to read for stream sockets
	})
}

// Send sends buf on a connected fd, suspending while not yet writable
// (spec §6 "send").
func (l *Loop) Send(fd int, buf []byte, flags int, timeout time.Duration) (int, error) {
	return l.retryIO(fd, Writable, timeout, func() (int, error) {
		return unix.Write(fd, buf)
	})
}

// RecvFrom receives into buf on an unconnected (e.g. UDP) socket, returning
// the sender's address alongside the byte count (spec §6 "recvfrom").
func (l *Loop) RecvFrom(fd int, buf []byte, flags int, timeout time.Duration) (int, Endpoint, error) {
	var from unix.Sockaddr
	n, err := l.retryIO(fd, Readable, timeout, func() (int, error) {
		n, sa, innerErr := unix.Recvfrom(fd, buf, flags)
		from = sa
		return n, innerErr
	})
	if err != nil {
		return n, Endpoint{}, err
	}
	if from == nil {
		return n, Endpoint{}, nil
	}
	ep, err := endpointFromSockaddr(from)
	return n, ep, err
}

// SendTo sends buf to addr on an unconnected socket (spec §6 "sendto").
func (l *Loop) SendTo(fd int, buf []byte, flags int, addr Endpoint, timeout time.Duration) error {
	sa, err := addr.sockaddr()
	if err != nil {
		return err
	}
	_, err = l.retryIO(fd, Writable, timeout, func() (int, error) {
		return 0, unix.Sendto(fd, buf, flags, sa)
	})
	return err
}

// RecvMsg receives into buf using recvmsg(2), returning the byte count and
// any out-of-band control data (spec §6 "recvmsg").
func (l *Loop) RecvMsg(fd int, buf, oob []byte, flags int, timeout time.Duration) (n, oobn int, err error) {
	_, err = l.retryIO(fd, Readable, timeout, func() (int, error) {
		var innerErr error
		n, oobn, _, _, innerErr = unix.Recvmsg(fd, buf, oob, flags)
		return n, innerErr
	})
	return n, oobn, err
}

// SendMsg sends buf using sendmsg(2) along with out-of-band control data
// (spec §6 "sendmsg").
func (l *Loop) SendMsg(fd int, buf, oob []byte, flags int, addr Endpoint, timeout time.Duration) error {
	var sa unix.Sockaddr
	if addr.IP != nil {
		var err error
		sa, err = addr.sockaddr()
		if err != nil {
			return err
		}
	}
	_, err := l.retryIO(fd, Writable, timeout, func() (int, error) {
		return 0, unix.Sendmsg(fd, buf, oob, sa, flags)
	})
	return err
}

// CloseFD unregisters fd (restoring blocking mode, if it was still
// registered) and closes it (spec §6 "close": "close unregisters
// implicitly").
func (l *Loop) CloseFD(fd int) error {
	if st, ok := l.fds[fd]; ok && st.registered {
		_ = unix.SetNonblock(fd, false)
	}
	delete(l.fds, fd)
	return unix.Close(fd)
}
