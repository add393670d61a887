package fiberloop

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Endpoint is a resolved IPv4/IPv6 host:port pair, supplemented so
// loop_io.go's Connect/Bind/SendTo/RecvFrom have something to convert to
// and from a unix.Sockaddr without callers touching syscall types directly
// (spec §4 "Endpoint" helper).
type Endpoint struct {
	IP   net.IP
	Port int
}

// ParseEndpoint parses a "host:port" string, resolving host via the
// standard resolver. It does not itself perform any I/O beyond DNS
// resolution (Loop's own fibers are used for anything that should be
// non-blocking).
func ParseEndpoint(hostport string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Endpoint{}, err
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return Endpoint{}, err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return Endpoint{}, fmt.Errorf("fiberloop: invalid port %q: %w", portStr, err)
	}
	return Endpoint{IP: ips[0], Port: port}, nil
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), fmt.Sprint(e.Port))
}

// sockaddr converts e to the unix.Sockaddr form the raw syscalls in
// loop_io.go need, picking IPv4 or IPv6 based on the address's shape.
func (e Endpoint) sockaddr() (unix.Sockaddr, error) {
	if v4 := e.IP.To4(); v4 != nil {
		var addr [4]byte
		copy(addr[:], v4)
		return &unix.SockaddrInet4{Port: e.Port, Addr: addr}, nil
	}
	v6 := e.IP.To16()
	if v6 == nil {
		return nil, fmt.Errorf("fiberloop: invalid IP %v", e.IP)
	}
	var addr [16]byte
	copy(addr[:], v6)
	return &unix.SockaddrInet6{Port: e.Port, Addr: addr}, nil
}

// endpointFromSockaddr converts a unix.Sockaddr (as returned by Accept/
// Getpeername) back into an Endpoint.
func endpointFromSockaddr(sa unix.Sockaddr) (Endpoint, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return Endpoint{IP: net.IP(a.Addr[:]), Port: a.Port}, nil
	case *unix.SockaddrInet6:
		return Endpoint{IP: net.IP(a.Addr[:]), Port: a.Port}, nil
	default:
		return Endpoint{}, fmt.Errorf("fiberloop: unsupported sockaddr type %T", sa)
	}
}
