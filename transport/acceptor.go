//go:build linux

package transport

import (
	"fmt"
	"time"

	"github.com/relaykit/netcore/netaddr"
	"github.com/relaykit/netcore/reactor"
	"golang.org/x/sys/unix"
)

// TCPAcceptor accepts every pending connection on each readiness edge and
// hands each fd to the onAccept callback, stopping at EAGAIN — grounded
// on the spec's §4.3 "TCP acceptor" contract and the teacher's accept-loop
// shape in examples/echo, generalized with the EMFILE/ENFILE/ENOBUFS/
// ENOMEM 1-second back-off the spec requires.
type TCPAcceptor struct {
	loop     *reactor.Loop
	fd       int
	settings Settings
	onAccept func(fd int)

	backoff *reactor.Timer
}

// Listen binds and listens on addr, invoking onAccept once per accepted
// connection (the caller wraps the raw fd with FromAcceptedFD or similar).
func Listen(loop *reactor.Loop, addr netaddr.Address, settings Settings, onAccept func(fd int)) (*TCPAcceptor, error) {
	domain := unix.AF_INET
	if addr.Is6() {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("transport: listen socket: %w", err)
	}
	if err := applySettings(fd, settings); err != nil {
		unix.Close(fd)
		return nil, err
	}
	sa, err := sockaddrFromAddress(addr)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: bind: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	a := &TCPAcceptor{loop: loop, fd: fd, settings: settings, onAccept: onAccept}
	a.backoff = loop.NewTimer(a.acceptLoop)
	if err := loop.Register(fd, reactor.InterestRead, a.acceptLoop); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return a, nil
}

// acceptLoop drains every pending connection on this edge, applying the
// same settings to inherited sockets as the listener (spec §4.3).
func (a *TCPAcceptor) acceptLoop() {
	for {
		nfd, _, err := unix.Accept4(a.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN, unix.EWOULDBLOCK:
				return
			case unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM:
				a.backoff.Once(1 * time.Second)
				return
			case unix.ECONNABORTED, unix.EINTR, unix.EPERM:
				continue
			default:
				return
			}
		}
		applySettings(nfd, a.settings)
		a.onAccept(nfd)
	}
}

// Close unregisters and closes the listening socket.
func (a *TCPAcceptor) Close() error {
	a.backoff.Cancel()
	a.loop.Unregister(a.fd)
	return unix.Close(a.fd)
}

// LocalAddr returns the address the listener is bound to, useful when
// binding to port 0 and discovering the kernel-assigned ephemeral port.
func (a *TCPAcceptor) LocalAddr() (netaddr.Address, error) {
	sa, err := unix.Getsockname(a.fd)
	if err != nil {
		return netaddr.Address{}, err
	}
	return sockaddrToAddress(sa)
}
