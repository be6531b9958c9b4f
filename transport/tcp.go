//go:build linux

// Package transport implements the reactor-driven, non-blocking TCP/UDP
// endpoints (spec §4.3) and the buffered writer façade (spec §4.4).
//
// Grounded on the teacher's internal/transport/transport_linux.go: raw
// golang.org/x/sys/unix sockets opened SOCK_NONBLOCK, driven by explicit
// Read/Write syscalls rather than net.Conn, so the reactor — not the Go
// runtime's own netpoller — owns readiness. The non-blocking contract
// (0 return means EAGAIN, caller awaits the next readiness edge) matches
// the teacher's Recv()/Send() EAGAIN handling one-for-one.
package transport

import (
	"errors"
	"fmt"
	"net"

	"github.com/relaykit/netcore/netaddr"
	"github.com/relaykit/netcore/reactor"
	"golang.org/x/sys/unix"
)

// State is the TCP socket lifecycle (spec §3 Data Model).
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateHalfClosedWrite
	StatePeerClosed
)

// Settings mirrors the spec's acceptor/socket tunables (§4.3, §6).
type Settings struct {
	ReuseAddr   bool
	ReusePort   bool
	TCPNoDelay  bool
	SendBufSize int
	RecvBufSize int
}

var DefaultSettings = Settings{ReuseAddr: true, TCPNoDelay: true}

// TCPSocket is a non-blocking TCP connection driven by a reactor.Loop.
type TCPSocket struct {
	loop  *reactor.Loop
	fd    int
	state State

	onReadable Callback
	onWritable Callback
	onClosed   Callback

	registered bool
}

// Callback is invoked on the loop goroutine.
type Callback func()

func setNonBlockingSocket(domain int) (int, error) {
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("transport: socket: %w", err)
	}
	return fd, nil
}

func applySettings(fd int, s Settings) error {
	if s.ReuseAddr {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return err
		}
	}
	if s.ReusePort {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			return err
		}
	}
	if s.TCPNoDelay {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return err
		}
	}
	if s.SendBufSize > 0 {
		unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, s.SendBufSize)
	}
	if s.RecvBufSize > 0 {
		unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, s.RecvBufSize)
	}
	return nil
}

func sockaddrFromAddress(a netaddr.Address) (unix.Sockaddr, error) {
	if a.Is6() {
		var sa unix.SockaddrInet6
		ip := a.TCPAddr().IP.To16()
		if ip == nil {
			return nil, errors.New("transport: bad IPv6 literal")
		}
		copy(sa.Addr[:], ip)
		sa.Port = int(a.Port())
		return &sa, nil
	}
	var sa unix.SockaddrInet4
	ip := a.TCPAddr().IP.To4()
	if ip == nil {
		return nil, errors.New("transport: bad IPv4 literal")
	}
	copy(sa.Addr[:], ip)
	sa.Port = int(a.Port())
	return &sa, nil
}

// Dial begins a non-blocking connect. The writability edge that follows
// indicates the handshake completed (spec §4.3).
func Dial(loop *reactor.Loop, addr netaddr.Address, settings Settings) (*TCPSocket, error) {
	domain := unix.AF_INET
	if addr.Is6() {
		domain = unix.AF_INET6
	}
	fd, err := setNonBlockingSocket(domain)
	if err != nil {
		return nil, err
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
	s := &TCPSocket{loop: loop, fd: fd, state: StateConnecting}
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: connect: %w", err)
	}
	return s, nil
}

// FromAcceptedFD wraps an fd already produced by TCPAcceptor's accept loop.
func FromAcceptedFD(loop *reactor.Loop, fd int) *TCPSocket {
	return &TCPSocket{loop: loop, fd: fd, state: StateOpen}
}

// OnEvents registers the read/write/close callbacks and begins dispatch.
// Must be called once, after construction.
func (s *TCPSocket) OnEvents(onReadable, onWritable, onClosed Callback) error {
	s.onReadable = onReadable
	s.onWritable = onWritable
	s.onClosed = onClosed
	interest := reactor.InterestRead | reactor.InterestWrite
	if err := s.loop.Register(s.fd, interest, s.dispatch); err != nil {
		return err
	}
	s.registered = true
	return nil
}

func (s *TCPSocket) dispatch() {
	ready := s.loop.LastReady(s.fd)
	if ready&reactor.ReadyError != 0 {
		s.transitionClosed()
		return
	}
	if ready&reactor.ReadyWrite != 0 {
		if s.state == StateConnecting {
			if errno := s.socketError(); errno != 0 {
				s.transitionClosed()
				return
			}
			s.state = StateOpen
		}
		if s.onWritable != nil {
			s.onWritable()
		}
	}
	if ready&reactor.ReadyRead != 0 && s.onReadable != nil {
		s.onReadable()
	}
}

func (s *TCPSocket) socketError() int {
	errno, _ := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	return errno
}

func (s *TCPSocket) transitionClosed() {
	if s.state == StateClosed {
		return
	}
	wasRegistered := s.registered
	s.Close()
	if wasRegistered && s.onClosed != nil {
		s.onClosed()
	}
}

// IsOpen reports whether the socket is still usable for I/O.
func (s *TCPSocket) IsOpen() bool {
	return s.state == StateOpen || s.state == StateHalfClosedWrite
}

// State returns the current lifecycle state.
func (s *TCPSocket) State() State { return s.state }

// ReadSome reads up to len(dst) bytes. Returns (0, nil) for EAGAIN — the
// caller must wait for the next readiness edge. A (0, io.EOF)-equivalent
// (reported here as (0, nil) with PeerClosed()==true) signals peer FIN.
func (s *TCPSocket) ReadSome(dst []byte) (int, error) {
	if s.state == StateClosed {
		return 0, errors.New("transport: read on closed socket")
	}
	n, err := unix.Read(s.fd, dst)
	if n > 0 {
		return n, nil
	}
	if n == 0 {
		s.state = StatePeerClosed
		return 0, nil
	}
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, nil
	}
	return 0, err
}

// PeerClosed reports whether the last ReadSome observed a peer FIN.
func (s *TCPSocket) PeerClosed() bool { return s.state == StatePeerClosed }

// WriteSome writes up to len(src) bytes, returning bytes written (0 means
// would-block).
func (s *TCPSocket) WriteSome(src []byte) (int, error) {
	if s.state == StateClosed {
		return 0, errors.New("transport: write on closed socket")
	}
	n, err := unix.Write(s.fd, src)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// WriteShutdown sends FIN (reads remain possible), used for HTTP
// Connection: close responses.
func (s *TCPSocket) WriteShutdown() error {
	if s.state == StateClosed {
		return nil
	}
	err := unix.Shutdown(s.fd, unix.SHUT_WR)
	if err == nil {
		s.state = StateHalfClosedWrite
	}
	return err
}

// Close unregisters from the loop and closes the fd.
func (s *TCPSocket) Close() error {
	if s.state == StateClosed {
		return nil
	}
	if s.registered {
		s.loop.Unregister(s.fd)
		s.registered = false
	}
	s.state = StateClosed
	return unix.Close(s.fd)
}

// FD exposes the raw descriptor (for peer-address queries, etc).
func (s *TCPSocket) FD() int { return s.fd }

// PeerAddress returns the address of the connected peer.
func (s *TCPSocket) PeerAddress() (netaddr.Address, error) {
	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return netaddr.Address{}, err
	}
	return sockaddrToAddress(sa)
}

func sockaddrToAddress(sa unix.Sockaddr) (netaddr.Address, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netaddr.NewPort(fmt.Sprintf("%d.%d.%d.%d", v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3]), uint16(v.Port))
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, v.Addr[:])
		return netaddr.NewPort(ip.String(), uint16(v.Port))
	default:
		return netaddr.Address{}, errors.New("transport: unsupported sockaddr family")
	}
}
