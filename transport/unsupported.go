//go:build !linux

// Package transport targets the Linux epoll backend first, matching
// reactor's choice (see reactor/poller_unsupported.go) and the spec's
// "target one backend first" guidance. Other platforms get a clear error
// rather than a half-working implementation.
package transport

import (
	"errors"

	"github.com/relaykit/netcore/netaddr"
	"github.com/relaykit/netcore/reactor"
)

var errUnsupportedPlatform = errors.New("transport: no backend for this platform")

type Callback func()

type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateHalfClosedWrite
	StatePeerClosed
)

type Settings struct {
	ReuseAddr   bool
	ReusePort   bool
	TCPNoDelay  bool
	SendBufSize int
	RecvBufSize int
}

var DefaultSettings = Settings{ReuseAddr: true, TCPNoDelay: true}

type TCPSocket struct{}

func Dial(*reactor.Loop, netaddr.Address, Settings) (*TCPSocket, error) {
	return nil, errUnsupportedPlatform
}
func FromAcceptedFD(*reactor.Loop, int) *TCPSocket { return &TCPSocket{} }
func (s *TCPSocket) OnEvents(Callback, Callback, Callback) error { return errUnsupportedPlatform }
func (s *TCPSocket) IsOpen() bool                                { return false }
func (s *TCPSocket) State() State                                { return StateClosed }
func (s *TCPSocket) ReadSome([]byte) (int, error)                { return 0, errUnsupportedPlatform }
func (s *TCPSocket) PeerClosed() bool                            { return true }
func (s *TCPSocket) WriteSome([]byte) (int, error)               { return 0, errUnsupportedPlatform }
func (s *TCPSocket) WriteShutdown() error                        { return errUnsupportedPlatform }
func (s *TCPSocket) Close() error                                { return nil }
func (s *TCPSocket) FD() int                                     { return -1 }
func (s *TCPSocket) PeerAddress() (netaddr.Address, error) {
	return netaddr.Address{}, errUnsupportedPlatform
}

type TCPAcceptor struct{}

func Listen(*reactor.Loop, netaddr.Address, Settings, func(fd int)) (*TCPAcceptor, error) {
	return nil, errUnsupportedPlatform
}
func (a *TCPAcceptor) Close() error { return nil }

type UDPEndpoint struct{}

func ListenUDP(*reactor.Loop, netaddr.Address) (*UDPEndpoint, error) {
	return nil, errUnsupportedPlatform
}
func (u *UDPEndpoint) OnReadable(Callback) error { return errUnsupportedPlatform }
func (u *UDPEndpoint) RecvFrom([]byte) (int, bool, netaddr.Address, bool, error) {
	return 0, false, netaddr.Address{}, false, errUnsupportedPlatform
}
func (u *UDPEndpoint) SendTo([]byte, netaddr.Address) error { return errUnsupportedPlatform }
func (u *UDPEndpoint) JoinMulticast(netaddr.Address, string) error {
	return errUnsupportedPlatform
}
func (u *UDPEndpoint) SetMulticastInterface(string) error { return errUnsupportedPlatform }
func (u *UDPEndpoint) Close() error                       { return nil }

type BufferedWriter struct{}

func NewBufferedWriter(*reactor.Loop, *TCPSocket, func(), func(), func()) *BufferedWriter {
	return &BufferedWriter{}
}
func (bw *BufferedWriter) Write([]byte)      {}
func (bw *BufferedWriter) PendingBytes() int { return 0 }
func (bw *BufferedWriter) CanWrite() bool    { return false }
func (bw *BufferedWriter) WriteShutdown()    {}
func (bw *BufferedWriter) Close() error      { return nil }
