//go:build linux

package transport

import (
	"errors"
	"fmt"
	"net"

	"github.com/relaykit/netcore/netaddr"
	"github.com/relaykit/netcore/reactor"
	"golang.org/x/sys/unix"
)

// UDPEndpoint is a non-blocking UDP transmitter/receiver with multicast
// join/select support (spec §4.3). Truncation is reported as a boolean,
// never as an error, matching "truncation is never reported as an error".
type UDPEndpoint struct {
	loop *reactor.Loop
	fd   int
}

// ListenUDP binds a UDP socket for receiving (and/or sending) datagrams.
func ListenUDP(loop *reactor.Loop, addr netaddr.Address) (*UDPEndpoint, error) {
	domain := unix.AF_INET
	if addr.Is6() {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("transport: udp socket: %w", err)
	}
	unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	sa, err := sockaddrFromAddress(addr)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: udp bind: %w", err)
	}
	return &UDPEndpoint{loop: loop, fd: fd}, nil
}

// OnReadable registers the readiness callback.
func (u *UDPEndpoint) OnReadable(cb Callback) error {
	return u.loop.Register(u.fd, reactor.InterestRead|reactor.InterestWrite, cb)
}

// RecvFrom reads one datagram into dst. Returns (n, truncated, fromAddr,
// ok); ok==false means EAGAIN (would block).
func (u *UDPEndpoint) RecvFrom(dst []byte) (n int, truncated bool, from netaddr.Address, ok bool, err error) {
	nr, _, recvFlags, sa, rerr := unix.Recvmsg(u.fd, dst, nil, unix.MSG_TRUNC)
	if rerr != nil {
		if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
			return 0, false, netaddr.Address{}, false, nil
		}
		return 0, false, netaddr.Address{}, false, rerr
	}
	from, _ = sockaddrToAddress(sa)
	truncated = recvFlags&unix.MSG_TRUNC != 0 || nr > len(dst)
	return nr, truncated, from, true, nil
}

// SendTo writes one datagram to addr.
func (u *UDPEndpoint) SendTo(payload []byte, addr netaddr.Address) error {
	sa, err := sockaddrFromAddress(addr)
	if err != nil {
		return err
	}
	return unix.Sendto(u.fd, payload, 0, sa)
}

// JoinMulticast joins the multicast group addr (on the named/IP adapter,
// or the default adapter if adapter == ""). Linux/macOS caveat: binding to
// INADDR_ANY for multicast actually means "use the default adapter"; true
// multi-adapter receive needs one socket per adapter, which this method
// does not attempt (spec §4.3 notes this as out of scope to automate).
func (u *UDPEndpoint) JoinMulticast(group netaddr.Address, adapter string) error {
	if group.Is6() {
		return errors.New("transport: IPv6 multicast join not implemented")
	}
	mreq := &unix.IPMreq{}
	copy(mreq.Multiaddr[:], group.TCPAddr().IP.To4())
	if adapter != "" {
		if ifaceIP := net.ParseIP(adapter); ifaceIP != nil {
			copy(mreq.Interface[:], ifaceIP.To4())
		} else if iface, err := net.InterfaceByName(adapter); err == nil {
			addrs, _ := iface.Addrs()
			for _, a := range addrs {
				if ipnet, ok := a.(*net.IPNet); ok {
					if ip4 := ipnet.IP.To4(); ip4 != nil {
						copy(mreq.Interface[:], ip4)
						break
					}
				}
			}
		}
	}
	return unix.SetsockoptIPMreq(u.fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq)
}

// SetMulticastInterface selects the outgoing adapter for sent multicast
// datagrams via IP_MULTICAST_IF.
func (u *UDPEndpoint) SetMulticastInterface(adapter string) error {
	var ip net.IP
	if adapter == "" {
		ip = net.IPv4zero
	} else if parsed := net.ParseIP(adapter); parsed != nil {
		ip = parsed
	} else if iface, err := net.InterfaceByName(adapter); err == nil {
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok {
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					ip = ip4
					break
				}
			}
		}
	}
	if ip == nil {
		return errors.New("transport: could not resolve multicast adapter")
	}
	var addr [4]byte
	copy(addr[:], ip.To4())
	return unix.SetsockoptInet4Addr(u.fd, unix.IPPROTO_IP, unix.IP_MULTICAST_IF, addr)
}

// Close releases the socket.
func (u *UDPEndpoint) Close() error {
	u.loop.Unregister(u.fd)
	return unix.Close(u.fd)
}
