//go:build linux

package transport

import (
	"testing"
	"time"

	"github.com/relaykit/netcore/netaddr"
	"github.com/relaykit/netcore/reactor"
)

func mustLoop(t *testing.T) *reactor.Loop {
	t.Helper()
	l, err := reactor.New()
	if err != nil {
		t.Skipf("no reactor backend: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAcceptConnectEcho(t *testing.T) {
	loop := mustLoop(t)
	bind, _ := netaddr.Parse("127.0.0.1:0")

	var serverSock *TCPSocket
	acceptor, err := Listen(loop, bind, DefaultSettings, func(fd int) {
		serverSock = FromAcceptedFD(loop, fd)
		serverSock.OnEvents(func() {
			var buf [64]byte
			n, _ := serverSock.ReadSome(buf[:])
			if n > 0 {
				serverSock.WriteSome(buf[:n])
			}
		}, func() {}, func() {})
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer acceptor.Close()

	// Discover the ephemeral port the kernel assigned.
	laddr, err := acceptor.LocalAddr()
	if err != nil {
		t.Fatalf("local addr: %v", err)
	}

	var clientSock *TCPSocket
	clientSock, err = Dial(loop, laddr, DefaultSettings)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer clientSock.Close()

	received := make(chan string, 1)
	clientSock.OnEvents(func() {
		var buf [64]byte
		n, _ := clientSock.ReadSome(buf[:])
		if n > 0 {
			received <- string(buf[:n])
		}
	}, func() {
		if clientSock.State() == StateOpen {
			clientSock.WriteSome([]byte("ping"))
		}
	}, func() {})

	go loop.Run()
	defer loop.Cancel()

	select {
	case msg := <-received:
		if msg != "ping" {
			t.Fatalf("want ping, got %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("echo never arrived")
	}
}
