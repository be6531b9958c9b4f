//go:build linux

package httpconn_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaykit/netcore/httpconn"
	"github.com/relaykit/netcore/httpwire"
	"github.com/relaykit/netcore/netaddr"
	"github.com/relaykit/netcore/reactor"
	"github.com/relaykit/netcore/transport"
)

// bufWriter adapts *transport.BufferedWriter to httpconn.Writer for
// these tests, same shape as cmd/wsecho's adapter.
type bufWriter struct{ bw *transport.BufferedWriter }

func (w bufWriter) Write(p []byte) (int, error) {
	w.bw.Write(p)
	return len(p), nil
}
func (w bufWriter) WriteShutdown()    { w.bw.WriteShutdown() }
func (w bufWriter) PendingBytes() int { return w.bw.PendingBytes() }

// TestGorillaClientUpgradeAndEcho runs a real server built from
// reactor+transport+httpconn and drives it with github.com/gorilla/
// websocket as an independent third-party client, checking the
// handshake and echo interoperate with a widely used external
// implementation rather than only this module's own client FSM.
func TestGorillaClientUpgradeAndEcho(t *testing.T) {
	loop, err := reactor.New()
	if err != nil {
		t.Skipf("no reactor backend: %v", err)
	}
	t.Cleanup(func() { loop.Close() })

	bind, _ := netaddr.Parse("127.0.0.1:0")
	acceptor, err := transport.Listen(loop, bind, transport.DefaultSettings, func(fd int) {
		sock := transport.FromAcceptedFD(loop, fd)
		var hc *httpconn.Conn

		bw := transport.NewBufferedWriter(loop, sock,
			func() {
				var buf [4096]byte
				n, _ := sock.ReadSome(buf[:])
				if n > 0 {
					hc.Feed(buf[:n])
				}
			},
			func() {}, func() {},
		)
		hc = httpconn.NewConn(bufWriter{bw: bw}, func(c *httpconn.Conn, req *httpwire.Request, body []byte) {
			if req.Path == "/echo" && strings.EqualFold(req.Upgrade, "websocket") {
				c.Upgrade(req, func(c *httpconn.Conn, msg httpconn.WebMessage) {
					c.SendMessage(msg.Opcode, msg.Body)
				}, 64<<10)
				return
			}
			c.Respond(&httpwire.Response{
				Major: req.Major, Minor: req.Minor,
				StatusCode: http.StatusNotFound, Reason: "Not Found",
			}, nil)
		})
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer acceptor.Close()

	laddr, err := acceptor.LocalAddr()
	if err != nil {
		t.Fatalf("local addr: %v", err)
	}

	go loop.Run()
	defer loop.Cancel()

	url := "ws://" + laddr.String() + "/echo"
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v (resp=%v)", err, resp)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.TextMessage || string(data) != "hello" {
		t.Fatalf("got (%d, %q), want (text, %q)", kind, data, "hello")
	}
}
