// Command wsecho wires the reactor event loop, the TCP transport, and
// the HTTP/1.1 + WebSocket connection engine together into a minimal
// server: GET / gets a text reply, GET /echo upgrades to WebSocket and
// echoes every message back. Grounded on the teacher's own echo
// examples, rewired onto httpconn/wswire/httpwire instead of the
// teacher's protocol package.
package main

import (
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/relaykit/netcore/control"
	"github.com/relaykit/netcore/httpconn"
	"github.com/relaykit/netcore/httpwire"
	"github.com/relaykit/netcore/netaddr"
	"github.com/relaykit/netcore/reactor"
	"github.com/relaykit/netcore/transport"
)

// pingInterval is the keep-alive PING cadence for every upgraded
// connection this binary serves (spec §4.7).
const pingInterval = 30 * time.Second

var logger = control.NewLogger(control.NewMetricsRegistry())

// bufWriter adapts *transport.BufferedWriter to httpconn.Writer: the
// transport layer's Write is fire-and-forget (buffered, async flush),
// while httpconn.Writer's contract borrows io.Writer's shape for
// familiarity. All payloads are accepted in full or not at all here, so
// (len(p), nil) is always correct.
type bufWriter struct{ bw *transport.BufferedWriter }

func (w bufWriter) Write(p []byte) (int, error) {
	w.bw.Write(p)
	return len(p), nil
}
func (w bufWriter) WriteShutdown()     { w.bw.WriteShutdown() }
func (w bufWriter) PendingBytes() int  { return w.bw.PendingBytes() }

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	flag.Parse()

	loop, err := reactor.New()
	if err != nil {
		logger.Error("reactor init failed", "error", err)
		os.Exit(1)
	}

	bind, err := netaddr.Parse(*addr)
	if err != nil {
		logger.Error("parse addr failed", "addr", *addr, "error", err)
		os.Exit(1)
	}

	acceptor, err := transport.Listen(loop, bind, transport.DefaultSettings, func(fd int) {
		sock := transport.FromAcceptedFD(loop, fd)
		var hc *httpconn.Conn
		var w bufWriter

		bw := transport.NewBufferedWriter(loop, sock,
			func() { onReadable(sock, hc) },
			func() {},
			func() {},
		)
		w = bufWriter{bw: bw}
		hc = httpconn.NewConn(w, func(c *httpconn.Conn, req *httpwire.Request, body []byte) {
			onRequest(loop, c, req, body)
		})
	})
	if err != nil {
		logger.Error("listen failed", "addr", bind, "error", err)
		os.Exit(1)
	}
	defer acceptor.Close()

	laddr, _ := acceptor.LocalAddr()
	logger.Info("wsecho listening", "addr", laddr)

	if err := loop.Run(); err != nil {
		logger.Error("loop exited", "error", err)
		os.Exit(1)
	}
}

func onReadable(sock *transport.TCPSocket, hc *httpconn.Conn) {
	var buf [4096]byte
	n, _ := sock.ReadSome(buf[:])
	if n == 0 {
		return
	}
	if err := hc.Feed(buf[:n]); err != nil {
		sock.Close()
	}
}

func onRequest(loop *reactor.Loop, c *httpconn.Conn, req *httpwire.Request, body []byte) {
	if req.Path == "/echo" && strings.EqualFold(req.Upgrade, "websocket") {
		if err := c.Upgrade(req, onMessage, 64<<10); err == nil {
			c.SetPingInterval(loop, pingInterval)
			return
		}
	}

	resp := &httpwire.Response{
		Major:      req.Major,
		Minor:      req.Minor,
		StatusCode: http.StatusOK,
		Reason:     "OK",
		Headers: []httpwire.Header{
			{Name: "Content-Type", Value: "text/plain"},
		},
	}
	c.Respond(resp, []byte("wsecho: connect to /echo to open a WebSocket\n"))
}

func onMessage(c *httpconn.Conn, msg httpconn.WebMessage) {
	switch msg.Opcode {
	case httpconn.OpcodeText, httpconn.OpcodeBinary:
		c.SendMessage(msg.Opcode, msg.Body)
	}
}
