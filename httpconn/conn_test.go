package httpconn

import (
	"bytes"
	"testing"

	"github.com/relaykit/netcore/httpwire"
)

// fakeWriter is an in-memory stand-in for transport.BufferedWriter.
type fakeWriter struct {
	buf          bytes.Buffer
	shutdownCalled bool
}

func (w *fakeWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *fakeWriter) WriteShutdown()               { w.shutdownCalled = true }
func (w *fakeWriter) PendingBytes() int            { return 0 }

func TestConnSimpleGETRespond(t *testing.T) {
	w := &fakeWriter{}
	var gotReq *httpwire.Request
	conn := NewConn(w, func(c *Conn, req *httpwire.Request, body []byte) {
		gotReq = req
		resp := &httpwire.Response{
			Major: 1, Minor: 1, StatusCode: 200, Reason: "OK",
			Headers:          []httpwire.Header{{Name: "Content-Length", Value: "2"}},
			HasContentLength: true, ContentLength: 2, KeepAlive: true,
		}
		c.Respond(resp, []byte("ok"))
	})

	raw := []byte("GET /x HTTP/1.1\r\nHost: h\r\n\r\n")
	if err := conn.Feed(raw); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if gotReq == nil || gotReq.Path != "/x" {
		t.Fatalf("request not dispatched correctly: %+v", gotReq)
	}
	if conn.State() != StateRequestHeader {
		t.Fatalf("expected back to StateRequestHeader for keep-alive, got %v", conn.State())
	}
	out := w.buf.String()
	if !bytes.Contains([]byte(out), []byte("200 OK")) || !bytes.HasSuffix([]byte(out), []byte("ok")) {
		t.Fatalf("unexpected response bytes: %q", out)
	}
}

func TestConnChunkedRequestBody(t *testing.T) {
	w := &fakeWriter{}
	var gotBody []byte
	conn := NewConn(w, func(c *Conn, req *httpwire.Request, body []byte) {
		gotBody = append([]byte(nil), body...)
		resp := &httpwire.Response{Major: 1, Minor: 1, StatusCode: 200, Reason: "OK", HasContentLength: true, KeepAlive: false}
		c.Respond(resp, nil)
	})

	raw := []byte("POST /upload HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nwiki\r\n0\r\n\r\n")
	if err := conn.Feed(raw); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if string(gotBody) != "wiki" {
		t.Fatalf("unexpected body: %q", gotBody)
	}
	if !w.shutdownCalled {
		t.Fatalf("expected shutdown for non-keep-alive response")
	}
}

func TestConnWebSocketUpgradeAndEcho(t *testing.T) {
	w := &fakeWriter{}
	var upgraded bool
	conn := NewConn(w, func(c *Conn, req *httpwire.Request, body []byte) {
		upgraded = true
		c.Upgrade(req, func(c *Conn, msg WebMessage) {
			c.SendMessage(msg.Opcode, msg.Body)
		}, 0)
	})

	handshake := []byte("GET /ws HTTP/1.1\r\nHost: h\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n")
	if err := conn.Feed(handshake); err != nil {
		t.Fatalf("handshake feed: %v", err)
	}
	if !upgraded {
		t.Fatalf("expected upgrade callback to fire")
	}
	if !bytes.Contains(w.buf.Bytes(), []byte("101 Switching Protocols")) {
		t.Fatalf("expected 101 response, got %q", w.buf.String())
	}
	if !bytes.Contains(w.buf.Bytes(), []byte("s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")) {
		t.Fatalf("unexpected accept key in response: %q", w.buf.String())
	}
	w.buf.Reset()

	// S4: masked text frame "ping" from spec §8.
	frame := []byte{0x81, 0x84, 0x12, 0x34, 0x56, 0x78, 0x62, 0x51, 0x3A, 0x1C}
	if err := conn.Feed(frame); err != nil {
		t.Fatalf("frame feed: %v", err)
	}
	echoed := w.buf.Bytes()
	if len(echoed) < 2 || echoed[0] != 0x81 {
		t.Fatalf("expected unmasked FIN+text echo frame, got % x", echoed)
	}
}
