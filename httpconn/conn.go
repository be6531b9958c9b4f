// Package httpconn bridges the HTTP/1.1 and WebSocket wire parsers
// (httpwire, wswire) to a buffered outbound writer, as a per-connection
// finite-state machine (spec §4.7, component C9): request/response
// cycling with keep-alive, WebSocket upgrade, ping/pong, and close
// handshake.
//
// Grounded on the teacher's protocol/connection.go (WSConnection), which
// wires a decoded frame to a callback and an outbound write channel in
// much the same shape; this package generalizes that to the full HTTP
// request/response lifecycle the teacher's WSConnection never has (it
// assumes net/http already performed the upgrade).
package httpconn

import (
	"time"
	"unicode/utf8"

	"github.com/relaykit/netcore/httpwire"
	"github.com/relaykit/netcore/internal/wsaccept"
	"github.com/relaykit/netcore/reactor"
	"github.com/relaykit/netcore/wswire"
)

// State names the server connection's position in the request/response or
// WebSocket message cycle (spec §4.7).
type State int

const (
	StateRequestHeader State = iota
	StateRequestBody
	StateRequestReady
	StateResponseHeader
	StateResponseBody
	StateWebMessageHeader
	StateWebMessageBody
	StateWebMessageReady
	StateShutdown
)

// Opcode mirrors WebMessage's opcode domain (spec §3 Data Model).
type Opcode int

const (
	OpcodeText Opcode = iota
	OpcodeBinary
	OpcodeClose
	OpcodePing
	OpcodePong
)

// WebMessage is a fully reassembled WebSocket application message.
type WebMessage struct {
	Opcode    Opcode
	Body      []byte
	CloseCode uint16
	HasCloseCode bool
}

// Writer is the minimal surface Conn needs from the outbound buffered
// writer (transport.BufferedWriter implements it).
type Writer interface {
	Write(p []byte) (int, error)
	WriteShutdown()
	PendingBytes() int
}

const maxControlPayload = wswire.MaxControlFramePayload
const maxRequestBodyDefault = 16 << 20 // 16 MiB soft cap, overridable per Conn

// RequestHandler is invoked once a request's header (and, for a buffered
// body, the body) is ready. It must drive exactly one of Respond or
// Upgrade on c before returning, or call Postpone.
type RequestHandler func(c *Conn, req *httpwire.Request, body []byte)

// MessageHandler is invoked once an upgraded connection assembles a
// complete WebSocket message.
type MessageHandler func(c *Conn, msg WebMessage)

// Conn is a server-side HTTP/WebSocket connection state machine.
type Conn struct {
	state  State
	writer Writer

	reqParser  *httpwire.RequestParser
	bodyParser *httpwire.BodyParser
	bodyBuf    []byte

	onRequest RequestHandler
	onMessage MessageHandler

	upgraded     bool
	frameParser  *wswire.FrameParser
	msgOpcode    wswire.Opcode
	msgBuf       []byte
	controlBuf   []byte
	msgOpen      bool
	closeSent    bool
	closeRecvd   bool
	postponed    bool
	postponeCancel func()

	maxBodyBytes int64

	pingTimer    *reactor.Timer
	pingInterval time.Duration
}

// NewConn constructs a fresh server connection bound to w, dispatching
// completed requests to onRequest.
func NewConn(w Writer, onRequest RequestHandler) *Conn {
	return &Conn{
		state:        StateRequestHeader,
		writer:       w,
		reqParser:    httpwire.NewRequestParser(),
		onRequest:    onRequest,
		maxBodyBytes: maxRequestBodyDefault,
	}
}

// SetMaxBodyBytes overrides the default soft cap on buffered request
// bodies (the fair server enforces the hard cap separately; this is a
// belt-and-suspenders default for standalone httpconn use).
func (c *Conn) SetMaxBodyBytes(n int64) { c.maxBodyBytes = n }

// State returns the connection's current FSM state.
func (c *Conn) State() State { return c.state }

// Feed delivers newly-received bytes to the connection, driving the FSM
// forward as far as the data allows. It may invoke onRequest or
// onMessage synchronously, zero or more times (keep-alive pipelines
// multiple requests through one Feed call).
func (c *Conn) Feed(data []byte) error {
	for (len(data) > 0 || c.state == StateRequestReady) && c.state != StateShutdown {
		switch c.state {
		case StateRequestHeader:
			n, err := c.reqParser.Feed(data)
			data = data[n:]
			if err != nil {
				return err
			}
			if !c.reqParser.Done() {
				return nil
			}
			c.beginBody()
		case StateRequestBody:
			n, err := c.feedBody(data)
			data = data[n:]
			if err != nil {
				return err
			}
			if c.bodyParser != nil && !c.bodyParser.Done() {
				return nil
			}
			c.state = StateRequestReady
		case StateRequestReady:
			c.dispatchRequest()
		case StateWebMessageHeader, StateWebMessageBody:
			n, err := c.feedFrame(data)
			data = data[n:]
			if err != nil {
				return err
			}
		default:
			return nil
		}
	}
	return nil
}

func (c *Conn) beginBody() {
	req := c.reqParser.Request()
	switch {
	case req.Chunked:
		c.bodyParser = httpwire.NewChunkedBodyParser()
	case req.HasContentLength && req.ContentLength > 0:
		c.bodyParser = httpwire.NewContentLengthBodyParser(req.ContentLength)
	default:
		c.bodyParser = httpwire.NewEmptyBodyParser()
	}
	c.bodyBuf = c.bodyBuf[:0]
	if c.bodyParser.Done() {
		c.state = StateRequestReady
	} else {
		c.state = StateRequestBody
	}
}

func (c *Conn) feedBody(data []byte) (int, error) {
	out, n, err := c.bodyParser.Feed(data, c.bodyBuf)
	c.bodyBuf = out
	if err != nil {
		return n, err
	}
	if int64(len(c.bodyBuf)) > c.maxBodyBytes {
		return n, ErrBodyTooLarge
	}
	return n, nil
}

func (c *Conn) dispatchRequest() {
	req := c.reqParser.Request()
	c.state = StateResponseHeader
	if c.onRequest != nil {
		c.onRequest(c, req, c.bodyBuf)
	}
}

// Respond writes a complete response (status line, headers, body) and
// transitions back to StateRequestHeader (keep-alive) or StateShutdown.
func (c *Conn) Respond(resp *httpwire.Response, body []byte) error {
	if _, err := c.writer.Write(resp.Serialize()); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := c.writer.Write(body); err != nil {
			return err
		}
	}
	if resp.KeepAlive {
		c.reqParser.Reset()
		c.state = StateRequestHeader
	} else {
		c.writer.WriteShutdown()
		c.enterShutdown()
	}
	return nil
}

// RespondChunked writes response headers immediately (forcing
// Transfer-Encoding: chunked framing) then writes body as a single
// chunk followed by the terminating zero-length chunk, per spec §4.7
// ("chunked, headers are written immediately and body chunks use
// <hex>\r\n<bytes>\r\n framing with a terminator 0\r\n\r\n").
func (c *Conn) RespondChunked(resp *httpwire.Response, body []byte) error {
	resp.Chunked = true
	resp.HasContentLength = false
	if _, err := c.writer.Write(resp.Serialize()); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := c.writer.Write(chunkFrame(body)); err != nil {
			return err
		}
	}
	if _, err := c.writer.Write([]byte("0\r\n\r\n")); err != nil {
		return err
	}
	if resp.KeepAlive {
		c.reqParser.Reset()
		c.state = StateRequestHeader
	} else {
		c.writer.WriteShutdown()
		c.enterShutdown()
	}
	return nil
}

// Postpone defers the in-flight request (long-poll pattern) and stores
// cancel on the connection. Conn has no disconnect notification, so
// nothing in this package ever invokes cancel.
func (c *Conn) Postpone(cancel func()) {
	c.postponed = true
	c.postponeCancel = cancel
}

// Upgrade promotes the connection to WebSocket framing after writing the
// 101 handshake response, per spec §4.7/§6.
func (c *Conn) Upgrade(req *httpwire.Request, onMessage MessageHandler, maxFramePayload int64) error {
	accept := wsaccept.Compute(req.SecWebSocketKey)
	resp := &httpwire.Response{
		Major: 1, Minor: 1,
		StatusCode:         101,
		Reason:             "Switching Protocols",
		Upgrade:            "websocket",
		SecWebSocketAccept: accept,
		KeepAlive:          true,
	}
	if _, err := c.writer.Write(resp.Serialize()); err != nil {
		return err
	}
	c.upgraded = true
	c.onMessage = onMessage
	c.frameParser = wswire.NewFrameParser(maxFramePayload)
	c.state = StateWebMessageHeader
	return nil
}

func (c *Conn) feedFrame(data []byte) (int, error) {
	if !c.frameParser.HeaderDone() {
		n, err := c.frameParser.FeedHeader(data)
		if err != nil {
			c.protocolError(1002)
			return n, err
		}
		if !c.frameParser.HeaderDone() {
			return n, nil
		}
		if c.frameParser.PayloadDone() {
			return n, c.onFrameComplete()
		}
		c.state = StateWebMessageBody
		return n, nil
	}

	var consumed int
	var payload []byte
	payload, consumed = c.frameParser.FeedPayload(data, nil)
	c.appendFramePayload(payload)
	if !c.frameParser.PayloadDone() {
		return consumed, nil
	}
	if err := c.onFrameComplete(); err != nil {
		return consumed, err
	}
	return consumed, nil
}

func (c *Conn) appendFramePayload(p []byte) {
	if len(p) == 0 {
		return
	}
	hdr := c.frameParser.Header()
	if hdr.Opcode.IsControl() {
		c.controlBuf = append(c.controlBuf, p...)
		return
	}
	c.msgBuf = append(c.msgBuf, p...)
}

func (c *Conn) onFrameComplete() error {
	hdr := c.frameParser.Header()
	c.frameParser.Reset()
	c.state = StateWebMessageHeader

	if hdr.Opcode.IsControl() {
		return c.handleControlFrame(hdr)
	}
	return c.handleDataFrame(hdr)
}

func (c *Conn) handleDataFrame(hdr wswire.FrameHeader) error {
	switch hdr.Opcode {
	case wswire.OpcodeText, wswire.OpcodeBinary:
		if c.msgOpen {
			return c.protocolError(1002) // start while a message is open
		}
		c.msgOpen = true
		c.msgOpcode = hdr.Opcode
		if hdr.Fin {
			return c.completeMessage()
		}
		return nil
	case wswire.OpcodeContinuation:
		if !c.msgOpen {
			return c.protocolError(1002) // continuation without a start
		}
		if hdr.Fin {
			return c.completeMessage()
		}
		return nil
	default:
		return c.protocolError(1002)
	}
}

func (c *Conn) completeMessage() error {
	body := c.msgBuf
	c.msgBuf = nil
	c.msgOpen = false

	if c.msgOpcode == wswire.OpcodeText && !utf8.Valid(body) {
		c.sendClose(1007, "")
		return nil
	}

	opcode := OpcodeBinary
	if c.msgOpcode == wswire.OpcodeText {
		opcode = OpcodeText
	}
	c.state = StateWebMessageReady
	if c.onMessage != nil {
		c.onMessage(c, WebMessage{Opcode: opcode, Body: body})
	}
	c.state = StateWebMessageHeader
	return nil
}

func (c *Conn) handleControlFrame(hdr wswire.FrameHeader) error {
	payload := c.controlBuf
	c.controlBuf = nil

	switch hdr.Opcode {
	case wswire.OpcodeClose:
		c.closeRecvd = true
		var code uint16
		hasCode := false
		reason := ""
		if len(payload) >= 2 {
			code = uint16(payload[0])<<8 | uint16(payload[1])
			hasCode = true
			reason = string(payload[2:])
			if !utf8.ValidString(reason) {
				reason = ""
			}
		}
		if c.onMessage != nil {
			c.onMessage(c, WebMessage{Opcode: OpcodeClose, Body: payload, CloseCode: code, HasCloseCode: hasCode})
		}
		if !c.closeSent {
			c.sendClose(1000, "")
		}
		c.writer.WriteShutdown()
		c.enterShutdown()
		return nil
	case wswire.OpcodePing:
		c.writeFrame(wswire.OpcodePong, payload)
		return nil
	case wswire.OpcodePong:
		if c.onMessage != nil {
			c.onMessage(c, WebMessage{Opcode: OpcodePong, Body: payload})
		}
		return nil
	}
	return nil
}

func (c *Conn) protocolError(code uint16) error {
	c.sendClose(code, "")
	c.writer.WriteShutdown()
	c.enterShutdown()
	return ErrProtocolError
}

// SendMessage writes a complete, unfragmented text or binary message.
func (c *Conn) SendMessage(opcode Opcode, body []byte) {
	wsOpcode := wswire.OpcodeBinary
	if opcode == OpcodeText {
		wsOpcode = wswire.OpcodeText
	}
	c.writeFrame(wsOpcode, body)
}

func (c *Conn) writeFrame(opcode wswire.Opcode, payload []byte) {
	if opcode.IsControl() && len(payload) > maxControlPayload {
		payload = payload[:maxControlPayload]
	}
	frame := wswire.SerializeFrame(true, opcode, payload, false, [4]byte{})
	c.writer.Write(frame)
}

// sendClose writes a CLOSE frame (idempotent — a second call is a no-op)
// and marks close-sent, per spec §4.7.
func (c *Conn) sendClose(code uint16, reason string) {
	if c.closeSent {
		return
	}
	c.closeSent = true
	payload := make([]byte, 0, 2+len(reason))
	payload = append(payload, byte(code>>8), byte(code))
	payload = append(payload, reason...)
	c.writeFrame(wswire.OpcodeClose, payload)
}

// MaybePing sends a PING if the ping timer has fired and the writer has
// no backpressure, per spec §4.7's keep-alive ping rule.
func (c *Conn) MaybePing() {
	if !c.upgraded || c.state == StateShutdown {
		return
	}
	if c.writer.PendingBytes() > 0 {
		return
	}
	c.writeFrame(wswire.OpcodePing, nil)
}

// SetPingInterval arms the connection's own keep-alive ping timer on
// loop, owning the "ping timer" the Data Model names as part of a
// connection's state (spec §3, §4.7): every interval it calls MaybePing
// and re-arms itself, until the connection reaches StateShutdown.
func (c *Conn) SetPingInterval(loop *reactor.Loop, interval time.Duration) {
	c.pingInterval = interval
	c.pingTimer = loop.NewTimer(c.onPingTimer)
	c.pingTimer.Once(interval)
}

func (c *Conn) onPingTimer() {
	if c.state == StateShutdown {
		return
	}
	c.MaybePing()
	c.pingTimer.Once(c.pingInterval)
}

// stopPingTimer cancels the ping timer, if armed; safe to call even if
// SetPingInterval was never called.
func (c *Conn) stopPingTimer() {
	if c.pingTimer != nil {
		c.pingTimer.Cancel()
	}
}

// enterShutdown transitions to StateShutdown and releases the ping timer,
// the single path every shutdown branch (keep-alive declined, close
// handshake complete, protocol error) routes through.
func (c *Conn) enterShutdown() {
	c.state = StateShutdown
	c.stopPingTimer()
}

func chunkFrame(body []byte) []byte {
	out := make([]byte, 0, len(body)+16)
	out = append(out, []byte(itoaHex(len(body)))...)
	out = append(out, '\r', '\n')
	out = append(out, body...)
	out = append(out, '\r', '\n')
	return out
}

func itoaHex(n int) string {
	if n == 0 {
		return "0"
	}
	const digits = "0123456789abcdef"
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%16]
		n /= 16
	}
	return string(buf[i:])
}
