package httpconn

import (
	"encoding/base64"
	"unicode/utf8"

	"github.com/relaykit/netcore/httpwire"
	"github.com/relaykit/netcore/internal/pcgrand"
	"github.com/relaykit/netcore/internal/wsaccept"
	"github.com/relaykit/netcore/wswire"
)

// ClientState names the client connection's position in its lifecycle,
// adding RESOLVING_HOST and WAITING_WRITE_REQUEST ahead of the
// request/response cycle (spec §4.7), matching the teacher's
// dial-then-upgrade shape in client/client.go but generalized to plain
// HTTP requests as well as the WebSocket upgrade path.
type ClientState int

const (
	ClientStateResolvingHost ClientState = iota
	ClientStateWaitingWriteRequest
	ClientStateResponseHeader
	ClientStateResponseBody
	ClientStateResponseReady
	ClientStateWebUpgradeResponseHeader
	ClientStateWebMessageHeader
	ClientStateWebMessageBody
	ClientStateShutdown
)

// ResponseHandler is invoked once a response (and its buffered body, if
// any) has been fully received.
type ResponseHandler func(c *ClientConn, resp *httpwire.Response, body []byte)

// ClientConn is a client-side HTTP/WebSocket connection state machine.
type ClientConn struct {
	state  ClientState
	writer Writer

	pendingRequest []byte // serialized request, written once dial completes

	respParser *httpwire.ResponseParser
	bodyParser *httpwire.BodyParser
	bodyBuf    []byte

	onResponse ResponseHandler
	onMessage  MessageHandler

	maskSource *pcgrand.Source
	wsKey      string

	frameParser *wswire.FrameParser
	msgOpcode   wswire.Opcode
	msgBuf      []byte
	controlBuf  []byte
	msgOpen     bool
	closeSent   bool

	maxBodyBytes int64
}

// NewClientConn constructs a client connection in RESOLVING_HOST. A
// request queued with EnqueueRequest or BeginUpgrade is written when
// OnConnected reports that the underlying socket finished connecting.
func NewClientConn(w Writer, onResponse ResponseHandler, seed1, seed2 uint64) *ClientConn {
	return &ClientConn{
		state:        ClientStateResolvingHost,
		writer:       w,
		respParser:   httpwire.NewResponseParser(),
		onResponse:   onResponse,
		maskSource:   pcgrand.New(seed1, seed2),
		maxBodyBytes: maxRequestBodyDefault,
	}
}

// EnqueueRequest stores a serialized request to be written once the
// connection reaches WAITING_WRITE_REQUEST, per spec §4.7 ("any
// already-queued request is written when WAITING_WRITE_REQUEST is
// reached").
func (c *ClientConn) EnqueueRequest(req *httpwire.Request) {
	c.pendingRequest = req.Serialize()
}

// OnConnected transitions out of RESOLVING_HOST once the TCP (or TLS)
// connect completes, flushing any enqueued request.
func (c *ClientConn) OnConnected() error {
	c.state = ClientStateWaitingWriteRequest
	if c.pendingRequest != nil {
		if _, err := c.writer.Write(c.pendingRequest); err != nil {
			return err
		}
		c.pendingRequest = nil
		c.state = ClientStateResponseHeader
	}
	return nil
}

// BeginUpgrade builds and enqueues a WebSocket upgrade request for host
// and path, generating a fresh Sec-WebSocket-Key (spec §4.7: "the client
// generates 16 random bytes, base64-encodes them").
func (c *ClientConn) BeginUpgrade(host, path string) {
	var nonce [16]byte
	k1 := c.maskSource.MaskKey()
	k2 := c.maskSource.MaskKey()
	k3 := c.maskSource.MaskKey()
	k4 := c.maskSource.MaskKey()
	copy(nonce[0:4], k1[:])
	copy(nonce[4:8], k2[:])
	copy(nonce[8:12], k3[:])
	copy(nonce[12:16], k4[:])
	c.wsKey = base64.StdEncoding.EncodeToString(nonce[:])

	req := &httpwire.Request{
		Method: "GET", Path: path, Major: 1, Minor: 1,
		Host: host, KeepAlive: true,
		Upgrade:             "websocket",
		SecWebSocketKey:     c.wsKey,
		SecWebSocketVersion: "13",
	}
	c.pendingRequest = req.Serialize()
}

// Feed delivers newly-received bytes, parsing the response header/body or
// upgraded WebSocket frames.
func (c *ClientConn) Feed(data []byte) error {
	for (len(data) > 0 || c.state == ClientStateResponseReady) && c.state != ClientStateShutdown {
		switch c.state {
		case ClientStateResponseHeader:
			n, err := c.respParser.Feed(data)
			data = data[n:]
			if err != nil {
				return err
			}
			if !c.respParser.Done() {
				return nil
			}
			if c.respParser.Response().StatusCode == 101 {
				return c.verifyUpgrade()
			}
			c.beginBody()
		case ClientStateResponseBody:
			out, n, err := c.bodyParser.Feed(data, c.bodyBuf)
			c.bodyBuf = out
			data = data[n:]
			if err != nil {
				return err
			}
			if !c.bodyParser.Done() {
				return nil
			}
			c.state = ClientStateResponseReady
		case ClientStateResponseReady:
			c.dispatchResponse()
		case ClientStateWebMessageHeader, ClientStateWebMessageBody:
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

func (c *ClientConn) beginBody() {
	resp := c.respParser.Response()
	switch {
	case !resp.HasBody():
		c.bodyParser = httpwire.NewEmptyBodyParser()
	case resp.Chunked:
		c.bodyParser = httpwire.NewChunkedBodyParser()
	case resp.HasContentLength && resp.ContentLength > 0:
		c.bodyParser = httpwire.NewContentLengthBodyParser(resp.ContentLength)
	default:
		c.bodyParser = httpwire.NewEmptyBodyParser()
	}
	c.bodyBuf = c.bodyBuf[:0]
	if c.bodyParser.Done() {
		c.state = ClientStateResponseReady
	} else {
		c.state = ClientStateResponseBody
	}
}

func (c *ClientConn) dispatchResponse() {
	resp := c.respParser.Response()
	body := c.bodyBuf
	if resp.KeepAlive {
		c.respParser.Reset()
		c.state = ClientStateResponseHeader
	} else {
		c.state = ClientStateShutdown
	}
	if c.onResponse != nil {
		c.onResponse(c, resp, body)
	}
}

func (c *ClientConn) verifyUpgrade() error {
	resp := c.respParser.Response()
	if !wsaccept.Verify(c.wsKey, resp.SecWebSocketAccept) {
		c.state = ClientStateShutdown
		return ErrProtocolError
	}
	if c.onResponse != nil {
		c.onResponse(c, resp, nil)
	}
	c.frameParser = wswire.NewFrameParser(0)
	c.state = ClientStateWebMessageHeader
	return nil
}

// OnMessage installs the handler invoked for fully reassembled WebSocket
// messages once the upgrade completes.
func (c *ClientConn) OnMessage(h MessageHandler) { c.onMessage = h }

func (c *ClientConn) feedFrame(data []byte) (int, error) {
	if !c.frameParser.HeaderDone() {
		n, err := c.frameParser.FeedHeader(data)
		if err != nil {
			c.state = ClientStateShutdown
			return n, err
		}
		if !c.frameParser.HeaderDone() {
			return n, nil
		}
		if c.frameParser.PayloadDone() {
			return n, c.onFrameComplete()
		}
		c.state = ClientStateWebMessageBody
		return n, nil
	}

	payload, consumed := c.frameParser.FeedPayload(data, nil)
	hdr := c.frameParser.Header()
	if hdr.Opcode.IsControl() {
		c.controlBuf = append(c.controlBuf, payload...)
	} else {
		c.msgBuf = append(c.msgBuf, payload...)
	}
	if !c.frameParser.PayloadDone() {
		return consumed, nil
	}
	return consumed, c.onFrameComplete()
}

func (c *ClientConn) onFrameComplete() error {
	hdr := c.frameParser.Header()
	c.frameParser.Reset()
	c.state = ClientStateWebMessageHeader

	if hdr.Opcode.IsControl() {
		return c.handleControlFrame(hdr)
	}
	return c.handleDataFrame(hdr)
}

func (c *ClientConn) handleDataFrame(hdr wswire.FrameHeader) error {
	switch hdr.Opcode {
	case wswire.OpcodeText, wswire.OpcodeBinary:
		if c.msgOpen {
			c.state = ClientStateShutdown
			return ErrProtocolError
		}
		c.msgOpen = true
		c.msgOpcode = hdr.Opcode
		if hdr.Fin {
			return c.completeMessage()
		}
		return nil
	case wswire.OpcodeContinuation:
		if !c.msgOpen {
			c.state = ClientStateShutdown
			return ErrProtocolError
		}
		if hdr.Fin {
			return c.completeMessage()
		}
		return nil
	default:
		c.state = ClientStateShutdown
		return ErrProtocolError
	}
}

func (c *ClientConn) completeMessage() error {
	body := c.msgBuf
	c.msgBuf = nil
	c.msgOpen = false

	if c.msgOpcode == wswire.OpcodeText && !utf8.Valid(body) {
		c.sendClose(1007)
		return nil
	}
	opcode := OpcodeBinary
	if c.msgOpcode == wswire.OpcodeText {
		opcode = OpcodeText
	}
	if c.onMessage != nil {
		c.onMessage(nil, WebMessage{Opcode: opcode, Body: body})
	}
	return nil
}

func (c *ClientConn) handleControlFrame(hdr wswire.FrameHeader) error {
	payload := c.controlBuf
	c.controlBuf = nil

	switch hdr.Opcode {
	case wswire.OpcodeClose:
		if !c.closeSent {
			c.sendClose(1000)
		}
		c.writer.WriteShutdown()
		c.state = ClientStateShutdown
		return nil
	case wswire.OpcodePing:
		c.sendFrame(wswire.OpcodePong, payload)
		return nil
	case wswire.OpcodePong:
		if c.onMessage != nil {
			c.onMessage(nil, WebMessage{Opcode: OpcodePong, Body: payload})
		}
		return nil
	}
	return nil
}

func (c *ClientConn) sendClose(code uint16) {
	c.closeSent = true
	payload := []byte{byte(code >> 8), byte(code)}
	c.sendFrame(wswire.OpcodeClose, payload)
}

// SendMessage writes a complete, unfragmented, client-masked text or
// binary message (RFC 6455 §5.1: clients must mask every frame).
func (c *ClientConn) SendMessage(opcode Opcode, body []byte) {
	wsOpcode := wswire.OpcodeBinary
	if opcode == OpcodeText {
		wsOpcode = wswire.OpcodeText
	}
	c.sendFrame(wsOpcode, body)
}

func (c *ClientConn) sendFrame(opcode wswire.Opcode, payload []byte) {
	if opcode.IsControl() && len(payload) > maxControlPayload {
		payload = payload[:maxControlPayload]
	}
	frame := wswire.SerializeFrame(true, opcode, payload, true, c.maskSource.MaskKey())
	c.writer.Write(frame)
}
