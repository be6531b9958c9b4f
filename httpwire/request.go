package httpwire

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxHeaderBytes is the spec's total-header-length security limit (§4.5).
const MaxHeaderBytes = 8 * 1024

var (
	ErrMalformedRequestLine = errors.New("httpwire: malformed request line")
	ErrMalformedHeaderLine  = errors.New("httpwire: malformed header line")
	ErrHeadersTooLarge      = errors.New("httpwire: headers exceed limit")
	ErrBothLengthFraming    = errors.New("httpwire: both Content-Length and Transfer-Encoding set")
	ErrObsFoldWithoutHeader = errors.New("httpwire: continuation line without preceding header")
)

type requestParseState int

const (
	rpsRequestLine requestParseState = iota
	rpsHeaders
	rpsDone
)

// RequestParser incrementally parses an HTTP/1.1 request line + headers
// (spec §4.5, component C6). Feed may be called with any chunking — one
// byte at a time or the whole buffer at once — with identical results
// (testable property 1).
type RequestParser struct {
	ls    *lineScanner
	state requestParseState
	req   *Request

	headerBytes   int
	lastHeaderIdx int
	err           error
}

// NewRequestParser constructs a fresh parser for one request.
func NewRequestParser() *RequestParser {
	return &RequestParser{
		ls:            newLineScanner(MaxHeaderBytes + 4),
		req:           &Request{},
		lastHeaderIdx: -1,
	}
}

// Done reports whether the header section has been fully parsed.
func (p *RequestParser) Done() bool { return p.state == rpsDone }

// Err returns the first parse error encountered, if any.
func (p *RequestParser) Err() error { return p.err }

// Request returns the parsed request. Valid once Done() is true.
func (p *RequestParser) Request() *Request { return p.req }

// Feed consumes as much of data as completes the header section, stopping
// as soon as it is Done or has failed. It returns the number of bytes
// consumed; callers must retain any unconsumed suffix (it belongs to the
// body).
func (p *RequestParser) Feed(data []byte) (int, error) {
	total := 0
	for len(data) > 0 && p.state != rpsDone && p.err == nil {
		n, line, lineDone, err := p.ls.feed(data)
		total += n
		data = data[n:]
		if err != nil {
			// A single line longer than the whole header budget means the
			// header section is over the limit.
			p.err = ErrHeadersTooLarge
			return total, p.err
		}
		if !lineDone {
			break
		}
		p.handleLine(line)
		if p.err != nil {
			return total, p.err
		}
	}
	return total, nil
}

func (p *RequestParser) handleLine(line []byte) {
	switch p.state {
	case rpsRequestLine:
		p.parseRequestLine(string(line))
		p.state = rpsHeaders
	case rpsHeaders:
		p.headerBytes += len(line) + 2
		if p.headerBytes > MaxHeaderBytes {
			p.err = ErrHeadersTooLarge
			return
		}
		if len(line) == 0 {
			p.finalize()
			return
		}
		if line[0] == ' ' || line[0] == '\t' {
			p.handleObsFold(line)
			return
		}
		p.handleHeaderLine(string(line))
	}
}

func (p *RequestParser) parseRequestLine(line string) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		p.err = ErrMalformedRequestLine
		return
	}
	method, target, proto := parts[0], parts[1], parts[2]
	major, minor, ok := parseHTTPVersion(proto)
	if !ok {
		p.err = ErrMalformedRequestLine
		return
	}
	p.req.Method = method
	p.req.Major, p.req.Minor = major, minor
	p.req.Path, p.req.Query, p.req.Fragment = splitURI(target)
	// HTTP/1.1 defaults to keep-alive, HTTP/1.0 does not (overridden later
	// by an explicit Connection header).
	p.req.KeepAlive = major == 1 && minor == 1
}

func parseHTTPVersion(s string) (major, minor int, ok bool) {
	var maj, min int
	n, err := fmt.Sscanf(s, "HTTP/%d.%d", &maj, &min)
	if err != nil || n != 2 {
		return 0, 0, false
	}
	return maj, min, true
}

func (p *RequestParser) handleObsFold(line []byte) {
	if p.lastHeaderIdx < 0 {
		p.err = ErrObsFoldWithoutHeader
		return
	}
	cont := strings.TrimSpace(string(line))
	h := &p.req.Headers[p.lastHeaderIdx]
	h.Value = h.Value + " " + cont
}

func (p *RequestParser) handleHeaderLine(line string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		p.err = ErrMalformedHeaderLine
		return
	}
	name := line[:idx]
	value := strings.TrimLeft(line[idx+1:], " \t")
	p.req.Headers = append(p.req.Headers, Header{Name: name, Value: value})
	p.lastHeaderIdx = len(p.req.Headers) - 1
}

// finalize extracts every typed header into its struct field, leaving
// req.Headers holding only the genuinely-other header lines — matching
// the teacher's request_parser.hxx process_ready_header, where each typed
// case returns immediately and only the fallthrough default pushes onto
// the headers vector.
func (p *RequestParser) finalize() {
	req := p.req
	hasCL, hasTE := false, false
	extra := make([]Header, 0, len(req.Headers))
	for _, h := range req.Headers {
		switch {
		case asciiEqualFold(h.Name, "Host"):
			req.Host = h.Value
		case asciiEqualFold(h.Name, "Origin"):
			req.Origin = h.Value
		case asciiEqualFold(h.Name, "Content-Type"):
			req.ContentType = h.Value
		case asciiEqualFold(h.Name, "Upgrade"):
			req.Upgrade = h.Value
		case asciiEqualFold(h.Name, "Sec-WebSocket-Key"):
			req.SecWebSocketKey = h.Value
		case asciiEqualFold(h.Name, "Sec-WebSocket-Version"):
			req.SecWebSocketVersion = h.Value
		case asciiEqualFold(h.Name, "Sec-WebSocket-Protocol"):
			req.SecWebSocketProtocol = h.Value
		case asciiEqualFold(h.Name, "Sec-WebSocket-Extensions"):
			req.SecWebSocketExtensions = h.Value
		case asciiEqualFold(h.Name, "Authorization"):
			parseBasicAuth(h.Value, req)
		case asciiEqualFold(h.Name, "Connection"):
			applyConnectionTokens(h.Value, req)
		case asciiEqualFold(h.Name, "Content-Length"):
			hasCL = true
			n, err := strconv.ParseInt(strings.TrimSpace(h.Value), 10, 64)
			if err != nil || n < 0 {
				p.err = ErrMalformedHeaderLine
				return
			}
			req.ContentLength = n
			req.HasContentLength = true
		case asciiEqualFold(h.Name, "Transfer-Encoding"):
			hasTE = true
			if containsToken(h.Value, "chunked") {
				req.Chunked = true
			}
		default:
			extra = append(extra, h)
		}
	}
	if hasCL && hasTE {
		p.err = ErrBothLengthFraming
		return
	}
	req.Headers = extra
	p.state = rpsDone
}

func applyConnectionTokens(value string, req *Request) {
	for _, tok := range strings.Split(value, ",") {
		switch asciiLower(strings.TrimSpace(tok)) {
		case "close":
			req.KeepAlive = false
		case "keep-alive":
			req.KeepAlive = true
		}
	}
}

func containsToken(value, token string) bool {
	for _, tok := range strings.Split(value, ",") {
		if asciiLower(strings.TrimSpace(tok)) == token {
			return true
		}
	}
	return false
}

func parseBasicAuth(value string, req *Request) {
	const prefix = "Basic "
	if len(value) < len(prefix) || !asciiEqualFold(value[:len(prefix)], prefix) {
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(value[len(prefix):])
	if err != nil {
		return
	}
	s := string(decoded)
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return
	}
	req.AuthorizationBasicUser = s[:idx]
	req.AuthorizationBasicPass = s[idx+1:]
	req.HasAuthorizationBasic = true
}

// Reset reuses the parser for the next request on a keep-alive connection.
func (p *RequestParser) Reset() {
	p.ls.reset()
	p.state = rpsRequestLine
	p.req = &Request{}
	p.headerBytes = 0
	p.lastHeaderIdx = -1
	p.err = nil
}

// Serialize renders req back to wire form, for round-trip testing
// (testable property 3) and for the client side's outgoing request. Typed
// fields are written out as their own header lines first, then the
// remaining (non-typed) Headers vector — mirroring request_parser.hxx's
// to_string, which writes host/origin/authorization/... explicitly before
// appending whatever is left in its own headers vector.
func (req *Request) Serialize() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", req.Method, req.Path)
	if req.Query != "" {
		b.WriteByte('?')
		b.WriteString(req.Query)
	}
	if req.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(req.Fragment)
	}
	fmt.Fprintf(&b, " HTTP/%d.%d\r\n", req.Major, req.Minor)
	if req.Host != "" {
		fmt.Fprintf(&b, "Host: %s\r\n", req.Host)
	}
	if req.Origin != "" {
		fmt.Fprintf(&b, "Origin: %s\r\n", req.Origin)
	}
	if req.HasAuthorizationBasic {
		creds := base64.StdEncoding.EncodeToString([]byte(req.AuthorizationBasicUser + ":" + req.AuthorizationBasicPass))
		fmt.Fprintf(&b, "Authorization: Basic %s\r\n", creds)
	}
	if req.ContentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", req.ContentType)
	}
	if req.HasContentLength {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", req.ContentLength)
	}
	if req.Chunked {
		b.WriteString("Transfer-Encoding: chunked\r\n")
	}
	if req.Upgrade != "" {
		fmt.Fprintf(&b, "Upgrade: %s\r\n", req.Upgrade)
		b.WriteString("Connection: Upgrade\r\n")
	} else if !req.KeepAlive {
		b.WriteString("Connection: close\r\n")
	}
	if req.SecWebSocketKey != "" {
		fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", req.SecWebSocketKey)
	}
	if req.SecWebSocketVersion != "" {
		fmt.Fprintf(&b, "Sec-WebSocket-Version: %s\r\n", req.SecWebSocketVersion)
	}
	if req.SecWebSocketProtocol != "" {
		fmt.Fprintf(&b, "Sec-WebSocket-Protocol: %s\r\n", req.SecWebSocketProtocol)
	}
	if req.SecWebSocketExtensions != "" {
		fmt.Fprintf(&b, "Sec-WebSocket-Extensions: %s\r\n", req.SecWebSocketExtensions)
	}
	for _, h := range req.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Name, h.Value)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
