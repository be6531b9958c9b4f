package httpwire

import (
	"strconv"
	"strings"
)

type responseParseState int

const (
	rspStatusLine responseParseState = iota
	rspHeaders
	rspDone
)

// ResponseParser incrementally parses an HTTP/1.1 status line + headers,
// the client-side mirror of RequestParser (spec §4.5).
type ResponseParser struct {
	ls    *lineScanner
	state responseParseState
	resp  *Response

	headerBytes   int
	lastHeaderIdx int
	err           error
}

func NewResponseParser() *ResponseParser {
	return &ResponseParser{
		ls:            newLineScanner(MaxHeaderBytes + 4),
		resp:          &Response{},
		lastHeaderIdx: -1,
	}
}

func (p *ResponseParser) Done() bool        { return p.state == rspDone }
func (p *ResponseParser) Err() error        { return p.err }
func (p *ResponseParser) Response() *Response { return p.resp }

func (p *ResponseParser) Feed(data []byte) (int, error) {
	total := 0
	for len(data) > 0 && p.state != rspDone && p.err == nil {
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

func (p *ResponseParser) handleLine(line []byte) {
	switch p.state {
	case rspStatusLine:
		p.parseStatusLine(string(line))
		p.state = rspHeaders
	case rspHeaders:
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

func (p *ResponseParser) parseStatusLine(line string) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		p.err = ErrMalformedRequestLine
		return
	}
	major, minor, ok := parseHTTPVersion(parts[0])
	if !ok {
		p.err = ErrMalformedRequestLine
		return
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		p.err = ErrMalformedRequestLine
		return
	}
	p.resp.Major, p.resp.Minor = major, minor
	p.resp.StatusCode = code
	if len(parts) == 3 {
		p.resp.Reason = parts[2]
	}
	p.resp.KeepAlive = major == 1 && minor == 1
}

func (p *ResponseParser) handleObsFold(line []byte) {
	if p.lastHeaderIdx < 0 {
		p.err = ErrObsFoldWithoutHeader
		return
	}
	cont := strings.TrimSpace(string(line))
	h := &p.resp.Headers[p.lastHeaderIdx]
	h.Value = h.Value + " " + cont
}

func (p *ResponseParser) handleHeaderLine(line string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		p.err = ErrMalformedHeaderLine
		return
	}
	name := line[:idx]
	value := strings.TrimLeft(line[idx+1:], " \t")
	p.resp.Headers = append(p.resp.Headers, Header{Name: name, Value: value})
	p.lastHeaderIdx = len(p.resp.Headers) - 1
}

// finalize extracts every typed header into its struct field, leaving
// resp.Headers holding only the genuinely-other header lines — the
// response-side mirror of RequestParser.finalize.
func (p *ResponseParser) finalize() {
	resp := p.resp
	hasCL, hasTE := false, false
	extra := make([]Header, 0, len(resp.Headers))
	for _, h := range resp.Headers {
		switch {
		case asciiEqualFold(h.Name, "Content-Type"):
			resp.ContentType = h.Value
		case asciiEqualFold(h.Name, "Upgrade"):
			resp.Upgrade = h.Value
		case asciiEqualFold(h.Name, "Sec-WebSocket-Accept"):
			resp.SecWebSocketAccept = h.Value
		case asciiEqualFold(h.Name, "Connection"):
			applyResponseConnectionTokens(h.Value, resp)
		case asciiEqualFold(h.Name, "Content-Length"):
			hasCL = true
			n, err := strconv.ParseInt(strings.TrimSpace(h.Value), 10, 64)
			if err != nil || n < 0 {
				p.err = ErrMalformedHeaderLine
				return
			}
			resp.ContentLength = n
			resp.HasContentLength = true
		case asciiEqualFold(h.Name, "Transfer-Encoding"):
			hasTE = true
			if containsToken(h.Value, "chunked") {
				resp.Chunked = true
			}
		default:
			extra = append(extra, h)
		}
	}
	if hasCL && hasTE {
		p.err = ErrBothLengthFraming
		return
	}
	resp.Headers = extra
	p.state = rspDone
}

func applyResponseConnectionTokens(value string, resp *Response) {
	for _, tok := range strings.Split(value, ",") {
		switch asciiLower(strings.TrimSpace(tok)) {
		case "close":
			resp.KeepAlive = false
		case "keep-alive":
			resp.KeepAlive = true
		}
	}
}

func (p *ResponseParser) Reset() {
	p.ls.reset()
	p.state = rspStatusLine
	p.resp = &Response{}
	p.headerBytes = 0
	p.lastHeaderIdx = -1
	p.err = nil
}

// HasBody reports whether a response of this status code carries a body
// per RFC 7230 §3.3.3 (1xx, 204, 304 never do, regardless of framing
// headers).
func (resp *Response) HasBody() bool {
	if resp.StatusCode >= 100 && resp.StatusCode < 200 {
		return false
	}
	return resp.StatusCode != 204 && resp.StatusCode != 304
}

// Serialize renders resp back to wire form. Typed fields are written out
// as their own header lines first, then the remaining (non-typed)
// Headers vector — the response-side mirror of Request.Serialize.
func (resp *Response) Serialize() []byte {
	var b strings.Builder
	b.WriteString("HTTP/")
	b.WriteString(strconv.Itoa(resp.Major))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(resp.Minor))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(resp.StatusCode))
	b.WriteByte(' ')
	b.WriteString(resp.Reason)
	b.WriteString("\r\n")
	if resp.ContentType != "" {
		b.WriteString("Content-Type: ")
		b.WriteString(resp.ContentType)
		b.WriteString("\r\n")
	}
	if resp.HasContentLength {
		b.WriteString("Content-Length: ")
		b.WriteString(strconv.FormatInt(resp.ContentLength, 10))
		b.WriteString("\r\n")
	}
	if resp.Chunked {
		b.WriteString("Transfer-Encoding: chunked\r\n")
	}
	if resp.Upgrade != "" {
		b.WriteString("Upgrade: ")
		b.WriteString(resp.Upgrade)
		b.WriteString("\r\nConnection: Upgrade\r\n")
	} else if !resp.KeepAlive {
		b.WriteString("Connection: close\r\n")
	}
	if resp.SecWebSocketAccept != "" {
		b.WriteString("Sec-WebSocket-Accept: ")
		b.WriteString(resp.SecWebSocketAccept)
		b.WriteString("\r\n")
	}
	for _, h := range resp.Headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
