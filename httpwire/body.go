package httpwire

import (
	"errors"
	"strconv"
	"strings"
)

// MaxChunkHeaderBytes bounds a single chunk-size line (size plus any
// chunk-extensions), and MaxTrailerBytes bounds the cumulative trailer
// section following the terminating zero-size chunk (spec §4.5 security
// limits).
const (
	MaxChunkHeaderBytes = 256
	MaxTrailerBytes     = 4 * 1024
	maxChunkSizeDigits  = 16 // bounds a chunk size to fit in an int64
)

var (
	ErrMalformedChunkSize = errors.New("httpwire: malformed chunk size")
	ErrChunkHeaderTooLong = errors.New("httpwire: chunk header exceeds limit")
	ErrTrailerTooLarge    = errors.New("httpwire: trailer section exceeds limit")
)

type bodyParseState int

const (
	bpsContentLength bodyParseState = iota
	bpsChunkSize
	bpsChunkData
	bpsChunkCRLF
	bpsTrailers
	bpsDone
)

// BodyParser consumes a request or response body according to its framing
// (content-length, chunked-with-trailers, or none), handing decoded body
// bytes back to the caller as they become available. Like the header
// parsers, it tolerates arbitrary chunking of the input (property 1).
type BodyParser struct {
	state bodyParseState

	remaining int64 // content-length mode, or current chunk's remaining bytes

	chunkHeader  *lineScanner
	trailerLine  *lineScanner
	trailerBytes int
	Trailers     []Header

	err error
}

// NewContentLengthBodyParser parses exactly n bytes of body.
func NewContentLengthBodyParser(n int64) *BodyParser {
	return &BodyParser{state: bpsContentLength, remaining: n}
}

// NewChunkedBodyParser parses a chunked body plus optional trailers.
func NewChunkedBodyParser() *BodyParser {
	return &BodyParser{
		state:       bpsChunkSize,
		chunkHeader: newLineScanner(MaxChunkHeaderBytes),
	}
}

// NewEmptyBodyParser represents a request/response with no body at all.
func NewEmptyBodyParser() *BodyParser {
	return &BodyParser{state: bpsDone}
}

func (p *BodyParser) Done() bool { return p.state == bpsDone }
func (p *BodyParser) Err() error { return p.err }

// Feed consumes from data, appending decoded body bytes to dst and
// returning the updated slice, the number of input bytes consumed, and
// any error. Trailer headers (chunked mode only) accumulate in p.Trailers.
func (p *BodyParser) Feed(data []byte, dst []byte) ([]byte, int, error) {
	total := 0
	for len(data) > 0 && p.state != bpsDone && p.err == nil {
		n, consumed := p.step(data, &dst)
		total += consumed
		data = data[consumed:]
		if p.err != nil {
			return dst, total, p.err
		}
		if n == 0 && consumed == 0 {
			break
		}
	}
	return dst, total, nil
}

// step processes as much of data as it can in the current state, appending
// to *dst. It returns (producedBodyBytes, consumedInputBytes).
func (p *BodyParser) step(data []byte, dst *[]byte) (int, int) {
	switch p.state {
	case bpsContentLength:
		n := int64(len(data))
		if n > p.remaining {
			n = p.remaining
		}
		*dst = append(*dst, data[:n]...)
		p.remaining -= n
		if p.remaining == 0 {
			p.state = bpsDone
		}
		return int(n), int(n)

	case bpsChunkSize:
		consumed, line, done, err := p.chunkHeader.feed(data)
		if err != nil {
			p.err = ErrChunkHeaderTooLong
			return 0, consumed
		}
		if !done {
			return 0, consumed
		}
		size, perr := parseChunkSizeLine(line)
		if perr != nil {
			p.err = perr
			return 0, consumed
		}
		p.remaining = size
		if size == 0 {
			p.state = bpsTrailers
			p.trailerLine = newLineScanner(MaxTrailerBytes)
		} else {
			p.state = bpsChunkData
		}
		return 0, consumed

	case bpsChunkData:
		n := int64(len(data))
		if n > p.remaining {
			n = p.remaining
		}
		*dst = append(*dst, data[:n]...)
		p.remaining -= n
		if p.remaining == 0 {
			p.state = bpsChunkCRLF
			p.chunkHeader.reset()
		}
		return int(n), int(n)

	case bpsChunkCRLF:
		// The chunk data is followed by a bare CRLF before the next
		// chunk-size line; reuse the header scanner for that one line.
		consumed, _, done, err := p.chunkHeader.feed(data)
		if err != nil {
			p.err = ErrChunkHeaderTooLong
			return 0, consumed
		}
		if done {
			p.state = bpsChunkSize
		}
		return 0, consumed

	case bpsTrailers:
		consumed, line, done, err := p.trailerLine.feed(data)
		p.trailerBytes += consumed
		if p.trailerBytes > MaxTrailerBytes {
			p.err = ErrTrailerTooLarge
			return 0, consumed
		}
		if err != nil {
			p.err = ErrTrailerTooLarge
			return 0, consumed
		}
		if !done {
			return 0, consumed
		}
		if len(line) == 0 {
			p.state = bpsDone
			return 0, consumed
		}
		if idx := indexColon(line); idx >= 0 {
			name := string(line[:idx])
			value := strings.TrimLeft(string(line[idx+1:]), " \t")
			p.Trailers = append(p.Trailers, Header{Name: name, Value: value})
		}
		return 0, consumed
	}
	return 0, 0
}

func indexColon(line []byte) int {
	for i, c := range line {
		if c == ':' {
			return i
		}
	}
	return -1
}

func parseChunkSizeLine(line []byte) (int64, error) {
	s := string(line)
	if idx := strings.IndexByte(s, ';'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxChunkSizeDigits {
		return 0, ErrMalformedChunkSize
	}
	n, err := strconv.ParseInt(s, 16, 64)
	if err != nil || n < 0 {
		return 0, ErrMalformedChunkSize
	}
	return n, nil
}
