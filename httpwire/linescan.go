package httpwire

import "errors"

// ErrLineTooLong is returned when a single CRLF-terminated line would
// exceed the caller-supplied budget before a terminator is seen.
var ErrLineTooLong = errors.New("httpwire: line exceeds limit")

// lineScanner accumulates bytes one at a time (or in bulk) until a CRLF
// (or bare LF) terminator appears, returning the completed line with the
// terminator stripped. Because it processes bytes strictly in order
// regardless of how they were chunked across Feed calls, one-byte-at-a-
// time and whole-buffer feeding are guaranteed to produce identical
// results — this is what gives the parsers testable property 1.
type lineScanner struct {
	buf   []byte
	limit int
}

func newLineScanner(limit int) *lineScanner {
	return &lineScanner{limit: limit}
}

// feed consumes as much of data as forms a single line. It returns the
// number of bytes consumed, the completed line (nil if not yet complete),
// and an error if the accumulated line exceeds the limit.
func (ls *lineScanner) feed(data []byte) (consumed int, line []byte, done bool, err error) {
	for i, c := range data {
		if c == '\n' {
			l := ls.buf
			if n := len(l); n > 0 && l[n-1] == '\r' {
				l = l[:n-1]
			}
			out := make([]byte, len(l))
			copy(out, l)
			ls.buf = ls.buf[:0]
			return i + 1, out, true, nil
		}
		ls.buf = append(ls.buf, c)
		if ls.limit > 0 && len(ls.buf) > ls.limit {
			return i + 1, nil, false, ErrLineTooLong
		}
	}
	return len(data), nil, false, nil
}

// reset clears accumulated state for reuse across requests (keep-alive).
func (ls *lineScanner) reset() {
	ls.buf = ls.buf[:0]
}
