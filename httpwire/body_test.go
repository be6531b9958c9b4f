package httpwire

import (
	"bytes"
	"testing"
)

func TestBodyParserContentLength(t *testing.T) {
	p := NewContentLengthBodyParser(5)
	var out []byte
	out, n, err := p.Feed([]byte("hello"), out)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if n != 5 || !p.Done() {
		t.Fatalf("expected fully consumed and done, n=%d done=%v", n, p.Done())
	}
	if string(out) != "hello" {
		t.Fatalf("unexpected body: %q", out)
	}
}

func TestBodyParserContentLengthSplitAcrossFeeds(t *testing.T) {
	p := NewContentLengthBodyParser(10)
	var out []byte
	chunks := []string{"abc", "def", "ghij"}
	for _, c := range chunks {
		var err error
		out, _, err = p.Feed([]byte(c), out)
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
	if !p.Done() {
		t.Fatalf("expected done")
	}
	if string(out) != "abcdefghij" {
		t.Fatalf("unexpected body: %q", out)
	}
}

func TestBodyParserChunkedBasic(t *testing.T) {
	raw := []byte("5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n")
	p := NewChunkedBodyParser()
	var out []byte
	out, n, err := p.Feed(raw, out)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d want %d", n, len(raw))
	}
	if !p.Done() {
		t.Fatalf("expected done")
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected body: %q", out)
	}
}

func TestBodyParserChunkedByteAtATime(t *testing.T) {
	raw := []byte("3\r\nabc\r\n0\r\n\r\n")
	p := NewChunkedBodyParser()
	var out []byte
	for i := 0; i < len(raw) && !p.Done(); i++ {
		var err error
		out, _, err = p.Feed(raw[i:i+1], out)
		if err != nil {
			t.Fatalf("feed byte %d: %v", i, err)
		}
	}
	if !p.Done() {
		t.Fatalf("expected done")
	}
	if string(out) != "abc" {
		t.Fatalf("unexpected body: %q", out)
	}
}

func TestBodyParserChunkedWithTrailers(t *testing.T) {
	raw := []byte("4\r\nwiki\r\n0\r\nX-Checksum: abc123\r\n\r\n")
	p := NewChunkedBodyParser()
	var out []byte
	out, _, err := p.Feed(raw, out)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if string(out) != "wiki" {
		t.Fatalf("unexpected body: %q", out)
	}
	if len(p.Trailers) != 1 || p.Trailers[0].Name != "X-Checksum" || p.Trailers[0].Value != "abc123" {
		t.Fatalf("unexpected trailers: %+v", p.Trailers)
	}
}

func TestBodyParserChunkedWithExtension(t *testing.T) {
	raw := []byte("3;foo=bar\r\nabc\r\n0\r\n\r\n")
	p := NewChunkedBodyParser()
	var out []byte
	out, _, err := p.Feed(raw, out)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if string(out) != "abc" {
		t.Fatalf("unexpected body: %q", out)
	}
}

func TestBodyParserChunkHeaderTooLong(t *testing.T) {
	raw := append(bytes.Repeat([]byte("f"), MaxChunkHeaderBytes+1), '\r', '\n')
	p := NewChunkedBodyParser()
	var out []byte
	_, _, err := p.Feed(raw, out)
	if err != ErrChunkHeaderTooLong {
		t.Fatalf("expected ErrChunkHeaderTooLong, got %v", err)
	}
}

func TestBodyParserTrailerTooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("a"), MaxTrailerBytes+1)
	raw := append([]byte("0\r\nX-Big: "), big...)
	raw = append(raw, '\r', '\n', '\r', '\n')
	p := NewChunkedBodyParser()
	var out []byte
	_, _, err := p.Feed(raw, out)
	if err != ErrTrailerTooLarge {
		t.Fatalf("expected ErrTrailerTooLarge, got %v", err)
	}
}

func TestBodyParserEmptyBody(t *testing.T) {
	p := NewEmptyBodyParser()
	if !p.Done() {
		t.Fatalf("empty body parser should start done")
	}
}
