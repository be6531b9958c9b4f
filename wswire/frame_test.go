package wswire

import (
	"bytes"
	"testing"
)

func parseFullFrame(t *testing.T, raw []byte, maxPayload int64) (FrameHeader, []byte, int) {
	t.Helper()
	p := NewFrameParser(maxPayload)
	n, err := p.FeedHeader(raw)
	if err != nil {
		t.Fatalf("header parse: %v", err)
	}
	if !p.HeaderDone() {
		t.Fatalf("header not complete from %d bytes", len(raw))
	}
	var payload []byte
	payload, pn := p.FeedPayload(raw[n:], payload)
	n += pn
	if !p.PayloadDone() {
		t.Fatalf("payload not fully consumed")
	}
	return p.Header(), payload, n
}

func TestFrameRoundTripUnmasked(t *testing.T) {
	raw := SerializeFrame(true, OpcodeText, []byte("hello"), false, [4]byte{})
	hdr, payload, n := parseFullFrame(t, raw, 0)
	if n != len(raw) {
		t.Fatalf("consumed %d want %d", n, len(raw))
	}
	if !hdr.Fin || hdr.Opcode != OpcodeText || hdr.Masked {
		t.Fatalf("unexpected header: %+v", hdr)
	}
	if string(payload) != "hello" {
		t.Fatalf("unexpected payload: %q", payload)
	}
}

func TestFrameRoundTripMasked(t *testing.T) {
	key := [4]byte{0x12, 0x34, 0x56, 0x78}
	raw := SerializeFrame(true, OpcodeBinary, []byte("binary-data"), true, key)
	hdr, payload, _ := parseFullFrame(t, raw, 0)
	if !hdr.Masked || hdr.MaskKey != key {
		t.Fatalf("unexpected mask state: %+v", hdr)
	}
	if string(payload) != "binary-data" {
		t.Fatalf("unexpected payload: %q", payload)
	}
}

func TestFrameBoundaryLengths(t *testing.T) {
	sizes := []int{0, 1, 125, 126, 127, 65535, 65536, 70000}
	for _, size := range sizes {
		payload := bytes.Repeat([]byte{0xAB}, size)
		raw := SerializeFrame(true, OpcodeBinary, payload, false, [4]byte{})
		_, got, _ := parseFullFrame(t, raw, 0)
		if !bytes.Equal(got, payload) {
			t.Fatalf("size %d: payload mismatch (got %d bytes want %d)", size, len(got), len(payload))
		}
	}
}

func TestFrameHeaderByteAtATime(t *testing.T) {
	raw := SerializeFrame(true, OpcodeText, bytes.Repeat([]byte{'x'}, 200), true, [4]byte{1, 2, 3, 4})
	p := NewFrameParser(0)
	consumed := 0
	for !p.HeaderDone() {
		n, err := p.FeedHeader(raw[consumed : consumed+1])
		if err != nil {
			t.Fatalf("feed header: %v", err)
		}
		consumed += n
	}
	var payload []byte
	for !p.PayloadDone() {
		var n int
		payload, n = p.FeedPayload(raw[consumed:consumed+1], payload)
		consumed += n
		if n == 0 {
			consumed++ // keep loop from stalling on zero-length feeds; shouldn't happen
			break
		}
	}
	if len(payload) != 200 {
		t.Fatalf("expected 200 byte payload, got %d", len(payload))
	}
}

func TestControlFrameTooLargeRejected(t *testing.T) {
	p := NewFrameParser(0)
	raw := []byte{0x89, 126, 0, 200} // Ping, extended-length form claiming 200 bytes
	_, err := p.FeedHeader(raw)
	if err != ErrControlFrameTooLarge {
		t.Fatalf("expected ErrControlFrameTooLarge, got %v", err)
	}
}

func TestFragmentedControlFrameRejected(t *testing.T) {
	p := NewFrameParser(0)
	raw := []byte{0x09, 0x00} // Ping, FIN not set
	_, err := p.FeedHeader(raw)
	if err != ErrControlFrameFragmented {
		t.Fatalf("expected ErrControlFrameFragmented, got %v", err)
	}
}

func TestReservedBitsRejected(t *testing.T) {
	p := NewFrameParser(0)
	raw := []byte{0xC1, 0x00} // FIN + RSV1 + text opcode
	_, err := p.FeedHeader(raw)
	if err != ErrReservedBitsSet {
		t.Fatalf("expected ErrReservedBitsSet, got %v", err)
	}
}

func TestFrameExceedsConfiguredLimit(t *testing.T) {
	p := NewFrameParser(10)
	raw := SerializeFrame(true, OpcodeBinary, bytes.Repeat([]byte{0}, 50), false, [4]byte{})
	_, err := p.FeedHeader(raw)
	if err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}
