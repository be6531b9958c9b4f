package buffer

import (
	"bytes"
	"strings"
	"testing"
)

func TestReadWriteSomeFIFO(t *testing.T) {
	b := New(8)
	n := b.WriteSome([]byte("hello"))
	if n != 5 {
		t.Fatalf("want 5, got %d", n)
	}
	dst := make([]byte, 3)
	n = b.ReadSome(dst)
	if n != 3 || string(dst) != "hel" {
		t.Fatalf("got %q", dst[:n])
	}
	n = b.WriteSome([]byte("XY"))
	if n != 2 {
		t.Fatalf("want 2, got %d", n)
	}
	rest := make([]byte, 16)
	n = b.ReadSome(rest)
	if string(rest[:n]) != "loXY" {
		t.Fatalf("got %q", rest[:n])
	}
}

func TestFullAndFreeAfterWrap(t *testing.T) {
	b := New(4)
	b.WriteSome([]byte("ab"))
	b.DidRead(2)
	if !b.Empty() {
		t.Fatal("expected empty after full drain, positions should reset")
	}
	n := b.WriteSome([]byte("wxyz"))
	if n != 4 || !b.Full() {
		t.Fatalf("expected full buffer of 4, wrote %d", n)
	}
	if b.Free() != 0 {
		t.Fatalf("expected 0 free, got %d", b.Free())
	}
}

func TestWrappingSpans(t *testing.T) {
	b := New(4)
	b.WriteSome([]byte("abcd"))
	out := make([]byte, 2)
	b.ReadSome(out) // consume "ab", readPos=2 writePos=4
	b.WriteSome([]byte("ef"))
	first, second := b.ReadSpans()
	got := append(append([]byte{}, first...), second...)
	if string(got) != "cdef" {
		t.Fatalf("want cdef, got %q", got)
	}
}

func TestReadFromWriteTo(t *testing.T) {
	b := New(16)
	src := strings.NewReader("the quick brown fox")
	n, err := b.ReadFrom(src)
	if err != nil {
		t.Fatal(err)
	}
	if n != 16 {
		t.Fatalf("expected to fill capacity (16), got %d", n)
	}
	var out bytes.Buffer
	if _, err := b.WriteTo(&out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "the quick brown " {
		t.Fatalf("got %q", out.String())
	}
	if !b.Empty() {
		t.Fatal("expected buffer emptied by WriteTo")
	}
}

func TestDidReadDidWriteBounds(t *testing.T) {
	b := New(4)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-range DidRead")
		}
	}()
	b.DidRead(1)
}
