// Package buffer implements the fixed-capacity ring buffer shared by every
// connection and the reactor wakeup path.
//
// Grounded on the index-arithmetic idiom of the teacher's pool.RingBuffer
// (github.com/momentics/hioload-ws/pool), generalized from a lock-free
// generic object ring into a single-owner byte ring that exposes
// contiguous read/write spans, the way the spec's Buffer component
// requires. Single ownership means no atomics are needed here.
package buffer

import (
	"errors"
	"io"
)

// ErrFull names the condition of a buffer with no room left. No Buffer
// method returns it: WriteSome reports a short count instead.
var ErrFull = errors.New("buffer: full")

// Buffer is a fixed-capacity circular byte array. Zero value is not usable;
// construct with New. Not safe for concurrent use — exactly one connection
// or the reactor wakeup owns a Buffer at a time.
type Buffer struct {
	data     []byte
	readPos  int
	writePos int
}

// New allocates a Buffer with the given fixed capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("buffer: capacity must be positive")
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Size returns the number of unread bytes currently stored.
func (b *Buffer) Size() int { return b.writePos - b.readPos }

// Empty reports whether there are no unread bytes.
func (b *Buffer) Empty() bool { return b.readPos == b.writePos }

// Full reports whether the buffer holds capacity bytes.
func (b *Buffer) Full() bool { return b.Size() == b.Cap() }

// Free returns the number of additional bytes that can be written.
func (b *Buffer) Free() int { return b.Cap() - b.Size() }

// reset collapses positions to zero once fully drained, maximizing the
// chance of a single contiguous span on the next read or write.
func (b *Buffer) reset() {
	if b.readPos == b.writePos {
		b.readPos, b.writePos = 0, 0
	}
}

// ReadSpans returns up to two contiguous slices covering the unread bytes,
// in order. The second slice is non-empty only when the unread region
// wraps past the end of the backing array.
func (b *Buffer) ReadSpans() (first, second []byte) {
	size := b.Size()
	if size == 0 {
		return nil, nil
	}
	cap := b.Cap()
	start := b.readPos % cap
	end := start + size
	if end <= cap {
		return b.data[start:end], nil
	}
	return b.data[start:cap], b.data[0 : end-cap]
}

// WriteSpans returns up to two contiguous slices covering the writable
// region, in order the caller must fill before calling DidWrite.
func (b *Buffer) WriteSpans() (first, second []byte) {
	free := b.Free()
	if free == 0 {
		return nil, nil
	}
	cap := b.Cap()
	start := b.writePos % cap
	end := start + free
	if end <= cap {
		return b.data[start:end], nil
	}
	return b.data[start:cap], b.data[0 : end-cap]
}

// DidRead advances the read cursor by n bytes without copying; n must not
// exceed Size().
func (b *Buffer) DidRead(n int) {
	if n < 0 || n > b.Size() {
		panic("buffer: DidRead out of range")
	}
	b.readPos += n
	b.reset()
}

// DidWrite advances the write cursor by n bytes without copying; n must
// not exceed Free().
func (b *Buffer) DidWrite(n int) {
	if n < 0 || n > b.Free() {
		panic("buffer: DidWrite out of range")
	}
	b.writePos += n
}

// Peek copies up to len(dst) unread bytes into dst without consuming them,
// returning the number of bytes copied.
func (b *Buffer) Peek(dst []byte) int {
	first, second := b.ReadSpans()
	n := copy(dst, first)
	if n < len(dst) {
		n += copy(dst[n:], second)
	}
	return n
}

// ReadSome copies up to len(dst) unread bytes into dst, consuming them.
func (b *Buffer) ReadSome(dst []byte) int {
	n := b.Peek(dst)
	b.DidRead(n)
	return n
}

// WriteSome copies up to len(src) bytes from src into the buffer,
// returning the number actually written (limited by Free()).
func (b *Buffer) WriteSome(src []byte) int {
	first, second := b.WriteSpans()
	n := copy(first, src)
	if n < len(src) {
		n += copy(second, src[n:])
	}
	b.DidWrite(n)
	return n
}

// ReadFrom drains r into the buffer until r returns zero bytes (would
// block / EOF) or the buffer fills, satisfying io.ReaderFrom. It loops
// internally, matching the spec's "read_from loops until the backing
// stream returns zero" contract.
func (b *Buffer) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	for {
		first, second := b.WriteSpans()
		if len(first) == 0 {
			return total, nil
		}
		n, err := r.Read(first)
		total += int64(n)
		b.DidWrite(n)
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		_ = second
	}
}

// WriteTo drains the buffer into w until empty, satisfying io.WriterTo.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for !b.Empty() {
		first, _ := b.ReadSpans()
		n, err := w.Write(first)
		total += int64(n)
		b.DidRead(n)
		if err != nil {
			return total, err
		}
		if n < len(first) {
			return total, nil
		}
	}
	return total, nil
}

// Clear discards all unread bytes.
func (b *Buffer) Clear() {
	b.readPos, b.writePos = 0, 0
}
