//go:build linux

package transport

import (
	"time"

	"github.com/relaykit/netcore/reactor"
)

// smallChunkThreshold is the spec's "smaller than 1 KiB" coalescing bound
// (§4.4).
const smallChunkThreshold = 1024

// DefaultLinger is the bounded wait after WriteShutdown before the socket
// is force-closed (spec §4.4: "a few seconds").
const DefaultLinger = 3 * time.Second

// BufferedWriter wraps a TCPSocket, queuing unsent bytes as a chunk list
// and driving the two-phase FIN/linger shutdown. Grounded on the spec's
// §4.4 buffered-writer contract; the teacher's nearest analogue is
// protocol/wsconn.go's outbound channel, generalized here from a frame
// channel to a plain byte-chunk deque since this layer sits below the
// protocol engine, not above it.
type BufferedWriter struct {
	socket *TCPSocket
	loop   *reactor.Loop

	chunks    [][]byte
	chunkOff  int // bytes already sent from chunks[0]
	totalSize int

	shuttingDown bool
	lingering    bool
	lingerTimer  *reactor.Timer

	onDrained func()
}

// NewBufferedWriter wraps socket, registering its own readable/writable
// dispatch. onDrained, if non-nil, is invoked whenever the chunk list
// empties (useful to resume producers waiting on backpressure).
func NewBufferedWriter(loop *reactor.Loop, socket *TCPSocket, onReadable func(), onClosed func(), onDrained func()) *BufferedWriter {
	bw := &BufferedWriter{socket: socket, loop: loop, onDrained: onDrained}
	bw.lingerTimer = loop.NewTimer(bw.forceClose)
	socket.OnEvents(func() {
		if bw.lingering {
			bw.drainAndDiscard()
			return
		}
		if onReadable != nil {
			onReadable()
		}
	}, bw.onWritable, onClosed)
	return bw
}

// Write enqueues payload. If the last pending chunk is smaller than 1 KiB
// and payload is also smaller than 1 KiB, it is appended to that chunk;
// otherwise a new chunk is pushed (spec §4.4 coalescing policy).
func (bw *BufferedWriter) Write(payload []byte) {
	if bw.shuttingDown {
		panic("transport: write after WriteShutdown") // programmer error, per spec §7
	}
	if len(bw.chunks) > 0 {
		last := bw.chunks[len(bw.chunks)-1]
		if len(last) < smallChunkThreshold && len(payload) < smallChunkThreshold {
			bw.chunks[len(bw.chunks)-1] = append(last, payload...)
			bw.totalSize += len(payload)
			bw.flush()
			return
		}
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	bw.chunks = append(bw.chunks, cp)
	bw.totalSize += len(payload)
	bw.flush()
}

// PendingBytes returns the total unsent byte count.
func (bw *BufferedWriter) PendingBytes() int { return bw.totalSize }

// CanWrite is true iff there are no pending buffered bytes and the socket
// is open (IsOpen); it does not check the socket's write readiness.
func (bw *BufferedWriter) CanWrite() bool {
	return bw.totalSize == 0 && bw.socket.IsOpen()
}

func (bw *BufferedWriter) onWritable() {
	bw.flush()
}

// flush writes chunks to the socket until one write comes up short or
// fails, then — if fully drained and a shutdown was
// requested — proceeds to FIN + linger.
func (bw *BufferedWriter) flush() {
	for len(bw.chunks) > 0 {
		chunk := bw.chunks[0][bw.chunkOff:]
		n, err := bw.socket.WriteSome(chunk)
		if err != nil {
			return
		}
		bw.totalSize -= n
		if n < len(chunk) {
			bw.chunkOff += n
			return
		}
		bw.chunks = bw.chunks[1:]
		bw.chunkOff = 0
	}
	if bw.totalSize == 0 && bw.onDrained != nil {
		bw.onDrained()
	}
	if bw.shuttingDown && !bw.lingering && len(bw.chunks) == 0 {
		bw.beginLinger()
	}
}

// WriteShutdown marks the writer for close once its queue drains, then
// begins the FIN+linger sequence (spec §4.4).
func (bw *BufferedWriter) WriteShutdown() {
	if bw.shuttingDown {
		return
	}
	bw.shuttingDown = true
	if len(bw.chunks) == 0 {
		bw.beginLinger()
	}
}

func (bw *BufferedWriter) beginLinger() {
	if bw.lingering {
		return
	}
	bw.socket.WriteShutdown()
	bw.lingering = true
	bw.lingerTimer.Once(DefaultLinger)
}

// drainAndDiscard reads and discards up to one buffer's worth of inbound
// bytes per readiness edge while lingering, so a peer withholding FIN
// cannot keep the connection alive (spec §4.4).
func (bw *BufferedWriter) drainAndDiscard() {
	var scratch [4096]byte
	bw.socket.ReadSome(scratch[:])
}

func (bw *BufferedWriter) forceClose() {
	bw.socket.Close()
}

// Close cancels the linger timer and closes the underlying socket
// immediately, for abrupt teardown paths.
func (bw *BufferedWriter) Close() error {
	bw.lingerTimer.Cancel()
	return bw.socket.Close()
}
