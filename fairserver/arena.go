// Package fairserver implements the bounded-resource, round-robin fair
// request server (spec §4.9, component C10): a toy 16-byte-framed
// request/response protocol served over the reactor/transport stack,
// with six resource caps and three round-robin FIFOs preventing any one
// client from starving the others.
//
// Grounded directly on original_source/examples/api_server.cpp's
// ApiNetwork class: the same client states (READING_HEADER,
// WAITING_MEMORY_FOR_BODY, READING_BODY), the same three intrusive
// queues (request_memory_queue, read_body_queue, response_memory_queue),
// and the same worker hand-off shape — reworked per DESIGN NOTES §9 into
// an arena-indexed slice with (slot, generation) references instead of
// raw Client pointers, and the worker pool grounded on the teacher's
// internal/concurrency/executor.go (github.com/eapache/queue FIFO).
package fairserver

import (
	"github.com/relaykit/netcore/buffer"
	"github.com/relaykit/netcore/transport"
)

const readBufferCapacity = 4096

// clientState is a client's position in the request pipeline.
type clientState int

const (
	stateReadingHeader clientState = iota
	stateWaitingMemoryForBody
	stateReadingBody
)

// HeaderSize is the toy protocol's fixed request/response header size:
// body_len uint32, kind uint32, rid uint64 (spec §6, grounded on
// original_source/examples/api_server.hpp's ApiHeader).
const HeaderSize = 16

// queueLink is one membership record in an intrusive, arena-indexed FIFO
// (DESIGN NOTES §9: "arena + indices", never raw pointers/next fields on
// heap nodes).
type queueLink struct {
	prev, next int
	linked     bool
}

func newQueueLink() queueLink { return queueLink{prev: -1, next: -1} }

// Client is one connection's full pipeline state. It lives in Arena's
// slice, addressed by slot index; WorkItems refer to it by
// (slot, generation) rather than by pointer so that a reply for a
// disconnected-and-reused slot is detected as stale (spec §4.9, §9).
type Client struct {
	generation uint64
	inUse      bool

	sock   *transport.TCPSocket
	writer *transport.BufferedWriter
	readBuf *buffer.Buffer

	state clientState

	headerScratch    [HeaderSize]byte
	headerHave       int
	pendingKind      uint32
	pendingRID       uint64
	pendingBodyLen   uint32
	requestBody      []byte
	requestBodyHave  int

	requests             [][]byte // fully-read request bodies awaiting a worker
	pendingKindByRequest []uint32 // kind, parallel to requests
	pendingRIDByRequest  []uint64 // rid, parallel to requests
	responses            [][]byte // worker responses awaiting transmission

	requestsInWork int
	totalRead      uint64
	totalWritten   uint64

	requestMemoryLink   queueLink
	readBodyLink        queueLink
	responseMemoryLink  queueLink
}

// Arena owns the fixed-address-by-index slice of Client records plus a
// free list of reusable slots (spec §9: never invalidate a live slot's
// index, reuse only after disconnect).
type Arena struct {
	clients  []*Client
	freeList []int
}

func newArena() *Arena { return &Arena{} }

// Alloc returns a fresh (slot, generation) pair, reusing a free slot if
// one exists.
func (a *Arena) Alloc() (int, uint64) {
	if n := len(a.freeList); n > 0 {
		slot := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		c := a.clients[slot]
		c.generation++
		c.inUse = true
		c.readBuf = buffer.New(readBufferCapacity)
		return slot, c.generation
	}
	slot := len(a.clients)
	c := &Client{
		generation:         1,
		inUse:              true,
		readBuf:            buffer.New(readBufferCapacity),
		requestMemoryLink:  newQueueLink(),
		readBodyLink:       newQueueLink(),
		responseMemoryLink: newQueueLink(),
	}
	a.clients = append(a.clients, c)
	return slot, c.generation
}

// Free returns a slot to the pool and marks it not in use, so Get rejects
// any in-flight WorkItem referencing it; the generation is bumped when
// Alloc reuses the slot (spec §9 "generation-tagged back-references").
func (a *Arena) Free(slot int) {
	c := a.clients[slot]
	*c = Client{
		generation:         c.generation,
		requestMemoryLink:  newQueueLink(),
		readBodyLink:       newQueueLink(),
		responseMemoryLink: newQueueLink(),
	}
	a.freeList = append(a.freeList, slot)
}

// Get returns the client at slot if it is still live and its generation
// matches, or (nil, false) if it has since been freed/reused.
func (a *Arena) Get(slot int, generation uint64) (*Client, bool) {
	if slot < 0 || slot >= len(a.clients) {
		return nil, false
	}
	c := a.clients[slot]
	if !c.inUse || c.generation != generation {
		return nil, false
	}
	return c, true
}

func (a *Arena) at(slot int) *Client { return a.clients[slot] }
