package fairserver

import (
	"log/slog"

	"github.com/relaykit/netcore/control"
	"github.com/relaykit/netcore/netaddr"
	"github.com/relaykit/netcore/reactor"
	"github.com/relaykit/netcore/transport"
)

// Config holds the six resource caps from spec §4.9, grounded one-to-one
// on original_source/examples/api_server.cpp's ApiNetwork member
// defaults, plus the worker count.
type Config struct {
	MaxClients                  int
	MaxPendingRequestsPerClient int
	MaxRequestsMemory           int64
	MaxResponsesMemory          int64
	MaxRequestLength            uint32
	MaxResponseLength           int64
	NumWorkers                  int
}

// DefaultConfig mirrors the C++ original's hardcoded defaults.
var DefaultConfig = Config{
	MaxClients:                  128 * 1024,
	MaxPendingRequestsPerClient: 16,
	MaxRequestsMemory:           256 << 20,
	MaxResponsesMemory:          1024 << 20,
	MaxRequestLength:            1 << 20,
	MaxResponseLength:           1 << 20,
	NumWorkers:                  2,
}

// ConfigFromStore overlays DefaultConfig with whatever resource-cap keys
// are present in store, so an operator can push live overrides (e.g.
// "max_clients", "num_workers") through a control.ConfigStore instead of
// recompiling. Keys absent from the store keep their default value;
// values of the wrong type are ignored rather than panicking.
func ConfigFromStore(store *control.ConfigStore) Config {
	cfg := DefaultConfig
	snap := store.GetSnapshot()
	if v, ok := snap["max_clients"].(int); ok {
		cfg.MaxClients = v
	}
	if v, ok := snap["max_pending_requests_per_client"].(int); ok {
		cfg.MaxPendingRequestsPerClient = v
	}
	if v, ok := snap["max_requests_memory"].(int64); ok {
		cfg.MaxRequestsMemory = v
	}
	if v, ok := snap["max_responses_memory"].(int64); ok {
		cfg.MaxResponsesMemory = v
	}
	if v, ok := snap["max_request_length"].(uint32); ok {
		cfg.MaxRequestLength = v
	}
	if v, ok := snap["max_response_length"].(int64); ok {
		cfg.MaxResponseLength = v
	}
	if v, ok := snap["num_workers"].(int); ok {
		cfg.NumWorkers = v
	}
	return cfg
}

// Server is the fair request server: accepts connections, enforces the
// six resource caps, and round-robins fairly among clients via the
// three intrusive FIFOs (spec §4.9).
type Server struct {
	cfg Config

	loop     *reactor.Loop
	acceptor *transport.TCPAcceptor
	arena    *Arena
	pool     *WorkerPool
	output   *OutputQueue

	requestMemoryQueue  ClientQueue
	readBodyQueue       ClientQueue
	responseMemoryQueue ClientQueue

	clientsLive int

	totalRequestsMemory int64
	totalResponseMemory int64

	requestsReceived uint64
	responsesSent    uint64

	metrics       *control.MetricsRegistry
	probes        *control.DebugProbes
	configs       *control.ConfigStore
	configWatcher *reactor.Watcher
	log           *slog.Logger
}

// Logger returns the server's structured logger; every record logged
// through it also bumps a "log.<level>_records" metric (control.NewLogger).
func (s *Server) Logger() *slog.Logger { return s.log }

// Metrics returns the server's live metrics registry (requests_received,
// responses_sent, clients_live, requests_memory_bytes,
// responses_memory_bytes), refreshed on every call to Stats.
func (s *Server) Metrics() *control.MetricsRegistry { return s.metrics }

// DebugProbes returns the server's debug probe registry, seeded with a
// "fairserver.snapshot" probe exposing the same fields as Metrics and a
// "platform.cpus" probe from control.RegisterPlatformProbes.
func (s *Server) DebugProbes() *control.DebugProbes { return s.probes }

// ConfigStore returns the server's live configuration store: pushing a
// "max_clients"/"max_pending_requests_per_client"/"max_requests_memory"/
// "max_responses_memory"/"max_request_length"/"max_response_length" value
// through SetConfig takes effect on the server's next check of that cap,
// without a restart.
func (s *Server) ConfigStore() *control.ConfigStore { return s.configs }

// applyLiveCaps overlays whichever resource-cap keys are present in the
// config store onto the running server's caps. NumWorkers is excluded:
// the worker pool's goroutine count is fixed at New time.
func (s *Server) applyLiveCaps() {
	live := ConfigFromStore(s.configs)
	live.NumWorkers = s.cfg.NumWorkers
	s.cfg = live
}

// Stats refreshes and returns a point-in-time snapshot of server load.
func (s *Server) Stats() map[string]any {
	s.metrics.Set("requests_received", s.requestsReceived)
	s.metrics.Set("responses_sent", s.responsesSent)
	s.metrics.Set("clients_live", s.clientsLive)
	s.metrics.Set("requests_memory_bytes", s.totalRequestsMemory)
	s.metrics.Set("responses_memory_bytes", s.totalResponseMemory)
	return s.metrics.GetSnapshot()
}

// New constructs a Server bound to loop and listening on addr.
func New(loop *reactor.Loop, addr netaddr.Address, cfg Config) (*Server, error) {
	s := &Server{
		cfg:                 cfg,
		loop:                loop,
		arena:               newArena(),
		requestMemoryQueue:  newClientQueue(),
		readBodyQueue:       newClientQueue(),
		responseMemoryQueue: newClientQueue(),
		metrics:             control.NewMetricsRegistry(),
		probes:              control.NewDebugProbes(),
		configs:             control.NewConfigStore(),
	}
	s.log = control.NewLogger(s.metrics)
	s.probes.RegisterProbe("fairserver.snapshot", func() any { return s.Stats() })
	control.RegisterPlatformProbes(s.probes)
	s.configWatcher = loop.NewWatcher(s.applyLiveCaps)
	s.configs.OnReload(s.configWatcher.Call)
	s.output = NewOutputQueue(loop, s.onWorkerReady)
	s.pool = NewWorkerPool(cfg.NumWorkers, s.output)

	acceptor, err := transport.Listen(loop, addr, transport.DefaultSettings, s.acceptOne)
	if err != nil {
		return nil, err
	}
	s.acceptor = acceptor
	return s, nil
}

// Close stops accepting connections and the worker pool. In-flight
// clients are not force-closed; callers wind the loop down separately.
func (s *Server) Close() {
	s.acceptor.Close()
	s.pool.Close()
	s.output.Close()
	s.configWatcher.Close()
}

// LocalAddr returns the bound listening address (useful for ephemeral
// ports in tests).
func (s *Server) LocalAddr() (netaddr.Address, error) { return s.acceptor.LocalAddr() }

func (s *Server) acceptOne(fd int) {
	if s.clientsLive >= s.cfg.MaxClients {
		// Hard cap reached: refuse by closing immediately.
		s.log.Warn("client refused, at capacity", "clients_live", s.clientsLive, "max_clients", s.cfg.MaxClients)
		transport.FromAcceptedFD(s.loop, fd).Close()
		return
	}
	slot, generation := s.arena.Alloc()
	c := s.arena.at(slot)
	c.sock = transport.FromAcceptedFD(s.loop, fd)
	c.writer = transport.NewBufferedWriter(s.loop, c.sock,
		func() { s.onClientHandler(slot, generation) },
		func() { s.onClientDisconnected(slot, generation) },
		func() { s.onClientHandler(slot, generation) },
	)
	s.clientsLive++
}

// onClientHandler is the per-client readiness callback: drain the
// outbound queue, then read as much of the request pipeline as caps
// allow (spec §4.9 "on_client_handler").
func (s *Server) onClientHandler(slot int, generation uint64) {
	c, ok := s.arena.Get(slot, generation)
	if !ok {
		return
	}
	if !c.sock.IsOpen() {
		s.onClientDisconnected(slot, generation)
		return
	}
	s.sendResponses(c, slot)
	s.readHeader(c, slot)
	s.readRequestsFair()
}

func (s *Server) onClientDisconnected(slot int, generation uint64) {
	c, ok := s.arena.Get(slot, generation)
	if !ok {
		return
	}
	s.totalRequestsMemory -= int64(len(c.requestBody))
	for _, r := range c.requests {
		s.totalRequestsMemory -= int64(len(r))
	}
	for range c.responses {
		s.totalResponseMemory -= s.cfg.MaxResponseLength
	}
	s.requestMemoryQueue.Remove(s.arena, slot, requestMemoryLinkOf)
	s.readBodyQueue.Remove(s.arena, slot, readBodyLinkOf)
	s.responseMemoryQueue.Remove(s.arena, slot, responseMemoryLinkOf)
	c.sock.Close()
	s.clientsLive--
	s.arena.Free(slot)
}

func (s *Server) isOverLocalLimit(c *Client) bool {
	pending := len(c.responses) + len(c.requests) + c.requestsInWork
	return pending >= s.cfg.MaxPendingRequestsPerClient
}

// readHeader implements the READING_HEADER state (spec §4.9).
func (s *Server) readHeader(c *Client, slot int) {
	if c.state != stateReadingHeader {
		return
	}
	if s.isOverLocalLimit(c) {
		return
	}
	if c.readBuf.Size() < HeaderSize {
		fillFromSocket(c)
		if c.readBuf.Size() < HeaderSize {
			return
		}
	}
	var hdr [HeaderSize]byte
	c.readBuf.ReadSome(hdr[:])
	bodyLen, kind, rid := parseHeader(hdr[:])
	c.pendingBodyLen, c.pendingKind, c.pendingRID = bodyLen, kind, rid

	if bodyLen > s.cfg.MaxRequestLength {
		s.onClientDisconnected(slot, c.generation)
		return
	}

	if !s.requestMemoryQueue.Empty() || s.totalRequestsMemory+int64(bodyLen) > s.cfg.MaxRequestsMemory {
		c.state = stateWaitingMemoryForBody
		s.requestMemoryQueue.PushBack(s.arena, slot, requestMemoryLinkOf)
		return
	}
	s.startReadingBody(c, slot)
}

func fillFromSocket(c *Client) {
	first, second := c.readBuf.WriteSpans()
	total := 0
	if len(first) > 0 {
		n, _ := c.sock.ReadSome(first)
		total += n
		if n < len(first) {
			c.readBuf.DidWrite(n)
			return
		}
	}
	if len(second) > 0 {
		n, _ := c.sock.ReadSome(second)
		total += n
		c.readBuf.DidWrite(n)
		return
	}
	c.readBuf.DidWrite(total)
}

// startReadingBody moves a client from WAITING_MEMORY_FOR_BODY (or
// straight from READING_HEADER) into READING_BODY, reserving its memory
// budget up front (spec §4.9 "start_reading_body").
func (s *Server) startReadingBody(c *Client, slot int) {
	s.totalRequestsMemory += int64(c.pendingBodyLen)
	c.requestBody = make([]byte, c.pendingBodyLen)
	c.requestBodyHave = 0
	// Whatever is already buffered from the header read satisfies part
	// (or all) of the body immediately.
	n := c.readBuf.ReadSome(c.requestBody[c.requestBodyHave:])
	c.requestBodyHave += n
	c.state = stateReadingBody
	s.readBodyQueue.PushBack(s.arena, slot, readBodyLinkOf)
}

// readBody implements the READING_BODY state.
func (s *Server) readBody(c *Client, slot int) {
	if c.requestBodyHave < len(c.requestBody) {
		n, _ := c.sock.ReadSome(c.requestBody[c.requestBodyHave:])
		c.requestBodyHave += n
	}
	if c.requestBodyHave < len(c.requestBody) {
		return
	}
	s.requestsReceived++
	c.state = stateReadingHeader
	completedKind, completedRID := c.pendingKind, c.pendingRID
	body := c.requestBody
	c.requestBody = nil
	c.requests = append(c.requests, body)
	c.pendingKindByRequest = append(c.pendingKindByRequest, completedKind)
	c.pendingRIDByRequest = append(c.pendingRIDByRequest, completedRID)

	if !s.responseMemoryQueue.Empty() || s.totalResponseMemory+s.cfg.MaxResponseLength > s.cfg.MaxResponsesMemory {
		s.responseMemoryQueue.PushBack(s.arena, slot, responseMemoryLinkOf)
	} else {
		s.runWorker(c, slot)
	}
	s.readHeader(c, slot)
}

// runWorker reserves response memory and submits the oldest queued
// request to the worker pool (spec §4.9 "run_worker").
func (s *Server) runWorker(c *Client, slot int) {
	s.totalResponseMemory += s.cfg.MaxResponseLength
	req := c.requests[0]
	kind := c.pendingKindByRequest[0]
	rid := c.pendingRIDByRequest[0]
	c.requests = c.requests[1:]
	c.pendingKindByRequest = c.pendingKindByRequest[1:]
	c.pendingRIDByRequest = c.pendingRIDByRequest[1:]
	c.requestsInWork++

	s.pool.Submit(WorkItem{
		Slot: slot, Generation: c.generation,
		Kind: kind, RID: rid, Request: req,
	})
}

// runWorkersFair drains response_memory_queue while global response
// memory remains available, round-robin across waiting clients (spec
// §4.9 "run_workers_fair").
func (s *Server) runWorkersFair() {
	for !s.responseMemoryQueue.Empty() {
		slot := s.responseMemoryQueue.Front()
		c := s.arena.at(slot)
		if s.totalResponseMemory+s.cfg.MaxResponseLength > s.cfg.MaxResponsesMemory {
			break
		}
		s.responseMemoryQueue.Remove(s.arena, slot, responseMemoryLinkOf)
		s.runWorker(c, slot)
		if len(c.requests) > 0 {
			s.responseMemoryQueue.PushBack(s.arena, slot, responseMemoryLinkOf)
		}
	}
}

// onWorkerReady drains completed WorkItems and re-drives the fair read
// loop, mirroring "on_worker_ready_ab" + "read_requests_fair".
func (s *Server) onWorkerReady() {
	for _, item := range s.output.Take() {
		// The response-memory reservation made in runWorker is held until
		// the response is actually flushed in sendResponses, not released
		// here — it bounds buffered-but-unsent response memory.
		s.totalRequestsMemory -= int64(len(item.Request))

		c, ok := s.arena.Get(item.Slot, item.Generation)
		if !ok {
			// Client disconnected/reused since the request was issued: the
			// response-memory reservation has no queued response to hold
			// it anymore, so release it here instead.
			s.totalResponseMemory -= s.cfg.MaxResponseLength
			continue
		}
		c.requestsInWork--
		s.responsesSent++
		c.responses = append(c.responses, item.Response)
		s.sendResponses(c, item.Slot)
	}
	s.readRequestsFair()
}

// sendResponses flushes as many completed responses as the buffered
// writer will accept, freeing response memory and re-driving header
// reads as it goes (spec §4.9 "send_responses").
func (s *Server) sendResponses(c *Client, slot int) {
	for len(c.responses) > 0 {
		resp := c.responses[0]
		c.writer.Write(resp)
		c.totalWritten += uint64(len(resp))
		c.responses = c.responses[1:]
		s.totalResponseMemory -= s.cfg.MaxResponseLength
		s.runWorkersFair()
		s.readHeader(c, slot)
	}
}

// readRequestsFair drains request_memory_queue then read_body_queue in
// round-robin fashion, bounded by the global request-memory cap (spec
// §4.9 "read_requests_fair").
func (s *Server) readRequestsFair() {
	for !s.requestMemoryQueue.Empty() {
		slot := s.requestMemoryQueue.Front()
		c := s.arena.at(slot)
		if s.totalRequestsMemory+int64(c.pendingBodyLen) > s.cfg.MaxRequestsMemory {
			break
		}
		s.requestMemoryQueue.Remove(s.arena, slot, requestMemoryLinkOf)
		s.startReadingBody(c, slot)
	}
	for !s.readBodyQueue.Empty() {
		slot := s.readBodyQueue.Front()
		c := s.arena.at(slot)
		s.readBodyQueue.Remove(s.arena, slot, readBodyLinkOf)
		s.readBody(c, slot)
	}
}
