package fairserver

import (
	"runtime"
	"sync"

	"github.com/eapache/queue"
	"github.com/relaykit/netcore/affinity"
	"github.com/relaykit/netcore/reactor"
)

// WorkItem carries one request to a worker goroutine and its response
// back, addressed by (slot, generation) rather than a *Client pointer so
// a disconnected-and-reused client is never mistaken for the one that
// issued the request (spec §4.9, §9).
type WorkItem struct {
	Slot       int
	Generation uint64
	Kind       uint32
	RID        uint64
	Request    []byte
	Response   []byte
}

// processWorkItem computes the toy protocol's response: a HeaderSize
// header (body_len, kind, rid) followed by the request body echoed back.
// original_source/examples/api_server.cpp's process_work_item leaves the
// header tail and body uninitialized ("TODO security issue, uninitialized
// memory"); DESIGN NOTES §9 calls for the corrected, zero-initialized
// behavior, so this copies the real bytes instead of leaking stack/heap
// contents.
func processWorkItem(item *WorkItem) {
	body := item.Request
	resp := make([]byte, HeaderSize+len(body))
	putHeader(resp, uint32(len(body)), item.Kind, item.RID)
	copy(resp[HeaderSize:], body)
	item.Response = resp
}

// OutputQueue is the mutex-guarded mailbox workers drop finished
// WorkItems into, paired with a reactor.Watcher so the loop goroutine
// wakes exactly once per batch of completions — grounded on the
// teacher's crab::Watcher cross-thread wakeup, now the real
// reactor.Watcher from this module rather than a re-implementation.
type OutputQueue struct {
	mu        sync.Mutex
	completed []WorkItem
	watcher   *reactor.Watcher
}

// NewOutputQueue binds the output queue to loop; onReady runs on the
// loop goroutine whenever Take would return a non-empty slice.
func NewOutputQueue(loop *reactor.Loop, onReady func()) *OutputQueue {
	oq := &OutputQueue{}
	oq.watcher = loop.NewWatcher(onReady)
	return oq
}

func (oq *OutputQueue) push(item WorkItem) {
	oq.mu.Lock()
	oq.completed = append(oq.completed, item)
	oq.mu.Unlock()
	oq.watcher.Call()
}

// Take atomically removes and returns all currently completed items.
func (oq *OutputQueue) Take() []WorkItem {
	oq.mu.Lock()
	defer oq.mu.Unlock()
	if len(oq.completed) == 0 {
		return nil
	}
	out := oq.completed
	oq.completed = nil
	return out
}

// Close unregisters the output queue's watcher.
func (oq *OutputQueue) Close() { oq.watcher.Close() }

// WorkerPool is a fixed-size pool of goroutines draining a shared FIFO,
// grounded on the teacher's internal/concurrency/executor.go (same
// github.com/eapache/queue dependency), but using the library's actual
// published API (Add/Peek/Remove/Length) and a sync.Cond rather than the
// teacher's busy-polling loop, per SPEC_FULL's "condvar-equivalent"
// realization of the C++ original's std::condition_variable.
type WorkerPool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	q       *queue.Queue
	closed  bool
	output  *OutputQueue
}

// NewWorkerPool starts numWorkers goroutines, each pulling WorkItems from
// a shared FIFO and delivering results to output.
func NewWorkerPool(numWorkers int, output *OutputQueue) *WorkerPool {
	p := &WorkerPool{q: queue.New(), output: output}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < numWorkers; i++ {
		go p.run(i)
	}
	return p
}

// Submit enqueues a work item for processing by the next free worker.
func (p *WorkerPool) Submit(item WorkItem) {
	p.mu.Lock()
	p.q.Add(item)
	p.mu.Unlock()
	p.cond.Signal()
}

// run is one worker goroutine's main loop. Each worker pins its OS
// thread to a distinct CPU (best-effort; ignored on platforms without an
// affinity backend) so repeated processWorkItem calls stay cache-local,
// the same locality goal the teacher's affinity package serves for its
// reactor threads.
func (p *WorkerPool) run(workerID int) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	_ = affinity.SetAffinity(workerID)

	for {
		p.mu.Lock()
		for p.q.Length() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed && p.q.Length() == 0 {
			p.mu.Unlock()
			return
		}
		item := p.q.Peek().(WorkItem)
		p.q.Remove()
		p.mu.Unlock()

		processWorkItem(&item)
		p.output.push(item)
	}
}

// Close stops accepting new work and wakes all workers so they can exit
// once the queue drains.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}
