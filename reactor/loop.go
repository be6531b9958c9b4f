package reactor

import (
	"container/heap"
	"sync/atomic"
	"time"
)

const pollCeiling = 30 * time.Minute

// fdRegistration binds one fd's readiness edges to a callback.
type fdRegistration struct {
	fd       int
	interest Interest
	cb       Callback
	lastOrGo Ready
	closed   bool
}

// idleEntry is one member of the idle round-robin list.
type idleEntry struct {
	cb Callback
}

// Loop is the single-threaded reactor: all Timer/Watcher/fd registrations
// it owns must be created, used, and destroyed from the goroutine that
// calls Run. This is the Go analogue of the teacher's (and the original
// crablib's) thread-local "current loop" pointer — Go has no call-site
// thread-local, so the contract is documented and enforced only by
// single-goroutine discipline, same as DESIGN NOTES §9 prescribes keeping.
type Loop struct {
	p poller

	timers timerHeap
	nextTimerSeq uint64

	fds map[int]*fdRegistration

	idle      []*idleEntry
	idleHead  int // round-robin rotation point

	watchers []*Watcher

	triggered []Callback // FIFO of callables whose edge already arrived

	wake *wakeupFD

	quitting int32
}

// New constructs a Loop bound to the platform poller backend. Returns
// errUnsupportedPlatform on platforms without a backend registered (see
// poller_unsupported.go).
func New() (*Loop, error) {
	p, err := newPlatformPoller()
	if err != nil {
		return nil, err
	}
	wk, err := newWakeupFD()
	if err != nil {
		p.close()
		return nil, err
	}
	l := &Loop{
		p:   p,
		fds: make(map[int]*fdRegistration),
	}
	l.wake = wk
	if err := p.add(wk.readFD(), InterestRead); err != nil {
		p.close()
		wk.close()
		return nil, err
	}
	return l, nil
}

func (l *Loop) now() time.Time { return time.Now() }

// Register binds fd to cb for the given interest; cb is invoked (on the
// loop goroutine) whenever a readiness edge for fd arrives. The caller
// reads lastReady via Ready(fd) from within cb to distinguish read/write/
// error edges, matching the spec's can_read/can_write flags.
func (l *Loop) Register(fd int, interest Interest, cb Callback) error {
	if err := l.p.add(fd, interest); err != nil {
		return err
	}
	l.fds[fd] = &fdRegistration{fd: fd, interest: interest, cb: cb}
	return nil
}

// Modify changes the interest set of an already-registered fd.
func (l *Loop) Modify(fd int, interest Interest) error {
	reg, ok := l.fds[fd]
	if !ok {
		return nil
	}
	reg.interest = interest
	return l.p.modify(fd, interest)
}

// Unregister removes fd from the loop, guaranteeing — per the spec's
// cancellation contract — no further callback invocations for it,
// including any already queued in the triggered list.
func (l *Loop) Unregister(fd int) error {
	reg, ok := l.fds[fd]
	if !ok {
		return nil
	}
	reg.closed = true
	delete(l.fds, fd)
	return l.p.remove(fd)
}

// LastReady returns the readiness bits observed on fd's most recent edge.
func (l *Loop) LastReady(fd int) Ready {
	if reg, ok := l.fds[fd]; ok {
		return reg.lastOrGo
	}
	return 0
}

// AddIdle registers a callback served round-robin whenever the loop has no
// other pending work (§4.1c). Returns a handle usable with RemoveIdle.
func (l *Loop) AddIdle(cb Callback) *idleEntry {
	e := &idleEntry{cb: cb}
	l.idle = append(l.idle, e)
	return e
}

// RemoveIdle unregisters a previously added idle handler.
func (l *Loop) RemoveIdle(e *idleEntry) {
	for i, cur := range l.idle {
		if cur == e {
			l.idle = append(l.idle[:i], l.idle[i+1:]...)
			if l.idleHead > i {
				l.idleHead--
			}
			return
		}
	}
}

func (l *Loop) registerWatcher(w *Watcher) {
	l.watchers = append(l.watchers, w)
}

func (l *Loop) unregisterWatcher(w *Watcher) {
	for i, cur := range l.watchers {
		if cur == w {
			l.watchers = append(l.watchers[:i], l.watchers[i+1:]...)
			return
		}
	}
}

// postWakeup is the only method in this package safe to call from a
// goroutine other than the loop's owner (besides Watcher.Call, which
// calls it). It is a thin mutex-free counter bump on an eventfd/pipe.
func (l *Loop) postWakeup() {
	_ = l.wake.post()
}

func (l *Loop) armTimer(t *Timer, deadline time.Time) {
	t.deadline = deadline
	if t.heapIndex >= 0 {
		heap.Fix(&l.timers, t.heapIndex)
		return
	}
	t.seq = l.nextTimerSeq
	l.nextTimerSeq++
	heap.Push(&l.timers, t)
}

func (l *Loop) cancelTimer(t *Timer) {
	if t.heapIndex < 0 {
		return
	}
	heap.Remove(&l.timers, t.heapIndex)
}

// Cancel requests loop termination. Safe to call from the loop goroutine
// (immediate) or any other goroutine (sets a flag and posts a wakeup; the
// loop exits after draining the current triggered-callable round).
func (l *Loop) Cancel() {
	atomic.StoreInt32(&l.quitting, 1)
	l.postWakeup()
}

func (l *Loop) cancelled() bool {
	return atomic.LoadInt32(&l.quitting) != 0
}

// Close releases the poller and wakeup backend. Call only after Run
// returns.
func (l *Loop) Close() error {
	err1 := l.p.close()
	err2 := l.wake.close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Run executes the scheduling algorithm from spec §4.1 until Cancel is
// observed: (a) drain the triggered-callable list; (b) fire at most one
// expired timer; (c) if idle, round-robin one idle handler and poll with
// timeout 0; (d) otherwise poll with timeout 0 if (a) or (b) ran work,
// else with timeout = min(next deadline, 30m).
func (l *Loop) Run() error {
	for !l.cancelled() {
		did := l.drainTriggered()

		if l.fireOneExpiredTimer() {
			did = true
		}

		if !did && len(l.idle) > 0 {
			e := l.idle[0]
			l.idle = append(l.idle[1:], e) // rotate to back
			l.triggered = append(l.triggered, e.cb)
			if err := l.poll(0); err != nil {
				return err
			}
			continue
		}

		timeout := pollCeiling
		if did {
			// Work ran this iteration: collect new edges without blocking
			// so idle handlers and expired timers get the next iteration.
			timeout = 0
		} else if l.timers.Len() > 0 {
			until := time.Until(l.timers[0].deadline)
			if until < 0 {
				until = 0
			}
			if until < timeout {
				timeout = until
			}
		}
		if err := l.poll(int(timeout / time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}

// drainTriggered invokes every callable queued by the previous poll, in
// FIFO order, and reports whether any ran.
func (l *Loop) drainTriggered() bool {
	if len(l.triggered) == 0 {
		return false
	}
	batch := l.triggered
	l.triggered = nil
	for _, cb := range batch {
		cb()
	}
	return true
}

// fireOneExpiredTimer pops and invokes the single earliest-deadline timer
// if it has already expired, bounding per-iteration timer latency so a
// dense burst of timers cannot monopolize the loop.
func (l *Loop) fireOneExpiredTimer() bool {
	if l.timers.Len() == 0 {
		return false
	}
	t := l.timers[0]
	if t.deadline.After(l.now()) {
		return false
	}
	heap.Pop(&l.timers)
	t.handler()
	return true
}

// poll blocks the backend for up to timeoutMs and queues every discovered
// readiness edge (fd or wakeup) onto the triggered list for the next
// iteration's drain — it never invokes callbacks directly.
func (l *Loop) poll(timeoutMs int) error {
	buf := make([]readyEvent, 128)
	n, err := l.p.wait(buf, timeoutMs)
	if err != nil {
		return err
	}
	wakeFD := l.wake.readFD()
	for i := 0; i < n; i++ {
		ev := buf[i]
		if ev.fd == wakeFD {
			l.wake.drain()
			l.drainWatchers()
			continue
		}
		reg, ok := l.fds[ev.fd]
		if !ok || reg.closed {
			continue
		}
		reg.lastOrGo = ev.ready
		l.triggered = append(l.triggered, func() {
			if !reg.closed {
				reg.cb()
			}
		})
	}
	return nil
}

// drainWatchers queues the handler of every watcher that was Call()ed
// since the last wakeup, clearing each one's fired flag.
func (l *Loop) drainWatchers() {
	for _, w := range l.watchers {
		if w.take() {
			l.triggered = append(l.triggered, w.handler)
		}
	}
}
