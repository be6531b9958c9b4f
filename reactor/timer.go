package reactor

import "time"

// Timer is a one-shot deadline callback owned by exactly one Loop.
// heapIndex tracks its position in the loop's min-heap; -1 means the
// timer is not currently armed, matching the spec's "in the reactor's
// min-heap iff heap_index != 0" invariant (adapted to Go's 0-based slices
// by using -1 as the "not present" sentinel instead of 0).
type Timer struct {
	loop      *Loop
	deadline  time.Time
	handler   Callback
	heapIndex int
	seq       uint64 // insertion order, for deadline ties
}

// NewTimer creates an unarmed timer bound to loop. Call Once to arm it.
func (l *Loop) NewTimer(handler Callback) *Timer {
	return &Timer{loop: l, heapIndex: -1, handler: handler}
}

// Once arms (or re-arms) the timer to fire after d from now. Re-arming a
// still-pending timer updates its deadline in place in O(log n), per spec.
func (t *Timer) Once(d time.Duration) {
	t.loop.armTimer(t, t.loop.now().Add(d))
}

// Cancel removes the timer from the heap if armed; a no-op otherwise.
func (t *Timer) Cancel() {
	t.loop.cancelTimer(t)
}

// Armed reports whether the timer is currently pending.
func (t *Timer) Armed() bool { return t.heapIndex >= 0 }

// timerHeap is a standard binary min-heap ordered by (deadline, seq),
// grounded on the "arena + indices" guidance in DESIGN NOTES §9: rather
// than intrusive pointers, each Timer knows its own slice index so removal
// and re-arming are O(log n) without a separate index map.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}
