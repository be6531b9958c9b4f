package reactor

import "sync"

// Watcher is the cross-thread wakeup primitive: the only object in this
// package safe to touch from a goroutine other than the loop's owner.
// Grounded on the spec's Watcher contract (§3 Data Model, §4.1 Wakeup):
// at most one pending delivery coalesces multiple Call()s between loop
// iterations (edge-triggered, at-least-once delivery).
type Watcher struct {
	loop    *Loop
	handler Callback

	mu    sync.Mutex
	fired bool
}

// NewWatcher creates a Watcher bound to loop; handler runs on the loop's
// goroutine whenever Call has been invoked at least once since the last
// invocation.
func (l *Loop) NewWatcher(handler Callback) *Watcher {
	w := &Watcher{loop: l, handler: handler}
	l.registerWatcher(w)
	return w
}

// Call is safe to invoke from any goroutine. It marks the watcher fired
// and posts a single wakeup event to the owning loop; concurrent calls
// before the loop drains coalesce into one handler invocation.
func (w *Watcher) Call() {
	w.mu.Lock()
	already := w.fired
	w.fired = true
	w.mu.Unlock()
	if !already {
		w.loop.postWakeup()
	}
}

// take atomically clears the fired flag, returning whether it was set.
func (w *Watcher) take() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	fired := w.fired
	w.fired = false
	return fired
}

// Close unregisters the watcher from its loop. Must be called on the
// loop's goroutine, matching every other teardown in this package.
func (w *Watcher) Close() {
	w.loop.unregisterWatcher(w)
}
