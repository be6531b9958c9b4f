// Package reactor implements the single-threaded event loop: timers (min-
// heap by deadline), idle handlers (round-robin), cross-thread wakeups via
// Watcher, and edge-triggered I/O dispatch over a pluggable poller
// backend.
//
// Grounded on the teacher's reactor package (github.com/momentics/
// hioload-ws/reactor): same one-backend-per-platform shape (epoll_reactor.go
// plus a build-tag-gated stub for unsupported platforms), generalized from
// the teacher's thin accept-a-callback wrapper into the full scheduling
// algorithm the spec requires (triggered list drain, one timer per
// iteration, idle round-robin, 30-minute poll ceiling).
package reactor

import "errors"

// Interest is a bitmask of readiness conditions a registration cares about.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// Ready is the edge-triggered readiness reported by a poller backend.
type Ready uint8

const (
	ReadyRead Ready = 1 << iota
	ReadyWrite
	ReadyError
)

// Callback is invoked by the loop when a registered fd becomes ready, a
// timer fires, an idle slot is served, or a watcher is drained.
type Callback func()

// poller is the abstract, platform-specific readiness backend. Exactly one
// concrete implementation is registered per build (see poller_epoll.go,
// poller_unsupported.go) — this mirrors the spec's instruction to target
// one backend first rather than replicate the original's epoll/kqueue/
// IOCP/libev/CoreFoundation maze.
type poller interface {
	// add registers fd for the given interest set.
	add(fd int, interest Interest) error
	// modify changes the interest set for an already-registered fd.
	modify(fd int, interest Interest) error
	// remove unregisters fd.
	remove(fd int) error
	// wait blocks up to timeoutMs (or forever if negative) and reports
	// readiness edges into out, returning the count filled.
	wait(out []readyEvent, timeoutMs int) (int, error)
	// close releases backend resources (e.g. the epoll fd).
	close() error
}

type readyEvent struct {
	fd    int
	ready Ready
}

var errUnsupportedPlatform = errors.New("reactor: no poller backend for this platform")
