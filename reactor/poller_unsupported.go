//go:build !linux

// File: reactor/poller_unsupported.go
//
// Grounded on the teacher's reactor/reactor_stub.go: platforms beyond the
// one chosen backend (here, Linux epoll) report an explicit error rather
// than silently degrading, matching the spec's "target one backend first"
// guidance (§ DESIGN NOTES, Platform abstraction).
package reactor

func newPlatformPoller() (poller, error) {
	return nil, errUnsupportedPlatform
}
