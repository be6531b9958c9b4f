//go:build linux

package reactor

import "golang.org/x/sys/unix"

// wakeupFD is the OS primitive a Watcher posts to and the loop polls on.
// Grounded on the spec's "dedicated OS primitive (eventfd / kevent user
// filter / IOCP posted packet)" contract (§4.1 Wakeup).
type wakeupFD struct {
	fd int
}

func newWakeupFD() (*wakeupFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &wakeupFD{fd: fd}, nil
}

func (w *wakeupFD) readFD() int { return w.fd }

// post increments the eventfd counter, signalling the loop.
func (w *wakeupFD) post() error {
	var buf [8]byte
	buf[7] = 1
	_, err := unix.Write(w.fd, buf[:])
	if err == unix.EAGAIN {
		// Counter at its maximum: a wakeup is already pending, which is
		// exactly the at-least-once coalescing semantics the spec wants.
		return nil
	}
	return err
}

// drain resets the eventfd counter to zero after the loop observes it.
func (w *wakeupFD) drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
		if err != nil {
			return
		}
	}
}

func (w *wakeupFD) close() error {
	return unix.Close(w.fd)
}
