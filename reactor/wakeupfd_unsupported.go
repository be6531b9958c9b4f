//go:build !linux

package reactor

import (
	"os"
)

// wakeupFD falls back to a self-pipe on platforms without a dedicated
// epoll backend; it exists so Watcher compiles everywhere even though the
// loop itself only runs on the Linux epoll backend today (see
// poller_unsupported.go).
type wakeupFD struct {
	r, w *os.File
}

func newWakeupFD() (*wakeupFD, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &wakeupFD{r: r, w: w}, nil
}

func (w *wakeupFD) readFD() int { return int(w.r.Fd()) }

func (w *wakeupFD) post() error {
	_, err := w.w.Write([]byte{1})
	return err
}

func (w *wakeupFD) drain() {
	buf := make([]byte, 64)
	for {
		n, err := w.r.Read(buf)
		if n == 0 || err != nil {
			return
		}
	}
}

func (w *wakeupFD) close() error {
	errR := w.r.Close()
	errW := w.w.Close()
	if errR != nil {
		return errR
	}
	return errW
}
