package reactor

import (
	"os"
	"testing"
	"time"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l, err := New()
	if err != nil {
		t.Skipf("no poller backend on this platform: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestTimerFiresOnce(t *testing.T) {
	l := newTestLoop(t)
	fired := 0
	tm := l.NewTimer(func() {
		fired++
		l.Cancel()
	})
	tm.Once(10 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	if fired != 1 {
		t.Fatalf("want 1 fire, got %d", fired)
	}
}

func TestTimerOrderingEarliestFirst(t *testing.T) {
	l := newTestLoop(t)
	var order []int
	l.NewTimer(func() { order = append(order, 2) }).Once(20 * time.Millisecond)
	l.NewTimer(func() { order = append(order, 1) }).Once(5 * time.Millisecond)
	stop := l.NewTimer(func() { l.Cancel() })
	stop.Once(60 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	<-done

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected [1 2], got %v", order)
	}
}

func TestWatcherCoalescesAndWakesLoop(t *testing.T) {
	l := newTestLoop(t)
	calls := 0
	var w *Watcher
	w = l.NewWatcher(func() {
		calls++
		w.Close()
		l.Cancel()
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		// Multiple Call()s before the loop wakes must coalesce.
		w.Call()
		w.Call()
		w.Call()
	}()

	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never woke the loop")
	}
	if calls != 1 {
		t.Fatalf("want exactly 1 coalesced call, got %d", calls)
	}
}

func TestIdleRoundRobin(t *testing.T) {
	l := newTestLoop(t)
	var order []string
	count := 0
	var e1, e2 *idleEntry
	e1 = l.AddIdle(func() {
		order = append(order, "a")
		count++
		if count >= 4 {
			l.RemoveIdle(e1)
			l.RemoveIdle(e2)
			l.Cancel()
		}
	})
	e2 = l.AddIdle(func() {
		order = append(order, "b")
		count++
	})

	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("idle handlers never ran")
	}
	if len(order) < 4 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected round-robin a,b,... got %v", order)
	}
}

func TestRegisterFDReadiness(t *testing.T) {
	l := newTestLoop(t)
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	gotRead := false
	err = l.Register(int(r.Fd()), InterestRead, func() {
		if l.LastReady(int(r.Fd()))&ReadyRead != 0 {
			gotRead = true
		}
		l.Unregister(int(r.Fd()))
		l.Cancel()
	})
	if err != nil {
		t.Skipf("register unsupported: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		w.Write([]byte("x"))
	}()

	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fd readiness never observed")
	}
	if !gotRead {
		t.Fatal("expected ReadyRead bit set")
	}
}
