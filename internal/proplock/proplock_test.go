package proplock

import (
	"errors"
	"sync"
	"testing"
)

func TestTryLock(t *testing.T) {
	l := New()
	unlock, err := l.TryLock("p1")
	if err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	if _, err := l.TryLock("p1"); !errors.Is(err, ErrBusy) {
		t.Errorf("second TryLock err = %v, want ErrBusy", err)
	}
	other, err := l.TryLock("p2")
	if err != nil {
		t.Fatalf("other property blocked: %v", err)
	}
	other()

	unlock()
	unlock() // releasing twice is harmless
	if l.Held("p1") {
		t.Error("p1 still held after unlock")
	}
	again, err := l.TryLock("p1")
	if err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	again()
}

func TestTryLock_ConcurrentWhileHeld(t *testing.T) {
	l := New()
	unlock, err := l.TryLock("p1")
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	defer unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		busy int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.TryLock("p1"); errors.Is(err, ErrBusy) {
				mu.Lock()
				busy++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if busy != 16 {
		t.Errorf("busy = %d, want 16", busy)
	}
}
