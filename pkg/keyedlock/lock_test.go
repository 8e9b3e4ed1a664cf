package keyedlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// markerRecorder collects start/end markers under its own mutex so tests can
// assert on observed ordering.
type markerRecorder struct {
	mu      sync.Mutex
	markers []string
}

func (r *markerRecorder) record(m string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers = append(r.markers, m)
}

func (r *markerRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.markers...)
}

func TestWithLockSerializesSameKey(t *testing.T) {
	l := New()
	rec := &markerRecorder{}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		name := string(rune('1' + i))
		go func() {
			defer wg.Done()
			l.WithLock(ctx, "p1", func(context.Context) error {
				rec.record("start" + name)
				time.Sleep(20 * time.Millisecond)
				rec.record("end" + name)
				return nil
			})
		}()
	}
	wg.Wait()

	got := rec.snapshot()
	if len(got) != 4 {
		t.Fatalf("expected 4 markers, got %v", got)
	}
	// Whichever goroutine starts first must finish before the other starts.
	if !(got[0] == "start1" && got[1] == "end1" || got[0] == "start2" && got[1] == "end2") {
		t.Errorf("interleaved execution observed: %v", got)
	}
	if got[0][len(got[0])-1:] != got[1][len(got[1])-1:] {
		t.Errorf("first start and first end belong to different holders: %v", got)
	}
}

func TestWithLockIndependentKeysRunConcurrently(t *testing.T) {
	l := New()
	ctx := context.Background()

	p1Started := make(chan struct{})
	p2Started := make(chan struct{})

	run := func(key string, mine, peer chan struct{}) error {
		return l.WithLock(ctx, key, func(context.Context) error {
			close(mine)
			// Both lock bodies must be in flight at once; if the keys were
			// serialized against each other this would time out.
			select {
			case <-peer:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("peer never started; keys are not independent")
			}
		})
	}

	errCh := make(chan error, 2)
	go func() { errCh <- run("p1", p1Started, p2Started) }()
	go func() { errCh <- run("p2", p2Started, p1Started) }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			t.Fatal(err)
		}
	}
}

func TestWithLockFIFOOrder(t *testing.T) {
	l := New()
	rec := &markerRecorder{}
	ctx := context.Background()

	// Occupy the key, then enqueue three waiters in a known arrival order.
	holderRelease := make(chan struct{})
	holderRunning := make(chan struct{})
	go l.WithLock(ctx, "k", func(context.Context) error {
		close(holderRunning)
		<-holderRelease
		return nil
	})
	<-holderRunning

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		name := string(rune('a' + i))
		enqueued := make(chan struct{})
		go func() {
			defer wg.Done()
			close(enqueued)
			l.WithLock(ctx, "k", func(context.Context) error {
				rec.record(name)
				return nil
			})
		}()
		<-enqueued
		// Give the goroutine time to install itself in the chain before the
		// next waiter arrives.
		time.Sleep(10 * time.Millisecond)
	}

	close(holderRelease)
	wg.Wait()

	got := rec.snapshot()
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected FIFO order %v, got %v", want, got)
		}
	}
}

func TestWithLockPropagatesError(t *testing.T) {
	l := New()
	sentinel := errors.New("boom")

	err := l.WithLock(context.Background(), "k", func(context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("expected fn error propagated, got %v", err)
	}
}

func TestWithLockEntryRemovedWhenUncontended(t *testing.T) {
	l := New()

	l.WithLock(context.Background(), "k", func(context.Context) error { return nil })

	if l.Held("k") {
		t.Error("expected entry to be garbage-collected after release")
	}
}

func TestWithLockCancelledWaiterDoesNotRun(t *testing.T) {
	l := New()
	holderRelease := make(chan struct{})
	holderRunning := make(chan struct{})
	go l.WithLock(context.Background(), "k", func(context.Context) error {
		close(holderRunning)
		<-holderRelease
		return nil
	})
	<-holderRunning

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := l.WithLock(ctx, "k", func(context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if ran {
		t.Error("fn must not run for a cancelled waiter")
	}

	// The queue must still drain for later waiters.
	done := make(chan error, 1)
	go func() {
		done <- l.WithLock(context.Background(), "k", func(context.Context) error { return nil })
	}()
	close(holderRelease)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("later waiter failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queue stalled after cancelled waiter")
	}
}
