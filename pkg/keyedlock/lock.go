// Package keyedlock provides a keyed, FIFO, single-holder asynchronous mutex.
//
// One Locker is shared process-wide; each project path gets its own key.
// Waiters are served strictly in arrival order. Acquisition has no timeout.
// Re-entrant acquisition of the same key deadlocks by design; callers must
// not nest WithLock on the same key.
package keyedlock

import (
	"context"
	"sync"
)

// Locker serializes functions per key.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// entry tracks the tail of the waiter chain for one key. Each acquirer
// installs its own done channel as the tail and waits for its predecessor's
// channel to close.
type entry struct {
	tail chan struct{}
}

// New creates an empty Locker.
func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

// WithLock runs fn with exclusive access to key and returns fn's error.
// If ctx is cancelled while waiting for a predecessor, fn never runs and the
// context error is returned; the caller's place in the queue is released so
// later waiters are not blocked.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	done := make(chan struct{})

	l.mu.Lock()
	var pred chan struct{}
	if e, ok := l.entries[key]; ok {
		pred = e.tail
		e.tail = done
	} else {
		l.entries[key] = &entry{tail: done}
	}
	l.mu.Unlock()

	release := func() {
		close(done)
		l.mu.Lock()
		// Remove the map entry only if no later caller replaced the tail,
		// so uncontended keys do not accumulate.
		if e, ok := l.entries[key]; ok && e.tail == done {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}

	if pred != nil {
		select {
		case <-pred:
		case <-ctx.Done():
			// Hand the slot through without running fn. Successors chained on
			// our done channel must still be unblocked once the predecessor
			// finishes, otherwise the queue stalls.
			go func() {
				<-pred
				release()
			}()
			return ctx.Err()
		}
	}

	defer release()
	return fn(ctx)
}

// Held reports whether key currently has a holder or waiters. Intended for
// tests and diagnostics.
func (l *Locker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	return ok
}
