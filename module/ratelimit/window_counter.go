package ratelimit

import (
	"sync"
	"time"

	"github.com/ef-ds/deque"
)

// WindowCounter admits at most capacity events within any trailing window.
// Only admitted events are counted. A counter with capacity <= 0 admits
// everything.
//
// WindowCounter is safe for concurrent use.
type WindowCounter struct {
	mu       sync.Mutex
	events   deque.Deque // admission times, oldest first
	capacity int
	window   time.Duration
	now      GetTimeNow
}

// NewWindowCounter returns an empty counter.
func NewWindowCounter(capacity int, window time.Duration, opts ...Option) *WindowCounter {
	return &WindowCounter{
		capacity: capacity,
		window:   window,
		now:      applyOptions(opts).now,
	}
}

// Allow records an event at the current time.
func (w *WindowCounter) Allow() bool {
	return w.AllowAt(w.now())
}

// AllowAt records an event at time t. It returns false, and records nothing,
// if capacity events were already admitted in (t-window, t].
func (w *WindowCounter) AllowAt(t time.Time) bool {
	if w.capacity <= 0 {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		front, ok := w.events.Front()
		if !ok || t.Sub(front.(time.Time)) < w.window {
			break
		}
		w.events.PopFront()
	}
	if w.events.Len() >= w.capacity {
		return false
	}
	w.events.PushBack(t)
	return true
}
