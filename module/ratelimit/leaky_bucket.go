package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// GetTimeNow returns the current time. It is injectable so tests can drive
// the limiters with a synthetic clock.
type GetTimeNow func() time.Time

type options struct {
	now GetTimeNow
}

// Option configures a LeakyBucket or a WindowCounter.
type Option func(*options)

// WithTimeNow overrides the clock used by Allow.
func WithTimeNow(now GetTimeNow) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LeakyBucket admits bursts of up to capacity events and refills at
// capacity/window. It paces a steady flow; it does not bound the number of
// events in a trailing window, see WindowCounter for that. A bucket with
// capacity <= 0 admits everything.
//
// LeakyBucket is safe for concurrent use.
type LeakyBucket struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	capacity int
	now      GetTimeNow
}

// NewLeakyBucket returns a full bucket.
func NewLeakyBucket(capacity int, window time.Duration, opts ...Option) *LeakyBucket {
	limit := rate.Inf
	burst := 0
	if capacity > 0 {
		burst = capacity
		if window > 0 {
			limit = rate.Every(window / time.Duration(capacity))
		}
	}
	return &LeakyBucket{
		limiter:  rate.NewLimiter(limit, burst),
		capacity: capacity,
		now:      applyOptions(opts).now,
	}
}

// Allow consumes one token at the current time.
func (b *LeakyBucket) Allow() bool {
	return b.AllowAt(b.now(), 1)
}

// AllowAt consumes n tokens at the given time. It returns false, and consumes
// nothing, if fewer than n tokens are available.
func (b *LeakyBucket) AllowAt(t time.Time, n int) bool {
	if b.capacity <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limiter.AllowN(t, n)
}
