package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a fixed-window admission counter keyed by conversation
// identity. Once an identity has used up its capacity within the current
// window, every further call reports limited until the window rolls over.
type Limiter struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	counters map[string]*counter
	now      func() time.Time
}

type counter struct {
	windowStart time.Time
	count       int
}

func New(capacity int, window time.Duration) *Limiter {
	return &Limiter{
		capacity: capacity,
		window:   window,
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// IsRateLimited records an admission attempt for identity and reports
// whether it exceeded the window capacity. Safe for concurrent use; calls
// for the same identity are serialized by the limiter's lock.
func (l *Limiter) IsRateLimited(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[identity]
	if !ok || now.Sub(c.windowStart) >= l.window {
		l.counters[identity] = &counter{windowStart: now, count: 1}
		return l.capacity < 1
	}

	if c.count >= l.capacity {
		return true
	}
	c.count++
	return false
}
