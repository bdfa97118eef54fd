// Package ratelimit provides per-key token bucket rate limiting shared by
// the HTTP and MCP boundaries. Keys are usually caller principals.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const staleThreshold = 10 * time.Minute

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter hands out one rate.Limiter per key. A nil *Limiter allows
// everything.
type Limiter struct {
	rate  rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*entry

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a Limiter allowing requestsPerSecond with the given burst per
// key. It returns nil when requestsPerSecond is not positive, which disables
// limiting.
func New(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}

	l := &Limiter{
		rate:    rate.Limit(requestsPerSecond),
		burst:   burst,
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}

	go l.cleanup()

	return l
}

// Allow reports whether one more event for key may happen now.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.entries[key] = e
	}
	e.lastAccess = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// Close stops the background eviction.
func (l *Limiter) Close() error {
	if l != nil {
		l.stopOnce.Do(func() { close(l.done) })
	}
	return nil
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.evictBefore(time.Now().Add(-staleThreshold))
		}
	}
}

func (l *Limiter) evictBefore(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		if e.lastAccess.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
