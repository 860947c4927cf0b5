// Package ratelimit provides a per-client sliding-window request counter.
// The limiter is constructed once at startup and passed to the HTTP layer
// explicitly; it holds all of its own state.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows up to limit requests per client within a sliding window.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string][]time.Time
	now     func() time.Time
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records a request for the client and reports whether it is within
// the limit. Requests older than the window are pruned on each call.
func (l *Limiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.clients[client][:0]
	for _, t := range l.clients[client] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.limit {
		l.clients[client] = recent
		return false
	}

	l.clients[client] = append(recent, now)
	return true
}
