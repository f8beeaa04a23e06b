// Package ratelimit bounds how often a given key may trigger a sync or
// submission within a fixed window. Limiters are explicit process-scoped
// state: constructed once at startup and injected, never package-level.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/bpx-store/bpxd/internal/domain"
)

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is a fixed-window limiter backed by a mutex-guarded map.
// It serves tests and single-process deployments; multi-process deployments
// should use the Postgres-backed limiter so counters stay atomic per key
// across instances.
// NewMemoryLimiter should be used to create instances of MemoryLimiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]window

	// now is swapped in tests to control the clock.
	now func() time.Time
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]window),
		now:     time.Now,
	}
}

// CheckAndIncrement atomically counts one attempt for key and reports whether
// it fits within limit for the current window.
func (l *MemoryLimiter) CheckAndIncrement(
	_ context.Context,
	key string,
	limit int,
	windowSize time.Duration,
) (domain.RateDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= windowSize {
		w = window{start: now}
	}
	w.count++
	l.windows[key] = w

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}

	return domain.RateDecision{
		Allowed:   w.count <= limit,
		Remaining: remaining,
		ResetAt:   w.start.Add(windowSize),
	}, nil
}
