// Package ratelimit throttles bulletin writes per user and live connection
// attempts per client IP.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Result is the outcome of one check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long a rejected caller should wait, rounded up to whole
// seconds and never less than one.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter counts hits per key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// sweepEvery is how many checks pass between removals of idle keys.
const sweepEvery = 1024

// InMemory is a sliding-window limiter for a single instance.
type InMemory struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	checks  int
	now     func() time.Time
}

type slidingWindow struct {
	hits   []time.Time
	window time.Duration
}

type InMemoryOption func(*InMemory)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *InMemory) {
		s.now = now
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemory {
	s := &InMemory{windows: make(map[string]*slidingWindow), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.checks++
	if s.checks%sweepEvery == 0 {
		s.sweep(now)
	}

	w := s.windows[key]
	if w == nil {
		w = &slidingWindow{window: window}
		s.windows[key] = w
	}
	w.expire(now)

	if len(w.hits) >= limit {
		return Result{Allowed: false, Limit: limit, ResetAt: w.hits[0].Add(window)}, nil
	}
	w.hits = append(w.hits, now)
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(w.hits),
		ResetAt:   w.hits[0].Add(window),
	}, nil
}

// sweep drops keys with no hits left in their window. Callers hold s.mu.
func (s *InMemory) sweep(now time.Time) {
	for key, w := range s.windows {
		w.expire(now)
		if len(w.hits) == 0 {
			delete(s.windows, key)
		}
	}
}

func (w *slidingWindow) expire(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for ; i < len(w.hits); i++ {
		if w.hits[i].After(cutoff) {
			break
		}
	}
	w.hits = w.hits[i:]
}
