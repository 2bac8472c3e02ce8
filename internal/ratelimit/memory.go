package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int64
	start time.Time
}

// MemoryGate is a single-process fixed-window limiter, used where redis is
// not deployed and as the reference behavior for tests.
type MemoryGate struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int64
	length  time.Duration
	now     func() time.Time
}

func NewMemoryGate(limit int, length time.Duration) *MemoryGate {
	return &MemoryGate{
		windows: make(map[string]*window),
		limit:   int64(limit),
		length:  length,
		now:     time.Now,
	}
}

func (g *MemoryGate) Check(_ context.Context, identifier, category string) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := category + ":" + identifier
	now := g.now()
	w, ok := g.windows[key]
	if !ok || now.Sub(w.start) >= g.length {
		g.windows[key] = &window{count: 1, start: now}
		return Result{Allowed: true}, nil
	}
	if w.count >= g.limit {
		return Result{Allowed: false, RetryAfter: g.length - now.Sub(w.start)}, nil
	}
	w.count++
	return Result{Allowed: true}, nil
}

// Cleanup drops windows idle for longer than the window length; call it
// periodically to bound memory.
func (g *MemoryGate) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for k, w := range g.windows {
		if now.Sub(w.start) >= g.length {
			delete(g.windows, k)
		}
	}
}
