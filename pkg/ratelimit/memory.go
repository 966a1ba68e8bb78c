package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepEvery bounds how often expired windows are dropped.
const sweepEvery = time.Minute

type window struct {
	count   int
	resetAt time.Time
}

// Memory keeps one fixed-window counter per class and caller, matching the
// Redis backend: a window opens on the first call and admits Limit calls
// until it expires.
type Memory struct {
	rules Rules
	now   func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	nextSweep time.Time
}

// NewMemory builds an in-process limiter.
func NewMemory(rules Rules) *Memory {
	return &Memory{rules: rules, now: time.Now, windows: make(map[string]*window)}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, class, key string) (Decision, error) {
	rule, ok := m.rules.lookup(class)
	if !ok {
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	id := class + "|" + key

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)

	w, ok := m.windows[id]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(rule.Window)}
		m.windows[id] = w
	}
	if w.count >= rule.Limit {
		return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(now)}, nil
	}
	w.count++
	return Decision{Allowed: true, Remaining: rule.Limit - w.count}, nil
}

// Len reports how many windows are tracked.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// sweep drops expired windows. Callers hold m.mu.
func (m *Memory) sweep(now time.Time) {
	if now.Before(m.nextSweep) {
		return
	}
	for id, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, id)
		}
	}
	m.nextSweep = now.Add(sweepEvery)
}
