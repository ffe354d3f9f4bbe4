package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryCounter struct {
	windowStart time.Time
	count       int
}

// MemoryStore is an in-memory CounterStore for tests and development.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter

	// Now can be overridden in tests to control window expiry.
	Now func() time.Time
}

// NewMemoryStore constructs an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*memoryCounter),
		Now:      time.Now,
	}
}

// Incr adds points to the counter behind key with fixed-window semantics.
func (s *MemoryStore) Incr(_ context.Context, key string, points int, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	c, ok := s.counters[key]
	if !ok || now.Sub(c.windowStart) >= window {
		c = &memoryCounter{windowStart: now}
		s.counters[key] = c
	}
	c.count += points
	return c.count, c.windowStart, nil
}
