// Package ratelimit provides fixed-window counting backed by a pluggable
// TTL-keyed counter store. The same store backs the API rate limiter and
// actions that need short-lived per-execution counters.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore increments a named counter and returns its new value. The key
// expires after ttl; an expired key restarts from zero.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounterStore is an in-process CounterStore. Suitable for a single
// node and for tests.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryCounterStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	entry, ok := s.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &memoryEntry{expiresAt: now.Add(ttl)}
		s.entries[key] = entry
	}

	entry.count++

	return entry.count, nil
}
