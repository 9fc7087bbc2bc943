package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 256

// MemoryStore keeps counters in process. It is safe for concurrent use and
// suits single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
	hits    int
}

// NewMemoryStore builds an empty store. A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: make(map[string]Entry), now: now}
}

// Hit implements Store.
func (s *MemoryStore) Hit(_ context.Context, key string, limit int, window time.Duration) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.hits++
	if s.hits%sweepEvery == 0 {
		s.sweepLocked(now)
	}

	entry, ok := s.entries[key]
	if !ok || !now.Before(entry.ExpiresAt) {
		entry = Entry{Count: 1, ExpiresAt: now.Add(window)}
		s.entries[key] = entry
		return entry, true, nil
	}
	if entry.Count >= limit {
		return entry, false, nil
	}
	entry.Count++
	s.entries[key] = entry
	return entry, true, nil
}

// Len returns the number of tracked keys, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts expired entries.
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now())
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for key, entry := range s.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(s.entries, key)
		}
	}
}
