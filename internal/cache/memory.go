package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// sweepInterval is the minimum time between sweeps of expired entries, run from Set.
const sweepInterval = time.Minute

// MemoryStore is an in-process Store. Expired entries are dropped when read, and swept from the
// whole map by Set at most once per sweepInterval.
type MemoryStore struct {
	mu        sync.RWMutex
	m         map[string]entry
	nowF      func() time.Time
	nextSweep time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: time.Now,
	}
}

// Set stores value under key until now+ttl.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	if !now.Before(s.nextSweep) {
		s.sweepLocked(now)
	}
	s.m[key] = entry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for k, e := range s.m {
		if !e.expiresAt.After(now) {
			delete(s.m, k)
		}
	}
	s.nextSweep = now.Add(sweepInterval)
}

// Get returns the value for key if present and not expired.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		// re-check: a concurrent Set may have replaced the entry
		if cur, ok := s.m[key]; ok && cur.expiresAt == e.expiresAt {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Delete removes key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet reclaimed.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
