package store

import (
	"context"
	"sync"
	"time"

	"registry-federation/internal/metrics"
)

// Memory is a concurrency-safe in-memory Cache.
//
// Expired entries are dropped lazily on Get and in bulk by RemoveExpired,
// which the ttl cleaner calls periodically.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]Entry
	metrics *metrics.Registry
	clock   Clock
}

// Option configures a Memory store.
type Option func(*Memory)

// WithClock overrides the wall clock used for expiry.
func WithClock(c Clock) Option {
	return func(m *Memory) { m.clock = c }
}

// NewMemory initializes and returns a new Memory store.
func NewMemory(metricsRegistry *metrics.Registry, opts ...Option) *Memory {
	m := &Memory{
		data:    make(map[string]Entry),
		metrics: metricsRegistry,
		clock:   realClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Set inserts or replaces key.
func (s *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.clock.Now()
	entry := Entry{
		Value:    append([]byte(nil), value...),
		StoredAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Inc(metrics.CacheSetsTotal)
	if _, exists := s.data[key]; !exists {
		s.metrics.Inc(metrics.CacheKeys)
	}
	s.data[key] = entry
	return nil
}

// Get retrieves a value from the store.
//
// If the key is expired, it is deleted and treated as missing.
func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.metrics.Inc(metrics.CacheGetsTotal)

	s.mu.RLock()
	entry, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		s.metrics.Inc(metrics.CacheMissesTotal)
		return nil, false, nil
	}

	if entry.IsExpired(s.clock.Now()) {
		s.mu.Lock()
		// re-check: a concurrent Set may have refreshed the key
		if cur, ok := s.data[key]; ok && cur.IsExpired(s.clock.Now()) {
			delete(s.data, key)
			s.metrics.Inc(metrics.CacheExpiredTotal)
			s.metrics.Add(metrics.CacheKeys, -1)
		}
		s.mu.Unlock()

		s.metrics.Inc(metrics.CacheMissesTotal)
		return nil, false, nil
	}

	s.metrics.Inc(metrics.CacheHitsTotal)
	return append([]byte(nil), entry.Value...), true, nil
}

// Delete removes a key from the store.
func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Inc(metrics.CacheDeletesTotal)
	if _, ok := s.data[key]; ok {
		delete(s.data, key)
		s.metrics.Add(metrics.CacheKeys, -1)
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// List returns a snapshot of all non-expired entries.
// Used by admin APIs.
func (s *Memory) List() map[string]Entry {
	now := s.clock.Now()
	result := make(map[string]Entry)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for k, v := range s.data {
		if !v.IsExpired(now) {
			result[k] = v
		}
	}
	return result
}

// RemoveExpired removes all expired keys from the store.
func (s *Memory) RemoveExpired() int {
	now := s.clock.Now()
	removed := 0

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range s.data {
		if v.IsExpired(now) {
			delete(s.data, k)
			removed++
		}
	}

	if removed > 0 {
		s.metrics.Add(metrics.CacheExpiredTotal, int64(removed))
		s.metrics.Add(metrics.CacheKeys, -int64(removed))
	}

	return removed
}
