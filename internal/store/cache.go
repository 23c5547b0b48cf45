// Package store holds the cache backends used by the federation engine.
//
// A missing key, an expired entry and an invalidated entry are all reported
// the same way: Get returns ok == false. Backends that can fail return an
// error; callers treat an error from Get as a miss.
package store

import (
	"context"
	"time"
)

// Cache is the key-value contract shared by every backend.
type Cache interface {
	// Get returns the value stored under key if present and not expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. ttl <= 0 means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete invalidates key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Clock abstracts time retrieval so expiry is deterministic in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
