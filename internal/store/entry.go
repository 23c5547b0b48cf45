package store

import "time"

// Entry represents a single value stored in the cache.
//
// Zero value of ExpiresAt means "no expiration".
type Entry struct {
	Value     []byte
	StoredAt  time.Time
	ExpiresAt time.Time
}

// IsExpired checks whether the entry is expired at the given time.
func (e Entry) IsExpired(now time.Time) bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(e.ExpiresAt)
}
