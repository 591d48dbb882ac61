// Package store provides storage backends for rate limiting state.
package store

import (
	"context"
	"time"
)

// Store defines the interface for rate limit storage.
type Store interface {
	// Get retrieves the value for the given key.
	Get(ctx context.Context, key string) (int64, error)

	// Set sets the value for the given key with an expiration.
	Set(ctx context.Context, key string, value int64, expiration time.Duration) error

	// Increment atomically increments the value for the given key,
	// setting the expiration if the key is new.
	Increment(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error)

	// TakeBucket atomically refills the token bucket stored under key
	// from elapsed wall time and takes n tokens when available. The
	// refill, the take, and the write back happen as one operation on
	// the store, so concurrent callers sharing a key never admit on a
	// stale count. It returns whether the take succeeded and the
	// remaining token count.
	TakeBucket(ctx context.Context, key string, rate float64, burst, n int, expiration time.Duration) (bool, float64, error)

	// Delete removes the key from the store.
	Delete(ctx context.Context, key string) error

	// Close closes the store and releases resources.
	Close() error
}

// ErrKeyNotFound is returned when a key is not found in the store.
type ErrKeyNotFound struct {
	Key string
}

func (e *ErrKeyNotFound) Error() string {
	return "key not found: " + e.Key
}

// IsKeyNotFound returns true if the error is a key not found error.
func IsKeyNotFound(err error) bool {
	_, ok := err.(*ErrKeyNotFound)
	return ok
}
