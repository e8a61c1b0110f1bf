// Package kv defines the shared key-value cache that backs the cross-process
// token tier. Every implementation must apply the TTL given on write and
// treat each Set as a single atomic, last-write-wins replacement.
package kv

import (
	"context"
	"time"
)

// Backend is a key-value store with per-key time-to-live.
type Backend interface {
	// Get returns the value for key. A missing or expired key reports false
	// and a nil error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl, replacing any previous value.
	// A non-positive ttl deletes key.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Sweeper is implemented by backends that need expired values removed
// eagerly rather than on access.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}
