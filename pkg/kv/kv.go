// Package kv holds the small key-value contract the run journal persists
// through. Two implementations exist: RedisStore for state that must
// survive the process and be visible to other conveyorctl invocations,
// and MemoryStore for tests and journal-less runs.
package kv

import (
	"context"
	"time"
)

// Store is the journal's persistence contract. Values are opaque byte
// slices; every write carries a TTL (zero disables expiry) because
// journal records are meant to age out, not accumulate.
type Store interface {
	// Set writes key unconditionally, replacing any existing value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetNX writes key only when it does not already exist, atomically.
	// The journal uses it to claim batch ownership. It reports whether
	// the write happened.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the store's underlying resources.
	Close() error
}
