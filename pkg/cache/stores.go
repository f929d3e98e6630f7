// Package cache defines the contracts shared by the cache tiers: the
// tier-2/tier-3 store interfaces, sentinel errors, key validation, and the
// codec used when values cross into a serialized tier.
package cache

import (
	"context"
	"time"
)

// RemoteStore is the tier-2 contract: a fast remote key-value store with
// per-key expiry, Redis-like. The tiered cache treats any error other than
// ErrKeyNotFound as a tier failure.
type RemoteStore interface {
	// Get returns the serialized value for key, or ErrKeyNotFound on a miss.
	Get(ctx context.Context, key string) (string, error)

	// SetWithExpiry stores the serialized value under key with the given TTL.
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the store for logging and metrics (e.g. "redis").
	Name() string
}

// DurableStore is the tier-3 contract: a durable relational store holding one
// row per key with a serialized value and an absolute expiry.
type DurableStore interface {
	// Get returns the serialized value for key, or ErrKeyNotFound if the key
	// is absent or its row has expired.
	Get(ctx context.Context, key string) (string, error)

	// Upsert inserts or replaces the row for key, refreshing value and expiry.
	// A zero expiresAt means the row never expires from age.
	Upsert(ctx context.Context, key, value string, expiresAt time.Time) error

	// Delete removes the row for key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteAll removes every row owned by this store.
	DeleteAll(ctx context.Context) error

	// Name identifies the store for logging and metrics (e.g. "postgres").
	Name() string
}
