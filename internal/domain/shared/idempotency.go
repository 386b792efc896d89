package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers request keys that have already been processed
type IdempotencyStore interface {
	// MarkProcessed reserves key for ttl.
	// Returns true if the key was newly reserved, false if it was already taken.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been reserved
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Release drops a reservation so the key can be retried after a failed attempt
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// DefaultIdempotencyTTL is how long a payment idempotency key is remembered
const DefaultIdempotencyTTL = 24 * time.Hour
