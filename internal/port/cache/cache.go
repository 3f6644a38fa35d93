// Package cache defines the port interface for the in-process byte cache
// that fronts workspace file reads.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys. Implementations are
// free to evict at any time; callers must treat every Get as a maybe.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
