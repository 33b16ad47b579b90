package cache

import (
	"context"
	"errors"
	"time"
)

// TTL is the lifetime of every physical key, refreshed on each write.
const TTL = time.Hour

// ErrNotChunkable is returned when a payload exceeds the size ceiling but
// has no list to split (an opaque value).
var ErrNotChunkable = errors.New("payload too large and not chunkable")

// KV is the TTL-bound key-value primitive the store's protocols layer over.
// Implementations must be safe for concurrent use; single-key operations
// are atomic, multi-key sequences are not.
type KV interface {
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value and whether the key existed.
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, keys ...string) error
}
