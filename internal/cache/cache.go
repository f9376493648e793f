// Package cache stores JSON-encoded values with a TTL, backed by Redis or an
// in-process map.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a keyed store of JSON-encodable values.
type Cache interface {
	// Get decodes the value stored at key into dst. It returns ErrMiss when
	// the key is absent.
	Get(ctx context.Context, key string, dst any) error
	// Set stores value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
