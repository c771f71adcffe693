// Package kvcache is the byte-oriented key/value store behind the feed cache.
// Values expire after a per-entry TTL; a missing or expired key is a miss,
// not an error.
package kvcache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures so callers can treat any of them as
// a miss.
var ErrUnavailable = errors.New("cache unavailable")

// Cache is implemented by Memory and Redis.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}
