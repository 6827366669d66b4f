// Package cache provides the shared key/value store used for permission
// sets, settings, the license record and rate limit counters.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent
var ErrMiss = errors.New("cache miss")

// Store is a TTL key/value store with glob invalidation
type Store interface {
	// Get decodes the value stored under key into dest. It returns ErrMiss
	// when the key is absent or expired.
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes every key matching a glob such as "user:42:*"
	DeletePattern(ctx context.Context, pattern string) error
	Flush(ctx context.Context) error
	// Incr increments a counter, creating it with the given window TTL.
	// It returns the new value and the remaining TTL of the key.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Close() error
}
