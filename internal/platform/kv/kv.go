// Package kv is the small key-value layer behind sessions and the permission
// cache. Redis is used when configured, an in-process LRU otherwise.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("kv: miss")

// Store is implemented by Redis and Memory.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Incr atomically increments a counter that never expires.
	Incr(ctx context.Context, key string) (int64, error)
	// Counter reads a counter written by Incr; absent counters read as 0.
	Counter(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
}
