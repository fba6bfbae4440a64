// Package kv defines the key/value contract consumed by the cache layer and
// provides redis-backed and in-memory implementations.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a missing or expired key.
var ErrNotFound = errors.New("kv: key not found")

// Store is a minimal key/value store with TTL support. Implementations must
// treat a zero ttl as "no expiry". DeleteByPrefix exists for cache
// invalidation, where one logical entry fans out into parameterized keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}
