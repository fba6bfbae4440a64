// Package cache is the dashboard read-through cache: tenant-qualified
// derived keys, per-key-type TTLs, singleflight stampede control, and
// transparent degradation when the backend is unreachable.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pulse/internal/clock"
	"github.com/smallbiznis/pulse/internal/kv"
	"github.com/smallbiznis/pulse/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "pulse"

// Envelope is the stored representation of a cached payload.
type Envelope struct {
	Data       json.RawMessage `json:"data"`
	CachedAt   time.Time       `json:"cached_at"`
	TTLSeconds int             `json:"ttl_seconds"`
	KeyType    KeyType         `json:"key_type"`
}

// Result carries a payload plus cache metadata back to the caller.
type Result struct {
	Data     json.RawMessage `json:"data"`
	CachedAt time.Time       `json:"cached_at"`
	Hit      bool            `json:"hit"`
	Bypass   bool            `json:"bypass"`
}

// ComputeFunc produces the payload on a cache miss.
type ComputeFunc func(ctx context.Context) (any, error)

type Params struct {
	fx.In

	Store kv.Store
	Log   *zap.Logger
	Clock clock.Clock
}

// Cache is the dashboard cache layer.
type Cache struct {
	store kv.Store
	log   *zap.Logger
	clock clock.Clock
	group singleflight.Group
}

func New(p Params) *Cache {
	return &Cache{
		store: p.Store,
		log:   p.Log.Named("cache"),
		clock: p.Clock,
	}
}

// Key derives the storage key for a tenant, key type, and optional
// parameters. Parameters are hashed stably so equal parameter sets always
// derive the same key.
func Key(orgID snowflake.ID, keyType KeyType, params map[string]any) string {
	base := fmt.Sprintf("%s:%s:%s", keyPrefix, orgID.String(), keyType)
	if len(params) == 0 {
		return base
	}
	// json.Marshal sorts map keys, so the digest is order-independent.
	encoded, err := json.Marshal(params)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", params))
	}
	digest := sha256.Sum256(encoded)
	return base + ":" + hex.EncodeToString(digest[:16])
}

// GetOrCompute returns the cached payload for (org, key type, params), or
// computes, stores, and returns it. Concurrent callers for the same derived
// key share a single in-flight computation. A broken backend degrades to
// compute-every-time rather than failing the request.
func (c *Cache) GetOrCompute(ctx context.Context, orgID snowflake.ID, keyType KeyType, params map[string]any, compute ComputeFunc) (Result, error) {
	key := Key(orgID, keyType, params)

	if result, ok := c.lookup(ctx, key, keyType); ok {
		metrics.Default().IncCacheHit(string(keyType))
		return result, nil
	}

	value, err, shared := c.group.Do(key, func() (any, error) {
		// A concurrent caller may have stored the payload while this one
		// was queued on the flight group.
		if result, ok := c.lookup(ctx, key, keyType); ok {
			return result, nil
		}

		payload, err := compute(ctx)
		if err != nil {
			return Result{}, err
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Result{}, fmt.Errorf("encode cache payload: %w", err)
		}

		now := c.clock.Now()
		ttl := TTLFor(keyType)
		envelope, err := json.Marshal(Envelope{
			Data:       encoded,
			CachedAt:   now,
			TTLSeconds: int(ttl.Seconds()),
			KeyType:    keyType,
		})
		if err != nil {
			return Result{}, fmt.Errorf("encode cache envelope: %w", err)
		}

		result := Result{Data: encoded, CachedAt: now}
		if err := c.store.Set(ctx, key, envelope, ttl); err != nil {
			result.Bypass = true
			metrics.Default().IncCacheBypass(string(keyType))
			c.log.Warn("cache store failed, serving computed payload",
				zap.String("key", key),
				zap.Error(err),
			)
		} else {
			metrics.Default().IncCacheMiss(string(keyType))
		}
		return result, nil
	})
	if err != nil {
		return Result{}, err
	}
	if shared {
		metrics.Default().IncCacheShared(string(keyType))
	}
	return value.(Result), nil
}

// lookup reads and decodes one derived key. Backend errors are swallowed so
// callers fall through to compute.
func (c *Cache) lookup(ctx context.Context, key string, keyType KeyType) (Result, bool) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if err != kv.ErrNotFound {
			c.log.Warn("cache read failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return Result{}, false
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.log.Warn("cache entry corrupt, discarding",
			zap.String("key", key),
			zap.Error(err),
		)
		_ = c.store.Delete(ctx, key)
		return Result{}, false
	}

	return Result{
		Data:     envelope.Data,
		CachedAt: envelope.CachedAt,
		Hit:      true,
	}, true
}

// Invalidate removes a tenant's entries for one key type, or, when keyType
// is empty, sweeps every registered key type. With nil params the whole key
// type goes, parameterized variants included; with explicit params only
// that derived key goes.
func (c *Cache) Invalidate(ctx context.Context, orgID snowflake.ID, keyType KeyType, params map[string]any) error {
	if keyType != "" {
		metrics.Default().IncCacheInvalidation(string(keyType))
		if params != nil {
			return c.store.Delete(ctx, Key(orgID, keyType, params))
		}
		return c.store.DeleteByPrefix(ctx, Key(orgID, keyType, nil))
	}

	var firstErr error
	for _, registered := range KeyTypes() {
		metrics.Default().IncCacheInvalidation(string(registered))
		if err := c.store.DeleteByPrefix(ctx, Key(orgID, registered, nil)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// InvalidateSet removes a specific list of key types for a tenant.
func (c *Cache) InvalidateSet(ctx context.Context, orgID snowflake.ID, keyTypes ...KeyType) error {
	var firstErr error
	for _, keyType := range keyTypes {
		if err := c.Invalidate(ctx, orgID, keyType, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OnExpenseChange drops the caches an expense mutation staled.
func (c *Cache) OnExpenseChange(ctx context.Context, orgID snowflake.ID) error {
	return c.InvalidateSet(ctx, orgID, KeyTypeOverview, KeyTypeStats, KeyTypeBreakdown)
}

// OnInvoiceChange drops the caches an invoice mutation staled.
func (c *Cache) OnInvoiceChange(ctx context.Context, orgID snowflake.ID) error {
	return c.InvalidateSet(ctx, orgID, KeyTypeOverview, KeyTypeStats, KeyTypeClient)
}

// OnClientChange drops the caches a client mutation staled.
func (c *Cache) OnClientChange(ctx context.Context, orgID snowflake.ID) error {
	return c.InvalidateSet(ctx, orgID, KeyTypeOverview, KeyTypeClient)
}
