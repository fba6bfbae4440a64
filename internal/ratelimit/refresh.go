package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pulse/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Full regeneration touches every analytics table, so per-tenant refresh
// calls are bucketed: a small burst, then one token every 30 seconds.
const (
	refreshRate  = 1.0 / 30.0
	refreshBurst = 3
)

type RefreshParams struct {
	fx.In

	Client *redis.Client
	Clock  clock.Clock
	Log    *zap.Logger
}

// RefreshLimiter throttles dashboard refreshes per tenant. A broken redis
// backend fails open; refusing refreshes because the limiter is down would
// invert the failure.
type RefreshLimiter struct {
	bucket *TokenBucket
	clock  clock.Clock
	log    *zap.Logger
}

func NewRefreshLimiter(p RefreshParams) *RefreshLimiter {
	return &RefreshLimiter{
		bucket: NewTokenBucket(p.Client),
		clock:  p.Clock,
		log:    p.Log.Named("ratelimit"),
	}
}

// Allow reports whether the tenant may run a refresh now.
func (l *RefreshLimiter) Allow(ctx context.Context, orgID snowflake.ID) bool {
	if l == nil || l.bucket == nil {
		return true
	}

	key := fmt.Sprintf("pulse:ratelimit:refresh:%s", orgID.String())
	result, err := l.bucket.Allow(ctx, key, refreshRate, refreshBurst, l.clock.Now())
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		return true
	}
	return result.Allowed
}

// RetryAfter is the wait before the next token exists.
func (l *RefreshLimiter) RetryAfter() time.Duration {
	return time.Duration(1.0/refreshRate) * time.Second
}
