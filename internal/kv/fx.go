package kv

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pulse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("kv",
	fx.Provide(NewClient),
	fx.Provide(func(client *redis.Client) Store { return NewRedisStore(client) }),
)

// NewClient builds the shared redis client. An unreachable backend is logged
// but does not abort startup; the cache layer degrades to direct computation.
func NewClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis unreachable, caching disabled until it recovers",
					zap.String("addr", cfg.RedisAddr),
					zap.Error(err),
				)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return client
}
