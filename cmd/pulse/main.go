package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pulse/internal/analytics"
	"github.com/smallbiznis/pulse/internal/cache"
	"github.com/smallbiznis/pulse/internal/clock"
	"github.com/smallbiznis/pulse/internal/config"
	"github.com/smallbiznis/pulse/internal/kv"
	"github.com/smallbiznis/pulse/internal/migration"
	"github.com/smallbiznis/pulse/internal/observability"
	"github.com/smallbiznis/pulse/internal/ratelimit"
	"github.com/smallbiznis/pulse/internal/realtime"
	"github.com/smallbiznis/pulse/internal/records"
	"github.com/smallbiznis/pulse/internal/scheduler"
	"github.com/smallbiznis/pulse/internal/seed"
	"github.com/smallbiznis/pulse/internal/server"
	"github.com/smallbiznis/pulse/internal/stream"
	"github.com/smallbiznis/pulse/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		kv.Module,
		migration.Module,
		seed.Module,

		// Functional domains
		records.Module,
		analytics.Module,
		cache.Module,
		realtime.Module,
		ratelimit.Module,
		stream.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
