package seed

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pulse/internal/clock"
	"github.com/smallbiznis/pulse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(run),
)

func run(cfg config.Config, conn *gorm.DB, node *snowflake.Node, clk clock.Clock, log *zap.Logger) error {
	if !cfg.SeedDemo || cfg.IsProduction() {
		return nil
	}
	if err := EnsureDemoOrg(conn, node, clk.Now()); err != nil {
		return err
	}
	log.Named("seed").Info("demo tenant ready", zap.Int64("org_id", int64(DemoOrgID)))
	return nil
}
