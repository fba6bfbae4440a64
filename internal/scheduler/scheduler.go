// Package scheduler runs the background snapshot warm-up loop: tenants
// whose newest monthly snapshot is older than the staleness bound get their
// aggregations regenerated before anyone asks for them.
package scheduler

import (
	"context"
	"time"

	analyticsdomain "github.com/smallbiznis/pulse/internal/analytics/domain"
	"github.com/smallbiznis/pulse/internal/cache"
	"github.com/smallbiznis/pulse/internal/clock"
	"github.com/smallbiznis/pulse/internal/config"
	"github.com/smallbiznis/pulse/internal/observability/metrics"
	"github.com/smallbiznis/pulse/internal/orgcontext"
	"github.com/smallbiznis/pulse/internal/period"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	Config       config.Config
	AnalyticsSvc analyticsdomain.Service
	Cache        *cache.Cache
}

type Scheduler struct {
	log          *zap.Logger
	clock        clock.Clock
	cfg          config.WarmupConfig
	analyticsSvc analyticsdomain.Service
	cache        *cache.Cache
}

func New(p Params) *Scheduler {
	return &Scheduler{
		log:          p.Log.Named("scheduler"),
		clock:        p.Clock,
		cfg:          p.Config.Warmup,
		analyticsSvc: p.AnalyticsSvc,
		cache:        p.Cache,
	}
}

// RunOnce regenerates one batch of stale tenants. Per-tenant failures are
// logged and counted but do not stop the batch.
func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	metrics.Default().IncWarmupRun()
	start := s.clock.Now()
	olderThan := start.Add(-s.cfg.Staleness)

	stale, err := s.analyticsSvc.StaleOrgs(ctx, olderThan, s.cfg.BatchSize)
	if err != nil {
		metrics.Default().IncWarmupError()
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	warmed := 0
	for _, org := range stale {
		if ctx.Err() != nil {
			break
		}

		orgCtx := orgcontext.WithOrgID(ctx, org.OrgID)
		result, err := s.analyticsSvc.Refresh(orgCtx, analyticsdomain.GenerateRequest{
			SnapshotDate: start,
			PeriodType:   period.TypeMonthly,
		})
		if err != nil {
			metrics.Default().IncWarmupError()
			s.log.Warn("warm-up refresh failed",
				zap.String("org_id", org.OrgID.String()),
				zap.Error(err),
			)
			continue
		}

		// Cached reads must not outlive the data they summarize.
		if err := s.cache.Invalidate(orgCtx, org.OrgID, "", nil); err != nil {
			s.log.Warn("warm-up invalidation failed",
				zap.String("org_id", org.OrgID.String()),
				zap.Error(err),
			)
		}

		warmed++
		s.log.Debug("warmed tenant",
			zap.String("org_id", org.OrgID.String()),
			zap.Bool("partial", result.Partial),
			zap.Duration("elapsed", result.Elapsed),
		)
	}

	s.log.Info("warm-up batch complete",
		zap.Int("stale", len(stale)),
		zap.Int("warmed", warmed),
		zap.Duration("elapsed", s.clock.Now().Sub(start)),
	)
	return nil
}

// RunForever runs batches on the configured interval until ctx is
// cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("warm-up run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
