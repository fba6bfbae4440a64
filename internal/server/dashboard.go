package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	analyticsdomain "github.com/smallbiznis/pulse/internal/analytics/domain"
	"github.com/smallbiznis/pulse/internal/cache"
	"github.com/smallbiznis/pulse/internal/orgcontext"
	"github.com/smallbiznis/pulse/internal/period"
	"go.uber.org/zap"
)

type overviewResponse struct {
	Snapshot     analyticsdomain.Snapshot `json:"snapshot"`
	ProfitMargin decimal.Decimal          `json:"profit_margin"`
	ExpenseRatio decimal.Decimal          `json:"expense_ratio"`
}

type statsResponse struct {
	TotalRevenue        decimal.Decimal `json:"total_revenue"`
	TotalExpenses       decimal.Decimal `json:"total_expenses"`
	NetProfit           decimal.Decimal `json:"net_profit"`
	OutstandingAmount   decimal.Decimal `json:"outstanding_amount"`
	TotalClients        int64           `json:"total_clients"`
	NewClients          int64           `json:"new_clients"`
	TotalInvoices       int64           `json:"total_invoices"`
	QuoteConversionRate decimal.Decimal `json:"quote_conversion_rate"`
	Partial             bool            `json:"partial"`
	AsOf                time.Time       `json:"as_of"`
}

type clientResponse struct {
	analyticsdomain.ClientEntry
	AverageInvoiceValue decimal.Decimal `json:"average_invoice_value"`
	LifetimeValue       decimal.Decimal `json:"lifetime_value"`
}

type kpiResponse struct {
	analyticsdomain.PerformanceMetric
	ChangePercentage  decimal.Decimal  `json:"change_percentage"`
	IsImproving       bool             `json:"is_improving"`
	TargetAchievement *decimal.Decimal `json:"target_achievement,omitempty"`
}

// GetOverview returns the period snapshot plus derived ratios, cached under
// the overview key type.
func (s *Server) GetOverview(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	date, periodType, err := s.parsePeriodQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	params := periodParams(date, periodType)
	result, err := s.cache.GetOrCompute(c.Request.Context(), orgID, cache.KeyTypeOverview, params, func(ctx context.Context) (any, error) {
		snapshot, err := s.snapshotOrGenerate(ctx, date, periodType)
		if err != nil {
			return nil, err
		}
		return overviewResponse{
			Snapshot:     snapshot,
			ProfitMargin: snapshot.ProfitMargin(),
			ExpenseRatio: snapshot.ExpenseRatio(),
		}, nil
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondCached(c, result)
}

// GetStats returns the quick-stats summary on the short stats TTL.
func (s *Server) GetStats(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	date, periodType, err := s.parsePeriodQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	params := periodParams(date, periodType)
	result, err := s.cache.GetOrCompute(c.Request.Context(), orgID, cache.KeyTypeStats, params, func(ctx context.Context) (any, error) {
		snapshot, err := s.snapshotOrGenerate(ctx, date, periodType)
		if err != nil {
			return nil, err
		}
		return statsResponse{
			TotalRevenue:        snapshot.TotalRevenue,
			TotalExpenses:       snapshot.TotalExpenses,
			NetProfit:           snapshot.NetProfit,
			OutstandingAmount:   snapshot.OutstandingAmount,
			TotalClients:        snapshot.TotalClients,
			NewClients:          snapshot.NewClients,
			TotalInvoices:       snapshot.TotalInvoices,
			QuoteConversionRate: snapshot.QuoteConversionRate,
			Partial:             snapshot.Partial,
			AsOf:                snapshot.UpdatedAt,
		}, nil
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondCached(c, result)
}

// GetBreakdown returns category breakdowns for the period.
func (s *Server) GetBreakdown(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	date, periodType, err := s.parsePeriodQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	params := periodParams(date, periodType)
	result, err := s.cache.GetOrCompute(c.Request.Context(), orgID, cache.KeyTypeBreakdown, params, func(ctx context.Context) (any, error) {
		breakdowns, err := s.analyticsSvc.ListBreakdowns(ctx, date, periodType)
		if err != nil {
			return nil, err
		}
		if len(breakdowns) == 0 {
			generated, err := s.analyticsSvc.GenerateCategoryAnalytics(ctx, analyticsdomain.GenerateRequest{
				SnapshotDate: date,
				PeriodType:   periodType,
			})
			if err != nil {
				return nil, err
			}
			breakdowns = generated.Breakdowns
		}
		return gin.H{"breakdowns": breakdowns}, nil
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondCached(c, result)
}

// GetClients returns per-client analytics for the period, including the
// derived average invoice value and projected lifetime value.
func (s *Server) GetClients(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	date, periodType, err := s.parsePeriodQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	params := periodParams(date, periodType)
	result, err := s.cache.GetOrCompute(c.Request.Context(), orgID, cache.KeyTypeClient, params, func(ctx context.Context) (any, error) {
		entries, err := s.analyticsSvc.ListClientEntries(ctx, date, periodType)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			generated, err := s.analyticsSvc.GenerateClientAnalytics(ctx, analyticsdomain.GenerateRequest{
				SnapshotDate: date,
				PeriodType:   periodType,
			})
			if err != nil {
				return nil, err
			}
			entries = generated.Entries
		}

		clients := make([]clientResponse, 0, len(entries))
		for _, entry := range entries {
			clients = append(clients, clientResponse{
				ClientEntry:         entry,
				AverageInvoiceValue: entry.AverageInvoiceValue(),
				LifetimeValue:       entry.LifetimeValue(),
			})
		}
		return gin.H{"clients": clients}, nil
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondCached(c, result)
}

// GetKPIs returns performance metrics for an explicit window, defaulting to
// the trailing 30 days.
func (s *Server) GetKPIs(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	start, end, err := s.parseWindowQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	params := map[string]any{
		"start": start.Format(time.DateOnly),
		"end":   end.Format(time.DateOnly),
	}
	result, err := s.cache.GetOrCompute(c.Request.Context(), orgID, cache.KeyTypeKPI, params, func(ctx context.Context) (any, error) {
		metrics, err := s.analyticsSvc.ListMetrics(ctx, start, end)
		if err != nil {
			return nil, err
		}
		if len(metrics) == 0 {
			calculated, err := s.analyticsSvc.CalculatePerformanceMetrics(ctx, analyticsdomain.MetricsRequest{
				PeriodStart: start,
				PeriodEnd:   end,
			})
			if err != nil {
				return nil, err
			}
			metrics = calculated.Metrics
		}

		kpis := make([]kpiResponse, 0, len(metrics))
		for _, metric := range metrics {
			item := kpiResponse{
				PerformanceMetric: metric,
				ChangePercentage:  metric.ChangePercentage(),
				IsImproving:       metric.IsImproving(),
			}
			if achievement, ok := metric.TargetAchievement(); ok {
				item.TargetAchievement = &achievement
			}
			kpis = append(kpis, item)
		}
		return gin.H{"kpis": kpis}, nil
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondCached(c, result)
}

// GetRealtime computes the live dashboard payload. Never cached.
func (s *Server) GetRealtime(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	update, err := s.realtimeSvc.Dashboard(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, update)
}

// PostRefresh regenerates every aggregation for the period and drops the
// tenant's cached entries so the next reads recompute.
func (s *Server) PostRefresh(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	date, periodType, err := s.parsePeriodQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.limiter != nil && !s.limiter.Allow(c.Request.Context(), orgID) {
		c.Header("Retry-After", strconv.Itoa(int(s.limiter.RetryAfter().Seconds())))
		AbortWithError(c, ErrRateLimited)
		return
	}

	result, err := s.analyticsSvc.Refresh(c.Request.Context(), analyticsdomain.GenerateRequest{
		SnapshotDate: date,
		PeriodType:   periodType,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.cache.Invalidate(c.Request.Context(), orgID, "", nil); err != nil {
		s.log.Warn("cache invalidation after refresh failed",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"refreshed":  result,
		"elapsed_ms": result.Elapsed.Milliseconds(),
	})
}

func (s *Server) snapshotOrGenerate(ctx context.Context, date time.Time, periodType period.Type) (analyticsdomain.Snapshot, error) {
	snapshot, err := s.analyticsSvc.GetSnapshot(ctx, date, periodType)
	if errors.Is(err, analyticsdomain.ErrSnapshotNotFound) {
		return s.analyticsSvc.GenerateSnapshot(ctx, analyticsdomain.GenerateRequest{
			SnapshotDate: date,
			PeriodType:   periodType,
		})
	}
	return snapshot, err
}

func (s *Server) parsePeriodQuery(c *gin.Context) (time.Time, period.Type, error) {
	periodType := period.TypeMonthly
	if raw := c.Query("period_type"); raw != "" {
		parsed, err := period.ParseType(raw)
		if err != nil {
			return time.Time{}, "", err
		}
		periodType = parsed
	}

	date := s.clock.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, "", fmt.Errorf("%w: date", ErrInvalidRequest)
		}
		date = parsed
	}
	return date, periodType, nil
}

func (s *Server) parseWindowQuery(c *gin.Context) (time.Time, time.Time, error) {
	end := s.clock.Now().Truncate(24 * time.Hour)
	if raw := c.Query("end"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: end", ErrInvalidRequest)
		}
		end = parsed
	}

	start := end.AddDate(0, 0, -30)
	if raw := c.Query("start"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: start", ErrInvalidRequest)
		}
		start = parsed
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: window", ErrInvalidRequest)
	}
	return start, end, nil
}

func periodParams(date time.Time, periodType period.Type) map[string]any {
	return map[string]any{
		"date":        date.Format(time.DateOnly),
		"period_type": string(periodType),
	}
}

// respondCached writes a cached payload with cache disposition headers.
func (s *Server) respondCached(c *gin.Context, result cache.Result) {
	disposition := "MISS"
	switch {
	case result.Hit:
		disposition = "HIT"
	case result.Bypass:
		disposition = "BYPASS"
	}
	c.Header("X-Cache", disposition)
	c.Header("X-Cached-At", result.CachedAt.UTC().Format(time.RFC3339))
	c.Data(http.StatusOK, "application/json; charset=utf-8", result.Data)
}
