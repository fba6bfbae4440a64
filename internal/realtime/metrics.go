// Package realtime computes cheap, ephemeral dashboard metrics on every
// call. Nothing here is persisted; short-TTL baselines in the kv store are
// used purely as delta anchors.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pulse/internal/clock"
	"github.com/smallbiznis/pulse/internal/kv"
	records "github.com/smallbiznis/pulse/internal/records/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Trend labels a metric's direction. Up is always the favorable direction:
// metrics where lower is better (expenses, pending, overdue) carry inverted
// labels.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Metric names.
const (
	MetricDailyRevenue    = "Daily Revenue"
	MetricDailyExpenses   = "Daily Expenses"
	MetricDailyProfit     = "Daily Profit"
	MetricPendingInvoices = "Pending Invoices"
	MetricOverdueInvoices = "Overdue Invoices"
	MetricActiveClients   = "Active Clients"
)

// LiveMetric is one freshly computed real-time metric.
type LiveMetric struct {
	Name       string          `json:"name"`
	Value      decimal.Decimal `json:"value"`
	Change     decimal.Decimal `json:"change"`
	Trend      Trend           `json:"trend"`
	Timestamp  time.Time       `json:"timestamp"`
	Confidence float64         `json:"confidence"`
}

// Update is a complete live dashboard payload.
type Update struct {
	OrgID            string       `json:"org_id"`
	Timestamp        time.Time    `json:"timestamp"`
	Metrics          []LiveMetric `json:"metrics"`
	Alerts           []Alert      `json:"alerts"`
	PerformanceScore float64      `json:"performance_score"`
}

// Baseline TTLs for count deltas.
const (
	invoiceBaselineTTL = 5 * time.Minute
	clientBaselineTTL  = 15 * time.Minute
)

type Params struct {
	fx.In

	Source records.Source
	Store  kv.Store
	Log    *zap.Logger
	Clock  clock.Clock
}

// Engine computes live metrics, alerts, and the performance score.
type Engine struct {
	source records.Source
	store  kv.Store
	log    *zap.Logger
	clock  clock.Clock
}

func New(p Params) *Engine {
	return &Engine{
		source: p.Source,
		store:  p.Store,
		log:    p.Log.Named("realtime.engine"),
		clock:  p.Clock,
	}
}

// LiveMetrics computes the current metric set. Metrics whose backing
// subsystem is unavailable are omitted rather than reported as zero.
func (e *Engine) LiveMetrics(ctx context.Context, orgID snowflake.ID) ([]LiveMetric, error) {
	now := e.clock.Now()
	metrics := make([]LiveMetric, 0, 6)

	metrics = append(metrics, e.financialMetrics(ctx, orgID, now)...)
	metrics = append(metrics, e.operationalMetrics(ctx, orgID, now)...)
	metrics = append(metrics, e.clientMetrics(ctx, orgID, now)...)

	return metrics, nil
}

// Dashboard assembles metrics, alerts, and the score into one update.
func (e *Engine) Dashboard(ctx context.Context, orgID snowflake.ID) (Update, error) {
	metrics, err := e.LiveMetrics(ctx, orgID)
	if err != nil {
		return Update{}, err
	}
	return Update{
		OrgID:            orgID.String(),
		Timestamp:        e.clock.Now(),
		Metrics:          metrics,
		Alerts:           GenerateAlerts(metrics),
		PerformanceScore: PerformanceScore(metrics),
	}, nil
}

func dayRange(t time.Time) records.Range {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return records.Range{Start: day, End: day}
}

func (e *Engine) financialMetrics(ctx context.Context, orgID snowflake.ID, now time.Time) []LiveMetric {
	today := dayRange(now)
	yesterday := dayRange(now.AddDate(0, 0, -1))

	metrics := make([]LiveMetric, 0, 3)

	todayInvoices, errToday := e.source.InvoiceTotals(ctx, orgID, today)
	yesterdayInvoices, errYesterday := e.source.InvoiceTotals(ctx, orgID, yesterday)
	revenueOK := errToday == nil && errYesterday == nil
	if !revenueOK {
		e.logUnlessUnavailable("invoice", errToday, errYesterday)
	}
	if revenueOK {
		change := todayInvoices.TotalAmount.Sub(yesterdayInvoices.TotalAmount)
		metrics = append(metrics, LiveMetric{
			Name:       MetricDailyRevenue,
			Value:      todayInvoices.TotalAmount,
			Change:     change,
			Trend:      trendOf(change),
			Timestamp:  now,
			Confidence: 0.95,
		})
	}

	todayExpenses, errToday := e.source.ExpenseTotals(ctx, orgID, today)
	yesterdayExpenses, errYesterday := e.source.ExpenseTotals(ctx, orgID, yesterday)
	expensesOK := errToday == nil && errYesterday == nil
	if !expensesOK {
		e.logUnlessUnavailable("expense", errToday, errYesterday)
	}
	if expensesOK {
		change := todayExpenses.TotalAmount.Sub(yesterdayExpenses.TotalAmount)
		// Lower expenses are better, so the label is inverted.
		metrics = append(metrics, LiveMetric{
			Name:       MetricDailyExpenses,
			Value:      todayExpenses.TotalAmount,
			Change:     change,
			Trend:      invertedTrendOf(change),
			Timestamp:  now,
			Confidence: 0.95,
		})
	}

	if revenueOK && expensesOK {
		todayProfit := todayInvoices.TotalAmount.Sub(todayExpenses.TotalAmount)
		yesterdayProfit := yesterdayInvoices.TotalAmount.Sub(yesterdayExpenses.TotalAmount)
		change := todayProfit.Sub(yesterdayProfit)
		metrics = append(metrics, LiveMetric{
			Name:       MetricDailyProfit,
			Value:      todayProfit,
			Change:     change,
			Trend:      trendOf(change),
			Timestamp:  now,
			Confidence: 0.90,
		})
	}

	return metrics
}

func (e *Engine) operationalMetrics(ctx context.Context, orgID snowflake.ID, now time.Time) []LiveMetric {
	metrics := make([]LiveMetric, 0, 2)

	if pending, err := e.source.PendingInvoiceCount(ctx, orgID); err == nil {
		change := e.countDelta(ctx, orgID, "pending_invoices", pending, invoiceBaselineTTL)
		metrics = append(metrics, LiveMetric{
			Name:       MetricPendingInvoices,
			Value:      decimal.NewFromInt(pending),
			Change:     decimal.NewFromInt(change),
			Trend:      invertedTrendOf(decimal.NewFromInt(change)),
			Timestamp:  now,
			Confidence: 1.0,
		})
	}

	if overdue, err := e.source.OverdueInvoiceCount(ctx, orgID); err == nil {
		change := e.countDelta(ctx, orgID, "overdue_invoices", overdue, invoiceBaselineTTL)
		metrics = append(metrics, LiveMetric{
			Name:       MetricOverdueInvoices,
			Value:      decimal.NewFromInt(overdue),
			Change:     decimal.NewFromInt(change),
			Trend:      invertedTrendOf(decimal.NewFromInt(change)),
			Timestamp:  now,
			Confidence: 1.0,
		})
	}

	return metrics
}

func (e *Engine) clientMetrics(ctx context.Context, orgID snowflake.ID, now time.Time) []LiveMetric {
	counts, err := e.source.ClientCounts(ctx, orgID, dayRange(now))
	if err != nil {
		return nil
	}

	change := e.countDelta(ctx, orgID, "active_clients", counts.Active, clientBaselineTTL)
	return []LiveMetric{{
		Name:       MetricActiveClients,
		Value:      decimal.NewFromInt(counts.Active),
		Change:     decimal.NewFromInt(change),
		Trend:      trendOf(decimal.NewFromInt(change)),
		Timestamp:  now,
		Confidence: 0.98,
	}}
}

// logUnlessUnavailable keeps "subsystem absent" quiet while surfacing real
// failures.
func (e *Engine) logUnlessUnavailable(source string, errs ...error) {
	for _, err := range errs {
		if err != nil && !errors.Is(err, records.ErrSourceUnavailable) {
			e.log.Warn("record source failed",
				zap.String("source", source),
				zap.Error(err),
			)
		}
	}
}

// countDelta compares a count against the previous call's baseline and
// refreshes the baseline. A cold or broken baseline store yields a zero
// delta, never an error.
func (e *Engine) countDelta(ctx context.Context, orgID snowflake.ID, metric string, current int64, ttl time.Duration) int64 {
	key := fmt.Sprintf("pulse:%s:realtime:%s", orgID.String(), metric)

	previous := current
	if raw, err := e.store.Get(ctx, key); err == nil {
		if parsed, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			previous = parsed
		}
	}

	if err := e.store.Set(ctx, key, []byte(strconv.FormatInt(current, 10)), ttl); err != nil {
		e.log.Debug("baseline store failed",
			zap.String("metric", metric),
			zap.Error(err),
		)
	}

	return current - previous
}

func trendOf(change decimal.Decimal) Trend {
	switch {
	case change.IsPositive():
		return TrendUp
	case change.IsNegative():
		return TrendDown
	default:
		return TrendStable
	}
}

func invertedTrendOf(change decimal.Decimal) Trend {
	switch {
	case change.IsPositive():
		return TrendDown
	case change.IsNegative():
		return TrendUp
	default:
		return TrendStable
	}
}
