package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pulse/internal/period"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrSnapshotNotFound    = errors.New("snapshot_not_found")
)

// GenerateRequest asks for one period's aggregation. A zero SnapshotDate
// means "today"; an empty PeriodType means monthly.
type GenerateRequest struct {
	SnapshotDate time.Time
	PeriodType   period.Type
}

// MetricsRequest asks for KPI calculation over an explicit window. Zero
// values default to the trailing 30 days ending today.
type MetricsRequest struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// BreakdownResult reports one period's breakdown regeneration. Generated
// records per dimension whether its replace ran; a dimension whose record
// source was unavailable keeps its previously stored rows and is marked
// false, with Partial set.
type BreakdownResult struct {
	Breakdowns []CategoryBreakdown   `json:"breakdowns"`
	Generated  map[CategoryType]bool `json:"generated"`
	Partial    bool                  `json:"partial"`
}

// ClientAnalyticsResult reports one period's client-entry regeneration.
// When the client subsystem is unavailable the replace is aborted, stored
// rows survive, and Partial is set.
type ClientAnalyticsResult struct {
	Entries []ClientEntry `json:"clients"`
	Partial bool          `json:"partial"`
}

// MetricsResult reports one window's KPI calculation. Every tracked
// indicator is always present; unavailable modules contribute zeros and
// set Partial.
type MetricsResult struct {
	Metrics []PerformanceMetric `json:"kpis"`
	Partial bool                `json:"partial"`
}

// RefreshResult reports what a full regeneration produced.
type RefreshResult struct {
	SnapshotID     snowflake.ID `json:"snapshot_id"`
	BreakdownCount int          `json:"breakdown_count"`
	ClientCount    int          `json:"client_count"`
	MetricCount    int          `json:"metric_count"`
	Partial        bool         `json:"partial"`
	Elapsed        time.Duration `json:"-"`
}

// StaleOrg identifies a tenant whose newest monthly snapshot is older than
// the warm-up staleness bound (or missing entirely).
type StaleOrg struct {
	OrgID        snowflake.ID
	LastSnapshot *time.Time
}

// Service is the aggregation engine. Generate* operations are atomic
// delete-and-replace per (org, date, period type) and tolerate missing
// record subsystems: scalar contributions are zeroed, a row replace whose
// source is unavailable is aborted so stored rows survive, and the result
// is flagged partial either way. The tenant comes from the request context.
type Service interface {
	GenerateSnapshot(ctx context.Context, req GenerateRequest) (Snapshot, error)
	GenerateCategoryAnalytics(ctx context.Context, req GenerateRequest) (BreakdownResult, error)
	GenerateClientAnalytics(ctx context.Context, req GenerateRequest) (ClientAnalyticsResult, error)
	CalculatePerformanceMetrics(ctx context.Context, req MetricsRequest) (MetricsResult, error)

	GetSnapshot(ctx context.Context, snapshotDate time.Time, periodType period.Type) (Snapshot, error)
	ListBreakdowns(ctx context.Context, snapshotDate time.Time, periodType period.Type) ([]CategoryBreakdown, error)
	ListClientEntries(ctx context.Context, snapshotDate time.Time, periodType period.Type) ([]ClientEntry, error)
	ListMetrics(ctx context.Context, periodStart, periodEnd time.Time) ([]PerformanceMetric, error)

	Refresh(ctx context.Context, req GenerateRequest) (RefreshResult, error)
	StaleOrgs(ctx context.Context, olderThan time.Time, limit int) ([]StaleOrg, error)
}
