package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	analytics "github.com/smallbiznis/pulse/internal/analytics/domain"
	"github.com/smallbiznis/pulse/internal/clock"
	"github.com/smallbiznis/pulse/internal/observability/metrics"
	"github.com/smallbiznis/pulse/internal/orgcontext"
	"github.com/smallbiznis/pulse/internal/period"
	records "github.com/smallbiznis/pulse/internal/records/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	hundred             = decimal.NewFromInt(100)
	profitMarginTarget  = decimal.NewFromInt(20)
	revenueGrowthTarget = decimal.NewFromInt(10)
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Source records.Source
}

// Service implements the aggregation engine over the record source.
type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	source records.Source
}

func NewService(p Params) analytics.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("analytics.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		source: p.Source,
	}
}

func (s *Service) resolveRequest(req analytics.GenerateRequest) (time.Time, period.Type) {
	snapshotDate := req.SnapshotDate
	if snapshotDate.IsZero() {
		snapshotDate = s.clock.Now()
	}
	snapshotDate = midnight(snapshotDate)

	periodType := req.PeriodType
	if periodType == "" {
		periodType = period.TypeMonthly
	}
	return snapshotDate, periodType
}

func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// financials is the shared revenue/expense rollup both the snapshot and the
// KPI paths consume.
type financials struct {
	revenue        decimal.Decimal
	expenses       decimal.Decimal
	netProfit      decimal.Decimal
	outstanding    decimal.Decimal
	reimbursable   decimal.Decimal
	expenseCount   int64
	invoiceCount   int64
	averageInvoice decimal.Decimal
	available      bool
}

func (s *Service) financialTotals(ctx context.Context, orgID snowflake.ID, rng records.Range) (financials, error) {
	fin := financials{
		revenue:        decimal.Zero,
		expenses:       decimal.Zero,
		netProfit:      decimal.Zero,
		outstanding:    decimal.Zero,
		reimbursable:   decimal.Zero,
		averageInvoice: decimal.Zero,
		available:      true,
	}

	invoices, err := s.source.InvoiceTotals(ctx, orgID, rng)
	switch {
	case errors.Is(err, records.ErrSourceUnavailable):
		fin.available = false
	case err != nil:
		return financials{}, err
	default:
		fin.revenue = invoices.TotalAmount
		fin.outstanding = invoices.Outstanding
		fin.invoiceCount = invoices.Count
		fin.averageInvoice = invoices.AverageAmount
	}

	expenses, err := s.source.ExpenseTotals(ctx, orgID, rng)
	switch {
	case errors.Is(err, records.ErrSourceUnavailable):
		fin.available = false
	case err != nil:
		return financials{}, err
	default:
		fin.expenses = expenses.TotalAmount
		fin.reimbursable = expenses.BillableAmount
		fin.expenseCount = expenses.Count
	}

	fin.netProfit = fin.revenue.Sub(fin.expenses)
	return fin, nil
}

func (s *Service) GenerateSnapshot(ctx context.Context, req analytics.GenerateRequest) (analytics.Snapshot, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return analytics.Snapshot{}, analytics.ErrInvalidOrganization
	}

	started := time.Now()
	snapshotDate, periodType := s.resolveRequest(req)
	start, end, err := period.Resolve(snapshotDate, periodType)
	if err != nil {
		return analytics.Snapshot{}, err
	}
	rng := records.Range{Start: start, End: end}

	partial := false

	fin, err := s.financialTotals(ctx, orgID, rng)
	if err != nil {
		return analytics.Snapshot{}, err
	}
	if !fin.available {
		partial = true
	}

	clients := records.ClientCounts{}
	if counts, err := s.source.ClientCounts(ctx, orgID, rng); err != nil {
		if !errors.Is(err, records.ErrSourceUnavailable) {
			return analytics.Snapshot{}, err
		}
		partial = true
	} else {
		clients = counts
	}

	quoteCount := int64(0)
	conversionRate := decimal.Zero
	if quotes, err := s.source.QuoteTotals(ctx, orgID, rng); err != nil {
		if !errors.Is(err, records.ErrSourceUnavailable) {
			return analytics.Snapshot{}, err
		}
		partial = true
	} else {
		quoteCount = quotes.Count
		if quotes.Count > 0 {
			conversionRate = decimal.NewFromInt(quotes.AcceptedCount).
				Div(decimal.NewFromInt(quotes.Count)).
				Mul(hundred)
		}
	}

	now := s.clock.Now()
	var snapshot analytics.Snapshot

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing analytics.Snapshot
		findErr := tx.Where("org_id = ? AND snapshot_date = ? AND period_type = ?",
			orgID, snapshotDate, periodType).
			First(&existing).Error
		if findErr != nil && !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		snapshot = analytics.Snapshot{
			ID:           existing.ID,
			OrgID:        orgID,
			SnapshotDate: snapshotDate,
			PeriodType:   periodType,

			TotalRevenue:         fin.revenue,
			TotalExpenses:        fin.expenses,
			NetProfit:            fin.revenue.Sub(fin.expenses),
			OutstandingAmount:    fin.outstanding,
			ReimbursableExpenses: fin.reimbursable,

			TotalClients: clients.Active,
			NewClients:   clients.New,

			TotalInvoices:       fin.invoiceCount,
			TotalQuotes:         quoteCount,
			QuoteConversionRate: conversionRate,
			AverageInvoiceValue: fin.averageInvoice,

			TotalExpenseCount: fin.expenseCount,
			Partial:           partial,

			CreatedAt: existing.CreatedAt,
			UpdatedAt: now,
		}
		if snapshot.ID == 0 {
			snapshot.ID = s.genID.Generate()
			snapshot.CreatedAt = now
			return tx.Create(&snapshot).Error
		}
		return tx.Save(&snapshot).Error
	})
	if err != nil {
		return analytics.Snapshot{}, err
	}

	metrics.Default().ObserveAggregation("snapshot", time.Since(started))
	if partial {
		metrics.Default().IncAggregationPartial()
		s.log.Warn("snapshot generated with unavailable sources",
			zap.String("org_id", orgID.String()),
			zap.String("period_type", string(periodType)),
		)
	}

	return snapshot, nil
}

func (s *Service) GenerateCategoryAnalytics(ctx context.Context, req analytics.GenerateRequest) (analytics.BreakdownResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return analytics.BreakdownResult{}, analytics.ErrInvalidOrganization
	}

	started := time.Now()
	snapshotDate, periodType := s.resolveRequest(req)
	start, end, err := period.Resolve(snapshotDate, periodType)
	if err != nil {
		return analytics.BreakdownResult{}, err
	}
	rng := records.Range{Start: start, End: end}

	// Each category type is fetched independently so one missing subsystem
	// does not take down the rest of the breakdown. An unavailable dimension
	// is skipped entirely; its stored rows from the last successful run must
	// survive the replace below.
	partial := false
	generated := map[analytics.CategoryType]bool{}
	grouped := map[analytics.CategoryType][]records.CategoryTotal{}
	for _, categoryType := range analytics.CategoryTypes() {
		var totals []records.CategoryTotal
		var fetchErr error
		switch categoryType {
		case analytics.CategoryTypeExpense:
			totals, fetchErr = s.source.ExpenseCategoryTotals(ctx, orgID, rng)
		case analytics.CategoryTypeClient:
			totals, fetchErr = s.source.ClientIndustryRevenue(ctx, orgID, rng)
		case analytics.CategoryTypeService:
			totals, fetchErr = s.source.ServiceRevenue(ctx, orgID, rng)
		}
		if fetchErr != nil {
			if !errors.Is(fetchErr, records.ErrSourceUnavailable) {
				return analytics.BreakdownResult{}, fetchErr
			}
			partial = true
			generated[categoryType] = false
			continue
		}
		generated[categoryType] = true
		grouped[categoryType] = totals
	}

	now := s.clock.Now()
	breakdowns := make([]analytics.CategoryBreakdown, 0)
	replaced := make([]analytics.CategoryType, 0, len(generated))
	for _, categoryType := range analytics.CategoryTypes() {
		if !generated[categoryType] {
			continue
		}
		replaced = append(replaced, categoryType)

		totals := grouped[categoryType]
		if len(totals) == 0 {
			continue
		}

		groupTotal := decimal.Zero
		for _, item := range totals {
			groupTotal = groupTotal.Add(item.Total)
		}

		for _, item := range totals {
			pct := decimal.Zero
			if groupTotal.IsPositive() {
				pct = item.Total.Div(groupTotal).Mul(hundred)
			}
			breakdowns = append(breakdowns, analytics.CategoryBreakdown{
				ID:           s.genID.Generate(),
				OrgID:        orgID,
				SnapshotDate: snapshotDate,
				PeriodType:   periodType,

				CategoryType:    categoryType,
				CategoryName:    truncate(item.Name, 100),
				CategoryDisplay: displayName(categoryType, item.Name),

				TotalAmount:       item.Total,
				TransactionCount:  item.Count,
				PercentageOfTotal: pct,

				CreatedAt: now,
			})
		}
	}

	// The delete is scoped to the dimensions that were fetched, so an
	// unavailable dimension keeps its previous rows.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(replaced) > 0 {
			if err := tx.Where("org_id = ? AND snapshot_date = ? AND period_type = ? AND category_type IN ?",
				orgID, snapshotDate, periodType, replaced).
				Delete(&analytics.CategoryBreakdown{}).Error; err != nil {
				return err
			}
		}
		if len(breakdowns) == 0 {
			return nil
		}
		return tx.Create(&breakdowns).Error
	})
	if err != nil {
		return analytics.BreakdownResult{}, err
	}

	metrics.Default().ObserveAggregation("category_breakdown", time.Since(started))
	if partial {
		metrics.Default().IncAggregationPartial()
		s.log.Warn("category breakdown generated with unavailable dimensions",
			zap.String("org_id", orgID.String()),
			zap.String("period_type", string(periodType)),
		)
	}

	return analytics.BreakdownResult{
		Breakdowns: breakdowns,
		Generated:  generated,
		Partial:    partial,
	}, nil
}

func (s *Service) GenerateClientAnalytics(ctx context.Context, req analytics.GenerateRequest) (analytics.ClientAnalyticsResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return analytics.ClientAnalyticsResult{}, analytics.ErrInvalidOrganization
	}

	started := time.Now()
	snapshotDate, periodType := s.resolveRequest(req)
	start, end, err := period.Resolve(snapshotDate, periodType)
	if err != nil {
		return analytics.ClientAnalyticsResult{}, err
	}
	rng := records.Range{Start: start, End: end}

	clients, err := s.source.Clients(ctx, orgID)
	if err != nil {
		if errors.Is(err, records.ErrSourceUnavailable) {
			// Subsystem absent: abort the replace so the last successful
			// run's rows survive, and report partial.
			return s.clientAnalyticsUnavailable(orgID, periodType), nil
		}
		return analytics.ClientAnalyticsResult{}, err
	}

	now := s.clock.Now()
	entries := make([]analytics.ClientEntry, 0, len(clients))
	for _, client := range clients {
		activity, err := s.source.ClientActivity(ctx, orgID, client.ID, rng)
		if err != nil {
			if errors.Is(err, records.ErrSourceUnavailable) {
				return s.clientAnalyticsUnavailable(orgID, periodType), nil
			}
			return analytics.ClientAnalyticsResult{}, err
		}

		paymentScore := hundred
		if activity.HasPayments {
			paymentScore = PaymentScore(activity.AveragePaymentDays)
		}

		entries = append(entries, analytics.ClientEntry{
			ID:           s.genID.Generate(),
			OrgID:        orgID,
			ClientID:     client.ID,
			ClientName:   client.Name,
			SnapshotDate: snapshotDate,
			PeriodType:   periodType,

			TotalRevenue:      activity.Revenue,
			InvoiceCount:      activity.InvoiceCount,
			QuoteCount:        activity.QuoteCount,
			OutstandingAmount: activity.Outstanding,

			AveragePaymentDays: activity.AveragePaymentDays,
			PaymentScore:       paymentScore,

			IsActive:         client.IsActive,
			FirstInvoiceDate: activity.FirstInvoiceAt,
			LastInvoiceDate:  activity.LastInvoiceAt,

			CreatedAt: now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("org_id = ? AND snapshot_date = ? AND period_type = ?",
			orgID, snapshotDate, periodType).
			Delete(&analytics.ClientEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		return analytics.ClientAnalyticsResult{}, err
	}

	metrics.Default().ObserveAggregation("client_analytics", time.Since(started))
	return analytics.ClientAnalyticsResult{Entries: entries}, nil
}

func (s *Service) clientAnalyticsUnavailable(orgID snowflake.ID, periodType period.Type) analytics.ClientAnalyticsResult {
	metrics.Default().IncAggregationPartial()
	s.log.Warn("client analytics skipped, record source unavailable",
		zap.String("org_id", orgID.String()),
		zap.String("period_type", string(periodType)),
	)
	return analytics.ClientAnalyticsResult{Entries: []analytics.ClientEntry{}, Partial: true}
}

// PaymentScore maps average days late onto a 0-100 score.
func PaymentScore(averageDaysLate int) decimal.Decimal {
	score := hundred.Sub(decimal.NewFromInt(int64(averageDaysLate)).Mul(decimal.NewFromInt(2)))
	if score.IsNegative() {
		return decimal.Zero
	}
	return score
}

func (s *Service) CalculatePerformanceMetrics(ctx context.Context, req analytics.MetricsRequest) (analytics.MetricsResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return analytics.MetricsResult{}, analytics.ErrInvalidOrganization
	}

	started := time.Now()
	periodEnd := req.PeriodEnd
	if periodEnd.IsZero() {
		periodEnd = s.clock.Now()
	}
	periodEnd = midnight(periodEnd)
	periodStart := req.PeriodStart
	if periodStart.IsZero() {
		periodStart = periodEnd.AddDate(0, 0, -30)
	}
	periodStart = midnight(periodStart)

	previousStart, previousEnd := period.Previous(periodStart, periodEnd)
	current := records.Range{Start: periodStart, End: periodEnd}
	previous := records.Range{Start: previousStart, End: previousEnd}

	now := s.clock.Now()
	partial := false
	results := make([]analytics.PerformanceMetric, 0, 5)

	base := analytics.PerformanceMetric{
		OrgID:           orgID,
		CalculationDate: now,
		PeriodStart:     periodStart,
		PeriodEnd:       periodEnd,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	currentFin, err := s.financialTotals(ctx, orgID, current)
	if err != nil {
		return analytics.MetricsResult{}, err
	}
	previousFin, err := s.financialTotals(ctx, orgID, previous)
	if err != nil {
		return analytics.MetricsResult{}, err
	}
	revenue := base
	revenue.ID = s.genID.Generate()
	revenue.MetricName = "Total Revenue"
	revenue.MetricCategory = analytics.MetricCategoryFinancial
	revenue.CurrentValue = currentFin.revenue
	revenue.PreviousValue = previousFin.revenue
	revenue.Unit = analytics.MetricUnitCurrency
	results = append(results, revenue)

	margin := base
	margin.ID = s.genID.Generate()
	margin.MetricName = "Profit Margin"
	margin.MetricCategory = analytics.MetricCategoryFinancial
	margin.CurrentValue = marginOf(currentFin)
	margin.PreviousValue = marginOf(previousFin)
	margin.Unit = analytics.MetricUnitPercentage
	target := profitMarginTarget
	margin.TargetValue = &target
	results = append(results, margin)

	// Every tracked indicator is emitted even when its module is down; the
	// unavailable contribution is zero and the result carries the partial
	// flag. The invoice counts ride along on the financial rollups above.
	if !currentFin.available || !previousFin.available {
		partial = true
	}
	generated := base
	generated.ID = s.genID.Generate()
	generated.MetricName = "Invoices Generated"
	generated.MetricCategory = analytics.MetricCategoryOperational
	generated.CurrentValue = decimal.NewFromInt(currentFin.invoiceCount)
	generated.PreviousValue = decimal.NewFromInt(previousFin.invoiceCount)
	generated.Unit = analytics.MetricUnitNumber
	results = append(results, generated)

	currentClients := records.ClientCounts{}
	previousClients := records.ClientCounts{}
	if counts, err := s.source.ClientCounts(ctx, orgID, current); err != nil {
		if !errors.Is(err, records.ErrSourceUnavailable) {
			return analytics.MetricsResult{}, err
		}
		partial = true
	} else {
		currentClients = counts
	}
	if counts, err := s.source.ClientCounts(ctx, orgID, previous); err != nil {
		if !errors.Is(err, records.ErrSourceUnavailable) {
			return analytics.MetricsResult{}, err
		}
		partial = true
	} else {
		previousClients = counts
	}

	acquisition := base
	acquisition.ID = s.genID.Generate()
	acquisition.MetricName = "New Clients"
	acquisition.MetricCategory = analytics.MetricCategoryClient
	acquisition.CurrentValue = decimal.NewFromInt(currentClients.New)
	acquisition.PreviousValue = decimal.NewFromInt(previousClients.New)
	acquisition.Unit = analytics.MetricUnitNumber
	results = append(results, acquisition)

	growthRate := decimal.Zero
	if previousFin.revenue.IsPositive() {
		growthRate = currentFin.revenue.Sub(previousFin.revenue).
			Div(previousFin.revenue).
			Mul(hundred)
	}
	growth := base
	growth.ID = s.genID.Generate()
	growth.MetricName = "Revenue Growth Rate"
	growth.MetricCategory = analytics.MetricCategoryGrowth
	growth.CurrentValue = growthRate
	growth.PreviousValue = decimal.Zero // growth is already a delta
	growth.Unit = analytics.MetricUnitPercentage
	growthTarget := revenueGrowthTarget
	growth.TargetValue = &growthTarget
	results = append(results, growth)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("org_id = ? AND period_start = ? AND period_end = ?",
			orgID, periodStart, periodEnd).
			Delete(&analytics.PerformanceMetric{}).Error; err != nil {
			return err
		}
		return tx.Create(&results).Error
	})
	if err != nil {
		return analytics.MetricsResult{}, err
	}

	metrics.Default().ObserveAggregation("performance_metrics", time.Since(started))
	if partial {
		metrics.Default().IncAggregationPartial()
		s.log.Warn("performance metrics calculated with unavailable sources",
			zap.String("org_id", orgID.String()),
		)
	}

	return analytics.MetricsResult{Metrics: results, Partial: partial}, nil
}

func marginOf(fin financials) decimal.Decimal {
	if !fin.revenue.IsPositive() {
		return decimal.Zero
	}
	return fin.netProfit.Div(fin.revenue).Mul(hundred)
}

func (s *Service) GetSnapshot(ctx context.Context, snapshotDate time.Time, periodType period.Type) (analytics.Snapshot, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return analytics.Snapshot{}, analytics.ErrInvalidOrganization
	}

	var snapshot analytics.Snapshot
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND snapshot_date = ? AND period_type = ?",
			orgID, midnight(snapshotDate), periodType).
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return analytics.Snapshot{}, analytics.ErrSnapshotNotFound
	}
	if err != nil {
		return analytics.Snapshot{}, err
	}
	return snapshot, nil
}

func (s *Service) ListBreakdowns(ctx context.Context, snapshotDate time.Time, periodType period.Type) ([]analytics.CategoryBreakdown, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, analytics.ErrInvalidOrganization
	}

	var breakdowns []analytics.CategoryBreakdown
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND snapshot_date = ? AND period_type = ?",
			orgID, midnight(snapshotDate), periodType).
		Order("category_type ASC, total_amount DESC").
		Find(&breakdowns).Error
	if err != nil {
		return nil, err
	}
	return breakdowns, nil
}

func (s *Service) ListClientEntries(ctx context.Context, snapshotDate time.Time, periodType period.Type) ([]analytics.ClientEntry, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, analytics.ErrInvalidOrganization
	}

	var entries []analytics.ClientEntry
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND snapshot_date = ? AND period_type = ?",
			orgID, midnight(snapshotDate), periodType).
		Order("total_revenue DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) ListMetrics(ctx context.Context, periodStart, periodEnd time.Time) ([]analytics.PerformanceMetric, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, analytics.ErrInvalidOrganization
	}

	var results []analytics.PerformanceMetric
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND period_start = ? AND period_end = ?",
			orgID, midnight(periodStart), midnight(periodEnd)).
		Order("metric_category ASC, metric_name ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) Refresh(ctx context.Context, req analytics.GenerateRequest) (analytics.RefreshResult, error) {
	started := time.Now()

	snapshot, err := s.GenerateSnapshot(ctx, req)
	if err != nil {
		return analytics.RefreshResult{}, err
	}
	breakdowns, err := s.GenerateCategoryAnalytics(ctx, req)
	if err != nil {
		return analytics.RefreshResult{}, err
	}
	clients, err := s.GenerateClientAnalytics(ctx, req)
	if err != nil {
		return analytics.RefreshResult{}, err
	}
	kpis, err := s.CalculatePerformanceMetrics(ctx, analytics.MetricsRequest{})
	if err != nil {
		return analytics.RefreshResult{}, err
	}

	return analytics.RefreshResult{
		SnapshotID:     snapshot.ID,
		BreakdownCount: len(breakdowns.Breakdowns),
		ClientCount:    len(clients.Entries),
		MetricCount:    len(kpis.Metrics),
		Partial:        snapshot.Partial || breakdowns.Partial || clients.Partial || kpis.Partial,
		Elapsed:        time.Since(started),
	}, nil
}

func (s *Service) StaleOrgs(ctx context.Context, olderThan time.Time, limit int) ([]analytics.StaleOrg, error) {
	if limit <= 0 {
		limit = 25
	}

	type staleRow struct {
		OrgID        snowflake.ID `gorm:"column:org_id"`
		LastSnapshot *time.Time   `gorm:"column:last_snapshot"`
	}
	var rows []staleRow
	query := `
		SELECT c.org_id AS org_id, MAX(s.updated_at) AS last_snapshot
		FROM clients c
		LEFT JOIN analytics_snapshots s ON s.org_id = c.org_id AND s.period_type = ?
		GROUP BY c.org_id
		HAVING MAX(s.updated_at) IS NULL OR MAX(s.updated_at) < ?
		LIMIT ?`
	err := s.db.WithContext(ctx).
		Raw(query, period.TypeMonthly, olderThan, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stale := make([]analytics.StaleOrg, 0, len(rows))
	for _, row := range rows {
		stale = append(stale, analytics.StaleOrg{OrgID: row.OrgID, LastSnapshot: row.LastSnapshot})
	}
	return stale, nil
}
