package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	analytics "github.com/smallbiznis/pulse/internal/analytics/domain"
	"github.com/smallbiznis/pulse/internal/clock"
	"github.com/smallbiznis/pulse/internal/orgcontext"
	"github.com/smallbiznis/pulse/internal/period"
	records "github.com/smallbiznis/pulse/internal/records/domain"
	recordsvc "github.com/smallbiznis/pulse/internal/records/service"
	"github.com/smallbiznis/pulse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type engineFixture struct {
	conn   *gorm.DB
	engine analytics.Service
	clock  *clock.FakeClock
	org    snowflake.ID
	ctx    context.Context
}

func newEngine(t *testing.T, org snowflake.ID) engineFixture {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(
		&records.Client{},
		&records.Invoice{},
		&records.InvoiceLineItem{},
		&records.Quote{},
		&records.Expense{},
		&analytics.Snapshot{},
		&analytics.CategoryBreakdown{},
		&analytics.ClientEntry{},
		&analytics.PerformanceMetric{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(day(2024, 6, 15))

	engine := NewService(Params{
		DB:     conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Source: recordsvc.NewSource(recordsvc.Params{DB: conn, Log: zap.NewNop()}),
	})

	return engineFixture{
		conn:   conn,
		engine: engine,
		clock:  fake,
		org:    org,
		ctx:    orgcontext.WithOrgID(context.Background(), org),
	}
}

func (f engineFixture) seedJune(t *testing.T) {
	t.Helper()

	clients := []records.Client{
		{ID: f.org*100 + 1, OrgID: f.org, Name: "Acme", Industry: "manufacturing", IsActive: true, CreatedAt: day(2024, 1, 10)},
		{ID: f.org*100 + 2, OrgID: f.org, Name: "Globex", Industry: "technology", IsActive: true, CreatedAt: day(2024, 6, 5)},
	}
	if err := f.conn.Create(&clients).Error; err != nil {
		t.Fatalf("seed clients: %v", err)
	}

	due := day(2024, 6, 10)
	paid := day(2024, 6, 14) // 4 days late
	invoices := []records.Invoice{
		{ID: f.org*100 + 11, OrgID: f.org, ClientID: clients[0].ID, Status: records.InvoiceStatusPaid, TotalAmount: decimal.NewFromInt(6000), IssuedAt: day(2024, 6, 3), DueDate: &due, PaidAt: &paid},
		{ID: f.org*100 + 12, OrgID: f.org, ClientID: clients[0].ID, Status: records.InvoiceStatusSent, TotalAmount: decimal.NewFromInt(2500), IssuedAt: day(2024, 6, 18)},
		{ID: f.org*100 + 13, OrgID: f.org, ClientID: clients[1].ID, Status: records.InvoiceStatusOverdue, TotalAmount: decimal.NewFromInt(1500), IssuedAt: day(2024, 6, 25)},
	}
	if err := f.conn.Create(&invoices).Error; err != nil {
		t.Fatalf("seed invoices: %v", err)
	}

	items := []records.InvoiceLineItem{
		{ID: f.org*100 + 21, OrgID: f.org, InvoiceID: invoices[0].ID, Description: "Consulting", Quantity: decimal.NewFromInt(30), UnitPrice: decimal.NewFromInt(200)},
		{ID: f.org*100 + 22, OrgID: f.org, InvoiceID: invoices[1].ID, Description: "Hosting", Quantity: decimal.NewFromInt(25), UnitPrice: decimal.NewFromInt(100)},
		{ID: f.org*100 + 23, OrgID: f.org, InvoiceID: invoices[2].ID, Description: "Hosting", Quantity: decimal.NewFromInt(15), UnitPrice: decimal.NewFromInt(100)},
	}
	if err := f.conn.Create(&items).Error; err != nil {
		t.Fatalf("seed line items: %v", err)
	}

	quotes := []records.Quote{
		{ID: f.org*100 + 31, OrgID: f.org, ClientID: clients[0].ID, Status: records.QuoteStatusAccepted, TotalAmount: decimal.NewFromInt(6000), IssuedAt: day(2024, 6, 1)},
		{ID: f.org*100 + 32, OrgID: f.org, ClientID: clients[1].ID, Status: records.QuoteStatusSent, TotalAmount: decimal.NewFromInt(4000), IssuedAt: day(2024, 6, 2)},
	}
	if err := f.conn.Create(&quotes).Error; err != nil {
		t.Fatalf("seed quotes: %v", err)
	}

	expenses := []records.Expense{
		{ID: f.org*100 + 41, OrgID: f.org, Category: "office_rent", Amount: decimal.NewFromInt(4000), Date: day(2024, 6, 1)},
		{ID: f.org*100 + 42, OrgID: f.org, Category: "software", Amount: decimal.NewFromInt(2000), Date: day(2024, 6, 10)},
		{ID: f.org*100 + 43, OrgID: f.org, Category: "travel", Amount: decimal.NewFromInt(1000), IsBillable: true, Date: day(2024, 6, 20)},
	}
	if err := f.conn.Create(&expenses).Error; err != nil {
		t.Fatalf("seed expenses: %v", err)
	}
}

func TestGenerateSnapshotMonthly(t *testing.T) {
	f := newEngine(t, 8001)
	f.seedJune(t)

	snapshot, err := f.engine.GenerateSnapshot(f.ctx, analytics.GenerateRequest{
		SnapshotDate: day(2024, 6, 15),
		PeriodType:   period.TypeMonthly,
	})
	if err != nil {
		t.Fatalf("GenerateSnapshot: %v", err)
	}

	if !snapshot.TotalRevenue.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("revenue = %s, want 10000", snapshot.TotalRevenue)
	}
	if !snapshot.TotalExpenses.Equal(decimal.NewFromInt(7000)) {
		t.Fatalf("expenses = %s, want 7000", snapshot.TotalExpenses)
	}
	if !snapshot.NetProfit.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("net profit = %s, want 3000", snapshot.NetProfit)
	}
	if !snapshot.ProfitMargin().Equal(decimal.NewFromInt(30)) {
		t.Fatalf("profit margin = %s, want 30", snapshot.ProfitMargin())
	}
	if !snapshot.OutstandingAmount.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("outstanding = %s, want 4000", snapshot.OutstandingAmount)
	}
	if !snapshot.ReimbursableExpenses.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("reimbursable = %s, want 1000", snapshot.ReimbursableExpenses)
	}
	if snapshot.TotalClients != 2 || snapshot.NewClients != 1 {
		t.Fatalf("clients = %d/%d, want 2/1", snapshot.TotalClients, snapshot.NewClients)
	}
	if snapshot.TotalInvoices != 3 || snapshot.TotalQuotes != 2 {
		t.Fatalf("counts = %d invoices / %d quotes", snapshot.TotalInvoices, snapshot.TotalQuotes)
	}
	if !snapshot.QuoteConversionRate.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("conversion = %s, want 50", snapshot.QuoteConversionRate)
	}
	if snapshot.Partial {
		t.Fatalf("unexpected partial flag")
	}
}

func TestGenerateSnapshotIdempotent(t *testing.T) {
	f := newEngine(t, 8002)
	f.seedJune(t)

	req := analytics.GenerateRequest{SnapshotDate: day(2024, 6, 15), PeriodType: period.TypeMonthly}
	first, err := f.engine.GenerateSnapshot(f.ctx, req)
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}

	// New revenue lands, regeneration must update the same row.
	extra := records.Invoice{ID: f.org*100 + 99, OrgID: f.org, ClientID: f.org*100 + 1, Status: records.InvoiceStatusPaid, TotalAmount: decimal.NewFromInt(2000), IssuedAt: day(2024, 6, 28)}
	if err := f.conn.Create(&extra).Error; err != nil {
		t.Fatalf("seed extra invoice: %v", err)
	}

	second, err := f.engine.GenerateSnapshot(f.ctx, req)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("snapshot replaced instead of updated: %d != %d", second.ID, first.ID)
	}
	if !second.TotalRevenue.Equal(decimal.NewFromInt(12000)) {
		t.Fatalf("revenue = %s, want 12000", second.TotalRevenue)
	}
	if !second.NetProfit.Equal(second.TotalRevenue.Sub(second.TotalExpenses)) {
		t.Fatalf("net profit drifted: %s", second.NetProfit)
	}

	var count int64
	if err := f.conn.Model(&analytics.Snapshot{}).Where("org_id = ?", f.org).Count(&count).Error; err != nil {
		t.Fatalf("count snapshots: %v", err)
	}
	if count != 1 {
		t.Fatalf("snapshot rows = %d, want 1", count)
	}
}

func TestGenerateCategoryAnalyticsPercentages(t *testing.T) {
	f := newEngine(t, 8003)
	f.seedJune(t)

	req := analytics.GenerateRequest{SnapshotDate: day(2024, 6, 15), PeriodType: period.TypeMonthly}
	result, err := f.engine.GenerateCategoryAnalytics(f.ctx, req)
	if err != nil {
		t.Fatalf("GenerateCategoryAnalytics: %v", err)
	}
	if result.Partial {
		t.Fatalf("unexpected partial flag")
	}
	breakdowns := result.Breakdowns
	if len(breakdowns) == 0 {
		t.Fatalf("no breakdowns")
	}

	sums := map[analytics.CategoryType]decimal.Decimal{}
	for _, b := range breakdowns {
		sums[b.CategoryType] = sums[b.CategoryType].Add(b.PercentageOfTotal)
	}
	tolerance := decimal.NewFromFloat(0.5)
	for categoryType, sum := range sums {
		if sum.Sub(decimal.NewFromInt(100)).Abs().GreaterThan(tolerance) {
			t.Fatalf("%s percentages sum to %s", categoryType, sum)
		}
	}

	// Expense display names are humanized.
	for _, b := range breakdowns {
		if b.CategoryType == analytics.CategoryTypeExpense && b.CategoryName == "office_rent" {
			if b.CategoryDisplay != "Office Rent" {
				t.Fatalf("display = %q, want Office Rent", b.CategoryDisplay)
			}
		}
	}

	// Regeneration replaces, never appends.
	again, err := f.engine.GenerateCategoryAnalytics(f.ctx, req)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	var count int64
	if err := f.conn.Model(&analytics.CategoryBreakdown{}).Where("org_id = ?", f.org).Count(&count).Error; err != nil {
		t.Fatalf("count breakdowns: %v", err)
	}
	if int(count) != len(again.Breakdowns) {
		t.Fatalf("rows = %d, returned = %d", count, len(again.Breakdowns))
	}
}

func TestGenerateClientAnalyticsPaymentScore(t *testing.T) {
	f := newEngine(t, 8004)
	f.seedJune(t)

	result, err := f.engine.GenerateClientAnalytics(f.ctx, analytics.GenerateRequest{
		SnapshotDate: day(2024, 6, 15),
		PeriodType:   period.TypeMonthly,
	})
	if err != nil {
		t.Fatalf("GenerateClientAnalytics: %v", err)
	}
	entries := result.Entries
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	byName := map[string]analytics.ClientEntry{}
	for _, e := range entries {
		byName[e.ClientName] = e
	}

	acme := byName["Acme"]
	// One paid invoice 4 days late: 100 - 2*4 = 92.
	if !acme.PaymentScore.Equal(decimal.NewFromInt(92)) {
		t.Fatalf("acme payment score = %s, want 92", acme.PaymentScore)
	}
	if acme.AveragePaymentDays != 4 {
		t.Fatalf("acme avg payment days = %d, want 4", acme.AveragePaymentDays)
	}
	if !acme.TotalRevenue.Equal(decimal.NewFromInt(8500)) {
		t.Fatalf("acme revenue = %s, want 8500", acme.TotalRevenue)
	}

	globex := byName["Globex"]
	// No paid invoices: default score.
	if !globex.PaymentScore.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("globex payment score = %s, want 100", globex.PaymentScore)
	}
	if !globex.OutstandingAmount.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("globex outstanding = %s, want 1500", globex.OutstandingAmount)
	}
}

func TestPaymentScoreClampsAtZero(t *testing.T) {
	if got := PaymentScore(4); !got.Equal(decimal.NewFromInt(92)) {
		t.Fatalf("PaymentScore(4) = %s, want 92", got)
	}
	if got := PaymentScore(60); !got.Equal(decimal.Zero) {
		t.Fatalf("PaymentScore(60) = %s, want 0", got)
	}
	if got := PaymentScore(0); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("PaymentScore(0) = %s, want 100", got)
	}
}

func TestCalculatePerformanceMetrics(t *testing.T) {
	f := newEngine(t, 8005)
	f.seedJune(t)

	// Previous window revenue for growth comparison.
	prev := records.Invoice{ID: f.org*100 + 98, OrgID: f.org, ClientID: f.org*100 + 1, Status: records.InvoiceStatusPaid, TotalAmount: decimal.NewFromInt(5000), IssuedAt: day(2024, 5, 10)}
	if err := f.conn.Create(&prev).Error; err != nil {
		t.Fatalf("seed previous invoice: %v", err)
	}

	result, err := f.engine.CalculatePerformanceMetrics(f.ctx, analytics.MetricsRequest{
		PeriodStart: day(2024, 6, 1),
		PeriodEnd:   day(2024, 6, 30),
	})
	if err != nil {
		t.Fatalf("CalculatePerformanceMetrics: %v", err)
	}
	if result.Partial {
		t.Fatalf("unexpected partial flag")
	}
	results := result.Metrics
	if len(results) != 5 {
		t.Fatalf("metrics = %d, want 5", len(results))
	}

	byName := map[string]analytics.PerformanceMetric{}
	for _, m := range results {
		byName[m.MetricName] = m
	}

	revenue := byName["Total Revenue"]
	if !revenue.CurrentValue.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("revenue current = %s, want 10000", revenue.CurrentValue)
	}
	if !revenue.PreviousValue.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("revenue previous = %s, want 5000", revenue.PreviousValue)
	}
	if !revenue.ChangePercentage().Equal(decimal.NewFromInt(100)) {
		t.Fatalf("revenue change = %s, want 100", revenue.ChangePercentage())
	}

	margin := byName["Profit Margin"]
	if margin.TargetValue == nil || !margin.TargetValue.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("margin target = %v, want 20", margin.TargetValue)
	}
	if achieved, ok := margin.TargetAchievement(); !ok || !achieved.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("margin achievement = %s/%v, want 150", achieved, ok)
	}

	growth := byName["Revenue Growth Rate"]
	if !growth.CurrentValue.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("growth = %s, want 100", growth.CurrentValue)
	}
	if growth.TargetValue == nil || !growth.TargetValue.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("growth target = %v, want 10", growth.TargetValue)
	}

	if byName["Invoices Generated"].MetricCategory != analytics.MetricCategoryOperational {
		t.Fatalf("invoices category = %s", byName["Invoices Generated"].MetricCategory)
	}
	if byName["New Clients"].MetricCategory != analytics.MetricCategoryClient {
		t.Fatalf("new clients category = %s", byName["New Clients"].MetricCategory)
	}
}

func TestPartialAggregationWithNopSource(t *testing.T) {
	f := newEngine(t, 8006)

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	engine := NewService(Params{
		DB:     f.conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  f.clock,
		Source: recordsvc.NewNopSource(),
	})

	snapshot, err := engine.GenerateSnapshot(f.ctx, analytics.GenerateRequest{
		SnapshotDate: day(2024, 6, 15),
		PeriodType:   period.TypeMonthly,
	})
	if err != nil {
		t.Fatalf("GenerateSnapshot: %v", err)
	}
	if !snapshot.Partial {
		t.Fatalf("expected partial snapshot")
	}
	if !snapshot.TotalRevenue.Equal(decimal.Zero) || !snapshot.NetProfit.Equal(decimal.Zero) {
		t.Fatalf("expected zeroed contributions, got revenue=%s profit=%s",
			snapshot.TotalRevenue, snapshot.NetProfit)
	}

	clients, err := engine.GenerateClientAnalytics(f.ctx, analytics.GenerateRequest{
		SnapshotDate: day(2024, 6, 15),
		PeriodType:   period.TypeMonthly,
	})
	if err != nil {
		t.Fatalf("GenerateClientAnalytics: %v", err)
	}
	if len(clients.Entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(clients.Entries))
	}
	if !clients.Partial {
		t.Fatalf("expected partial client analytics")
	}
}

// flakySource fails selected queries to simulate one subsystem being down
// while the rest keep answering.
type flakySource struct {
	records.Source
	expenseCategoriesDown bool
	invoicesDown          bool
}

func (s flakySource) ExpenseCategoryTotals(ctx context.Context, orgID snowflake.ID, rng records.Range) ([]records.CategoryTotal, error) {
	if s.expenseCategoriesDown {
		return nil, records.ErrSourceUnavailable
	}
	return s.Source.ExpenseCategoryTotals(ctx, orgID, rng)
}

func (s flakySource) InvoiceTotals(ctx context.Context, orgID snowflake.ID, rng records.Range) (records.InvoiceTotals, error) {
	if s.invoicesDown {
		return records.InvoiceTotals{}, records.ErrSourceUnavailable
	}
	return s.Source.InvoiceTotals(ctx, orgID, rng)
}

func (f engineFixture) engineWith(t *testing.T, source records.Source) analytics.Service {
	t.Helper()
	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return NewService(Params{
		DB:     f.conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  f.clock,
		Source: source,
	})
}

func TestGenerateCategoryAnalyticsKeepsUnavailableDimension(t *testing.T) {
	f := newEngine(t, 8010)
	f.seedJune(t)

	req := analytics.GenerateRequest{SnapshotDate: day(2024, 6, 15), PeriodType: period.TypeMonthly}
	if _, err := f.engine.GenerateCategoryAnalytics(f.ctx, req); err != nil {
		t.Fatalf("healthy generate: %v", err)
	}

	expenseRows := func() int64 {
		var count int64
		if err := f.conn.Model(&analytics.CategoryBreakdown{}).
			Where("org_id = ? AND category_type = ?", f.org, analytics.CategoryTypeExpense).
			Count(&count).Error; err != nil {
			t.Fatalf("count expense breakdowns: %v", err)
		}
		return count
	}
	before := expenseRows()
	if before == 0 {
		t.Fatalf("healthy run stored no expense breakdowns")
	}

	degraded := f.engineWith(t, flakySource{
		Source:                recordsvc.NewSource(recordsvc.Params{DB: f.conn, Log: zap.NewNop()}),
		expenseCategoriesDown: true,
	})
	result, err := degraded.GenerateCategoryAnalytics(f.ctx, req)
	if err != nil {
		t.Fatalf("degraded generate: %v", err)
	}

	if !result.Partial {
		t.Fatalf("expected partial result")
	}
	if result.Generated[analytics.CategoryTypeExpense] {
		t.Fatalf("expense dimension reported as generated")
	}
	if !result.Generated[analytics.CategoryTypeClient] || !result.Generated[analytics.CategoryTypeService] {
		t.Fatalf("reachable dimensions not reported: %v", result.Generated)
	}
	for _, b := range result.Breakdowns {
		if b.CategoryType == analytics.CategoryTypeExpense {
			t.Fatalf("degraded run returned an expense breakdown")
		}
	}

	// The unavailable dimension's previous rows must survive the replace.
	if after := expenseRows(); after != before {
		t.Fatalf("expense rows = %d after degraded run, want %d", after, before)
	}
}

func TestCalculatePerformanceMetricsZeroesUnavailableInvoices(t *testing.T) {
	f := newEngine(t, 8011)
	f.seedJune(t)

	degraded := f.engineWith(t, flakySource{
		Source:       recordsvc.NewSource(recordsvc.Params{DB: f.conn, Log: zap.NewNop()}),
		invoicesDown: true,
	})
	result, err := degraded.CalculatePerformanceMetrics(f.ctx, analytics.MetricsRequest{
		PeriodStart: day(2024, 6, 1),
		PeriodEnd:   day(2024, 6, 30),
	})
	if err != nil {
		t.Fatalf("CalculatePerformanceMetrics: %v", err)
	}

	if !result.Partial {
		t.Fatalf("expected partial result")
	}
	if len(result.Metrics) != 5 {
		t.Fatalf("metrics = %d, want all 5 indicators", len(result.Metrics))
	}

	byName := map[string]analytics.PerformanceMetric{}
	for _, m := range result.Metrics {
		byName[m.MetricName] = m
	}
	generated, ok := byName["Invoices Generated"]
	if !ok {
		t.Fatalf("Invoices Generated missing from %v", byName)
	}
	if !generated.CurrentValue.Equal(decimal.Zero) || !generated.PreviousValue.Equal(decimal.Zero) {
		t.Fatalf("invoice metric = %s/%s, want zeros", generated.CurrentValue, generated.PreviousValue)
	}
}

func TestRefreshReportsPartial(t *testing.T) {
	f := newEngine(t, 8012)
	f.seedJune(t)

	degraded := f.engineWith(t, flakySource{
		Source:                recordsvc.NewSource(recordsvc.Params{DB: f.conn, Log: zap.NewNop()}),
		expenseCategoriesDown: true,
	})
	result, err := degraded.Refresh(f.ctx, analytics.GenerateRequest{
		SnapshotDate: day(2024, 6, 15),
		PeriodType:   period.TypeMonthly,
	})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !result.Partial {
		t.Fatalf("expected partial refresh result")
	}
}

func TestGenerateSnapshotRequiresOrg(t *testing.T) {
	f := newEngine(t, 8007)

	_, err := f.engine.GenerateSnapshot(context.Background(), analytics.GenerateRequest{})
	if err != analytics.ErrInvalidOrganization {
		t.Fatalf("err = %v, want ErrInvalidOrganization", err)
	}
}

func TestRefreshRegeneratesEverything(t *testing.T) {
	f := newEngine(t, 8008)
	f.seedJune(t)

	result, err := f.engine.Refresh(f.ctx, analytics.GenerateRequest{
		SnapshotDate: day(2024, 6, 15),
		PeriodType:   period.TypeMonthly,
	})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if result.SnapshotID == 0 {
		t.Fatalf("missing snapshot id")
	}
	if result.BreakdownCount == 0 || result.ClientCount != 2 || result.MetricCount != 5 {
		t.Fatalf("unexpected counts: %+v", result)
	}

	snapshot, err := f.engine.GetSnapshot(f.ctx, day(2024, 6, 15), period.TypeMonthly)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snapshot.ID != result.SnapshotID {
		t.Fatalf("snapshot id mismatch")
	}
}

func TestStaleOrgs(t *testing.T) {
	f := newEngine(t, 8009)
	f.seedJune(t)

	// No snapshot yet: the org counts as stale.
	stale, err := f.engine.StaleOrgs(context.Background(), f.clock.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("StaleOrgs: %v", err)
	}
	found := false
	for _, s := range stale {
		if s.OrgID == f.org {
			found = true
			if s.LastSnapshot != nil {
				t.Fatalf("expected nil last snapshot, got %v", s.LastSnapshot)
			}
		}
	}
	if !found {
		t.Fatalf("org %d missing from stale set", f.org)
	}

	// Freshly generated snapshot clears the staleness.
	if _, err := f.engine.GenerateSnapshot(f.ctx, analytics.GenerateRequest{
		SnapshotDate: day(2024, 6, 15),
		PeriodType:   period.TypeMonthly,
	}); err != nil {
		t.Fatalf("GenerateSnapshot: %v", err)
	}
	stale, err = f.engine.StaleOrgs(context.Background(), f.clock.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("StaleOrgs after refresh: %v", err)
	}
	for _, s := range stale {
		if s.OrgID == f.org {
			t.Fatalf("org still stale after snapshot")
		}
	}
}
