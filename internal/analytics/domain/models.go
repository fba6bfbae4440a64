// Package domain contains the persisted analytics models and the
// aggregation service contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pulse/internal/period"
)

// CategoryType identifies a breakdown dimension.
type CategoryType string

const (
	CategoryTypeExpense CategoryType = "expense"
	CategoryTypeClient  CategoryType = "client"
	CategoryTypeService CategoryType = "service"
)

// CategoryTypes returns all breakdown dimensions in generation order.
func CategoryTypes() []CategoryType {
	return []CategoryType{CategoryTypeExpense, CategoryTypeClient, CategoryTypeService}
}

// MetricUnit identifies how a performance metric value is expressed.
type MetricUnit string

const (
	MetricUnitCurrency   MetricUnit = "currency"
	MetricUnitPercentage MetricUnit = "percentage"
	MetricUnitNumber     MetricUnit = "number"
	MetricUnitDays       MetricUnit = "days"
)

// MetricCategory groups performance metrics for display.
type MetricCategory string

const (
	MetricCategoryFinancial   MetricCategory = "financial"
	MetricCategoryOperational MetricCategory = "operational"
	MetricCategoryClient      MetricCategory = "client"
	MetricCategoryGrowth      MetricCategory = "growth"
)

// Snapshot is the per-period rollup of a tenant's business activity.
// NetProfit is recomputed on every write; ProfitMargin is derived, never
// stored.
type Snapshot struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;uniqueIndex:ux_snapshot_org_date_period" json:"org_id"`
	SnapshotDate time.Time    `gorm:"not null;uniqueIndex:ux_snapshot_org_date_period;index" json:"snapshot_date"`
	PeriodType   period.Type  `gorm:"type:text;not null;uniqueIndex:ux_snapshot_org_date_period" json:"period_type"`

	TotalRevenue         decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"total_revenue"`
	TotalExpenses        decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"total_expenses"`
	NetProfit            decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"net_profit"`
	OutstandingAmount    decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"outstanding_amount"`
	ReimbursableExpenses decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"reimbursable_expenses"`

	TotalClients int64 `gorm:"not null;default:0" json:"total_clients"`
	NewClients   int64 `gorm:"not null;default:0" json:"new_clients"`

	TotalInvoices       int64           `gorm:"not null;default:0" json:"total_invoices"`
	TotalQuotes         int64           `gorm:"not null;default:0" json:"total_quotes"`
	QuoteConversionRate decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"quote_conversion_rate"`
	AverageInvoiceValue decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"average_invoice_value"`

	TotalExpenseCount int64 `gorm:"not null;default:0" json:"total_expense_count"`

	Partial bool `gorm:"not null;default:false" json:"partial"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Snapshot) TableName() string { return "analytics_snapshots" }

// ProfitMargin returns net profit as a percentage of revenue.
func (s Snapshot) ProfitMargin() decimal.Decimal {
	if !s.TotalRevenue.IsPositive() {
		return decimal.Zero
	}
	return s.NetProfit.Div(s.TotalRevenue).Mul(decimal.NewFromInt(100))
}

// ExpenseRatio returns expenses as a percentage of revenue.
func (s Snapshot) ExpenseRatio() decimal.Decimal {
	if !s.TotalRevenue.IsPositive() {
		return decimal.Zero
	}
	return s.TotalExpenses.Div(s.TotalRevenue).Mul(decimal.NewFromInt(100))
}

// CategoryBreakdown is one category's contribution inside a period.
// Percentages within one (org, date, period, category type) group sum to
// roughly 100.
type CategoryBreakdown struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;index:ix_breakdown_key" json:"org_id"`
	SnapshotDate time.Time    `gorm:"not null;index:ix_breakdown_key" json:"snapshot_date"`
	PeriodType   period.Type  `gorm:"type:text;not null;index:ix_breakdown_key" json:"period_type"`

	CategoryType    CategoryType `gorm:"type:text;not null;index:ix_breakdown_key" json:"category_type"`
	CategoryName    string       `gorm:"type:text;not null" json:"category_name"`
	CategoryDisplay string       `gorm:"type:text;not null" json:"category_display"`

	TotalAmount       decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"total_amount"`
	TransactionCount  int64           `gorm:"not null;default:0" json:"transaction_count"`
	PercentageOfTotal decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"percentage_of_total"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (CategoryBreakdown) TableName() string { return "analytics_category_breakdowns" }

// ClientEntry is one client's analytics inside a period.
type ClientEntry struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;index:ix_client_entry_key" json:"org_id"`
	ClientID     snowflake.ID `gorm:"not null;index:ix_client_entry_key" json:"client_id"`
	ClientName   string       `gorm:"type:text;not null" json:"client_name"`
	SnapshotDate time.Time    `gorm:"not null;index:ix_client_entry_key" json:"snapshot_date"`
	PeriodType   period.Type  `gorm:"type:text;not null;index:ix_client_entry_key" json:"period_type"`

	TotalRevenue      decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"total_revenue"`
	InvoiceCount      int64           `gorm:"not null;default:0" json:"invoice_count"`
	QuoteCount        int64           `gorm:"not null;default:0" json:"quote_count"`
	OutstandingAmount decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"outstanding_amount"`

	AveragePaymentDays int             `gorm:"not null;default:0" json:"average_payment_days"`
	PaymentScore       decimal.Decimal `gorm:"type:numeric;not null;default:100" json:"payment_score"`

	IsActive         bool       `gorm:"not null;default:true" json:"is_active"`
	FirstInvoiceDate *time.Time `gorm:"" json:"first_invoice_date,omitempty"`
	LastInvoiceDate  *time.Time `gorm:"" json:"last_invoice_date,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ClientEntry) TableName() string { return "analytics_client_entries" }

// AverageInvoiceValue returns revenue per invoice within the period.
func (e ClientEntry) AverageInvoiceValue() decimal.Decimal {
	if e.InvoiceCount <= 0 {
		return decimal.Zero
	}
	return e.TotalRevenue.Div(decimal.NewFromInt(e.InvoiceCount))
}

// LifetimeValue projects revenue over a two-year horizon from the client's
// invoicing cadence. Falls back to period revenue when there is no history
// to extrapolate from.
func (e ClientEntry) LifetimeValue() decimal.Decimal {
	if e.FirstInvoiceDate == nil || e.LastInvoiceDate == nil {
		return e.TotalRevenue
	}
	daysActive := int64(e.LastInvoiceDate.Sub(*e.FirstInvoiceDate).Hours() / 24)
	if daysActive <= 0 {
		return e.TotalRevenue
	}
	monthlyRevenue := e.TotalRevenue.Div(decimal.NewFromInt(daysActive).Div(decimal.NewFromInt(30)))
	return monthlyRevenue.Mul(decimal.NewFromInt(24))
}

// PerformanceMetric is one KPI measured over a period, with the preceding
// period's value for comparison.
type PerformanceMetric struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID snowflake.ID `gorm:"not null;uniqueIndex:ux_metric_org_name_period" json:"org_id"`

	MetricName     string         `gorm:"type:text;not null;uniqueIndex:ux_metric_org_name_period" json:"metric_name"`
	MetricCategory MetricCategory `gorm:"type:text;not null;index" json:"metric_category"`

	CurrentValue  decimal.Decimal  `gorm:"type:numeric;not null;default:0" json:"current_value"`
	PreviousValue decimal.Decimal  `gorm:"type:numeric;not null;default:0" json:"previous_value"`
	TargetValue   *decimal.Decimal `gorm:"type:numeric" json:"target_value,omitempty"`

	Unit            MetricUnit `gorm:"type:text;not null;default:'number'" json:"unit"`
	CalculationDate time.Time  `gorm:"not null" json:"calculation_date"`
	PeriodStart     time.Time  `gorm:"not null;uniqueIndex:ux_metric_org_name_period" json:"period_start"`
	PeriodEnd       time.Time  `gorm:"not null;uniqueIndex:ux_metric_org_name_period" json:"period_end"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PerformanceMetric) TableName() string { return "analytics_performance_metrics" }

// ChangePercentage returns the relative change from the previous value.
func (m PerformanceMetric) ChangePercentage() decimal.Decimal {
	if !m.PreviousValue.IsPositive() {
		return decimal.Zero
	}
	return m.CurrentValue.Sub(m.PreviousValue).Div(m.PreviousValue).Mul(decimal.NewFromInt(100))
}

// IsImproving reports whether the metric moved up period over period.
func (m PerformanceMetric) IsImproving() bool {
	return m.CurrentValue.GreaterThan(m.PreviousValue)
}

// TargetAchievement returns the percentage of target achieved, or false
// when no positive target is set.
func (m PerformanceMetric) TargetAchievement() (decimal.Decimal, bool) {
	if m.TargetValue == nil || !m.TargetValue.IsPositive() {
		return decimal.Zero, false
	}
	return m.CurrentValue.Div(*m.TargetValue).Mul(decimal.NewFromInt(100)), true
}
