package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ErrSourceUnavailable indicates a record subsystem cannot serve queries.
// Aggregations treat the affected contribution as zero and mark the result
// partial instead of failing outright.
var ErrSourceUnavailable = errors.New("record_source_unavailable")

// Range is an inclusive date range. Start and End are midnight-normalized.
type Range struct {
	Start time.Time
	End   time.Time
}

// ExclusiveEnd returns the first instant after the range, for < comparisons
// that must include the whole End day.
func (r Range) ExclusiveEnd() time.Time {
	return r.End.AddDate(0, 0, 1)
}

// InvoiceTotals summarizes invoices issued within a range.
type InvoiceTotals struct {
	TotalAmount   decimal.Decimal
	Outstanding   decimal.Decimal
	Count         int64
	AverageAmount decimal.Decimal
}

// QuoteTotals summarizes quotes issued within a range.
type QuoteTotals struct {
	Count         int64
	AcceptedCount int64
}

// ExpenseTotals summarizes expenses dated within a range.
type ExpenseTotals struct {
	TotalAmount    decimal.Decimal
	BillableAmount decimal.Decimal
	Count          int64
}

// ClientCounts summarizes the client base relative to a range.
type ClientCounts struct {
	Active int64
	New    int64
}

// CategoryTotal is one grouped contribution (expense category, client
// industry, or service description).
type CategoryTotal struct {
	Name  string
	Total decimal.Decimal
	Count int64
}

// ClientRecord is the subset of a client row the engine needs.
type ClientRecord struct {
	ID       snowflake.ID
	Name     string
	Industry string
	IsActive bool
}

// ClientActivity summarizes one client's invoicing behavior within a range.
// First/LastInvoiceAt cover the client's whole history, not just the range.
type ClientActivity struct {
	Revenue            decimal.Decimal
	InvoiceCount       int64
	QuoteCount         int64
	Outstanding        decimal.Decimal
	AveragePaymentDays int
	HasPayments        bool
	FirstInvoiceAt     *time.Time
	LastInvoiceAt      *time.Time
}

// Source exposes the read-side queries the analytics and real-time engines
// need. Implementations return ErrSourceUnavailable when the backing
// subsystem is absent or unreachable.
type Source interface {
	InvoiceTotals(ctx context.Context, orgID snowflake.ID, rng Range) (InvoiceTotals, error)
	QuoteTotals(ctx context.Context, orgID snowflake.ID, rng Range) (QuoteTotals, error)
	ExpenseTotals(ctx context.Context, orgID snowflake.ID, rng Range) (ExpenseTotals, error)
	ClientCounts(ctx context.Context, orgID snowflake.ID, rng Range) (ClientCounts, error)

	ExpenseCategoryTotals(ctx context.Context, orgID snowflake.ID, rng Range) ([]CategoryTotal, error)
	ClientIndustryRevenue(ctx context.Context, orgID snowflake.ID, rng Range) ([]CategoryTotal, error)
	ServiceRevenue(ctx context.Context, orgID snowflake.ID, rng Range) ([]CategoryTotal, error)

	Clients(ctx context.Context, orgID snowflake.ID) ([]ClientRecord, error)
	ClientActivity(ctx context.Context, orgID, clientID snowflake.ID, rng Range) (ClientActivity, error)

	PendingInvoiceCount(ctx context.Context, orgID snowflake.ID) (int64, error)
	OverdueInvoiceCount(ctx context.Context, orgID snowflake.ID) (int64, error)
}
