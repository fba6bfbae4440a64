package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	records "github.com/smallbiznis/pulse/internal/records/domain"
)

// NopSource stands in when the transactional subsystems are absent. Every
// query reports ErrSourceUnavailable so aggregations degrade to partial
// results instead of failing.
type NopSource struct{}

func NewNopSource() records.Source { return NopSource{} }

func (NopSource) InvoiceTotals(context.Context, snowflake.ID, records.Range) (records.InvoiceTotals, error) {
	return records.InvoiceTotals{}, records.ErrSourceUnavailable
}

func (NopSource) QuoteTotals(context.Context, snowflake.ID, records.Range) (records.QuoteTotals, error) {
	return records.QuoteTotals{}, records.ErrSourceUnavailable
}

func (NopSource) ExpenseTotals(context.Context, snowflake.ID, records.Range) (records.ExpenseTotals, error) {
	return records.ExpenseTotals{}, records.ErrSourceUnavailable
}

func (NopSource) ClientCounts(context.Context, snowflake.ID, records.Range) (records.ClientCounts, error) {
	return records.ClientCounts{}, records.ErrSourceUnavailable
}

func (NopSource) ExpenseCategoryTotals(context.Context, snowflake.ID, records.Range) ([]records.CategoryTotal, error) {
	return nil, records.ErrSourceUnavailable
}

func (NopSource) ClientIndustryRevenue(context.Context, snowflake.ID, records.Range) ([]records.CategoryTotal, error) {
	return nil, records.ErrSourceUnavailable
}

func (NopSource) ServiceRevenue(context.Context, snowflake.ID, records.Range) ([]records.CategoryTotal, error) {
	return nil, records.ErrSourceUnavailable
}

func (NopSource) Clients(context.Context, snowflake.ID) ([]records.ClientRecord, error) {
	return nil, records.ErrSourceUnavailable
}

func (NopSource) ClientActivity(context.Context, snowflake.ID, snowflake.ID, records.Range) (records.ClientActivity, error) {
	return records.ClientActivity{}, records.ErrSourceUnavailable
}

func (NopSource) PendingInvoiceCount(context.Context, snowflake.ID) (int64, error) {
	return 0, records.ErrSourceUnavailable
}

func (NopSource) OverdueInvoiceCount(context.Context, snowflake.ID) (int64, error) {
	return 0, records.ErrSourceUnavailable
}
