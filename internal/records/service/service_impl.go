package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	records "github.com/smallbiznis/pulse/internal/records/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Source answers aggregation queries from the transactional tables.
type Source struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSource(p Params) records.Source {
	return &Source{
		db:  p.DB,
		log: p.Log.Named("records.source"),
	}
}

// unavailable maps a storage failure onto the sentinel the engine degrades
// on, keeping the underlying cause in the chain.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", records.ErrSourceUnavailable, err)
}

type totalsRow struct {
	Total decimal.Decimal `gorm:"column:total"`
	Count int64           `gorm:"column:count"`
}

func (s *Source) InvoiceTotals(ctx context.Context, orgID snowflake.ID, rng records.Range) (records.InvoiceTotals, error) {
	var row totalsRow
	err := s.db.WithContext(ctx).
		Model(&records.Invoice{}).
		Select("COALESCE(SUM(total_amount), 0) AS total, COUNT(id) AS count").
		Where("org_id = ? AND issued_at >= ? AND issued_at < ?", orgID, rng.Start, rng.ExclusiveEnd()).
		Scan(&row).Error
	if err != nil {
		return records.InvoiceTotals{}, unavailable(err)
	}

	var outstanding struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	err = s.db.WithContext(ctx).
		Model(&records.Invoice{}).
		Select("COALESCE(SUM(total_amount), 0) AS total").
		Where("org_id = ? AND issued_at >= ? AND issued_at < ? AND status IN ?",
			orgID, rng.Start, rng.ExclusiveEnd(),
			[]records.InvoiceStatus{records.InvoiceStatusSent, records.InvoiceStatusOverdue}).
		Scan(&outstanding).Error
	if err != nil {
		return records.InvoiceTotals{}, unavailable(err)
	}

	totals := records.InvoiceTotals{
		TotalAmount: row.Total,
		Outstanding: outstanding.Total,
		Count:       row.Count,
	}
	if row.Count > 0 {
		totals.AverageAmount = row.Total.DivRound(decimal.NewFromInt(row.Count), 4)
	}
	return totals, nil
}

func (s *Source) QuoteTotals(ctx context.Context, orgID snowflake.ID, rng records.Range) (records.QuoteTotals, error) {
	var total, accepted int64
	err := s.db.WithContext(ctx).
		Model(&records.Quote{}).
		Where("org_id = ? AND issued_at >= ? AND issued_at < ?", orgID, rng.Start, rng.ExclusiveEnd()).
		Count(&total).Error
	if err != nil {
		return records.QuoteTotals{}, unavailable(err)
	}
	err = s.db.WithContext(ctx).
		Model(&records.Quote{}).
		Where("org_id = ? AND issued_at >= ? AND issued_at < ? AND status = ?",
			orgID, rng.Start, rng.ExclusiveEnd(), records.QuoteStatusAccepted).
		Count(&accepted).Error
	if err != nil {
		return records.QuoteTotals{}, unavailable(err)
	}
	return records.QuoteTotals{Count: total, AcceptedCount: accepted}, nil
}

func (s *Source) ExpenseTotals(ctx context.Context, orgID snowflake.ID, rng records.Range) (records.ExpenseTotals, error) {
	var row totalsRow
	err := s.db.WithContext(ctx).
		Model(&records.Expense{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(id) AS count").
		Where("org_id = ? AND date >= ? AND date < ?", orgID, rng.Start, rng.ExclusiveEnd()).
		Scan(&row).Error
	if err != nil {
		return records.ExpenseTotals{}, unavailable(err)
	}

	var billable struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	err = s.db.WithContext(ctx).
		Model(&records.Expense{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("org_id = ? AND date >= ? AND date < ? AND is_billable = ?",
			orgID, rng.Start, rng.ExclusiveEnd(), true).
		Scan(&billable).Error
	if err != nil {
		return records.ExpenseTotals{}, unavailable(err)
	}

	return records.ExpenseTotals{
		TotalAmount:    row.Total,
		BillableAmount: billable.Total,
		Count:          row.Count,
	}, nil
}

func (s *Source) ClientCounts(ctx context.Context, orgID snowflake.ID, rng records.Range) (records.ClientCounts, error) {
	var active, fresh int64
	err := s.db.WithContext(ctx).
		Model(&records.Client{}).
		Where("org_id = ? AND is_active = ?", orgID, true).
		Count(&active).Error
	if err != nil {
		return records.ClientCounts{}, unavailable(err)
	}
	err = s.db.WithContext(ctx).
		Model(&records.Client{}).
		Where("org_id = ? AND created_at >= ? AND created_at < ?", orgID, rng.Start, rng.ExclusiveEnd()).
		Count(&fresh).Error
	if err != nil {
		return records.ClientCounts{}, unavailable(err)
	}
	return records.ClientCounts{Active: active, New: fresh}, nil
}

type categoryRow struct {
	Name  string          `gorm:"column:name"`
	Total decimal.Decimal `gorm:"column:total"`
	Count int64           `gorm:"column:count"`
}

func (s *Source) ExpenseCategoryTotals(ctx context.Context, orgID snowflake.ID, rng records.Range) ([]records.CategoryTotal, error) {
	var rows []categoryRow
	err := s.db.WithContext(ctx).
		Model(&records.Expense{}).
		Select("category AS name, COALESCE(SUM(amount), 0) AS total, COUNT(id) AS count").
		Where("org_id = ? AND date >= ? AND date < ?", orgID, rng.Start, rng.ExclusiveEnd()).
		Group("category").
		Order("total DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return categoryTotals(rows), nil
}

func (s *Source) ClientIndustryRevenue(ctx context.Context, orgID snowflake.ID, rng records.Range) ([]records.CategoryTotal, error) {
	var rows []categoryRow
	query := `
		SELECT COALESCE(NULLIF(c.industry, ''), 'Other') AS name,
		       COALESCE(SUM(i.total_amount), 0) AS total,
		       COUNT(DISTINCT i.client_id) AS count
		FROM invoices i
		JOIN clients c ON c.id = i.client_id
		WHERE i.org_id = ? AND i.issued_at >= ? AND i.issued_at < ?
		GROUP BY COALESCE(NULLIF(c.industry, ''), 'Other')
		ORDER BY total DESC`
	err := s.db.WithContext(ctx).
		Raw(query, orgID, rng.Start, rng.ExclusiveEnd()).
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}

	// Zero-revenue industries carry no weight in the breakdown.
	filtered := rows[:0]
	for _, row := range rows {
		if row.Total.IsPositive() {
			filtered = append(filtered, row)
		}
	}
	return categoryTotals(filtered), nil
}

func (s *Source) ServiceRevenue(ctx context.Context, orgID snowflake.ID, rng records.Range) ([]records.CategoryTotal, error) {
	var rows []categoryRow
	query := `
		SELECT li.description AS name,
		       COALESCE(SUM(li.quantity * li.unit_price), 0) AS total,
		       COUNT(li.id) AS count
		FROM invoice_line_items li
		JOIN invoices i ON i.id = li.invoice_id
		WHERE i.org_id = ? AND i.issued_at >= ? AND i.issued_at < ?
		GROUP BY li.description
		ORDER BY total DESC`
	err := s.db.WithContext(ctx).
		Raw(query, orgID, rng.Start, rng.ExclusiveEnd()).
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return categoryTotals(rows), nil
}

func categoryTotals(rows []categoryRow) []records.CategoryTotal {
	totals := make([]records.CategoryTotal, 0, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			name = "Other"
		}
		totals = append(totals, records.CategoryTotal{
			Name:  name,
			Total: row.Total,
			Count: row.Count,
		})
	}
	return totals
}

func (s *Source) Clients(ctx context.Context, orgID snowflake.ID) ([]records.ClientRecord, error) {
	var rows []records.Client
	err := s.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}

	clients := make([]records.ClientRecord, 0, len(rows))
	for _, row := range rows {
		clients = append(clients, records.ClientRecord{
			ID:       row.ID,
			Name:     row.Name,
			Industry: row.Industry,
			IsActive: row.IsActive,
		})
	}
	return clients, nil
}

func (s *Source) ClientActivity(ctx context.Context, orgID, clientID snowflake.ID, rng records.Range) (records.ClientActivity, error) {
	var activity records.ClientActivity

	var row totalsRow
	err := s.db.WithContext(ctx).
		Model(&records.Invoice{}).
		Select("COALESCE(SUM(total_amount), 0) AS total, COUNT(id) AS count").
		Where("org_id = ? AND client_id = ? AND issued_at >= ? AND issued_at < ?",
			orgID, clientID, rng.Start, rng.ExclusiveEnd()).
		Scan(&row).Error
	if err != nil {
		return records.ClientActivity{}, unavailable(err)
	}
	activity.Revenue = row.Total
	activity.InvoiceCount = row.Count

	var outstanding struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	err = s.db.WithContext(ctx).
		Model(&records.Invoice{}).
		Select("COALESCE(SUM(total_amount), 0) AS total").
		Where("org_id = ? AND client_id = ? AND issued_at >= ? AND issued_at < ? AND status IN ?",
			orgID, clientID, rng.Start, rng.ExclusiveEnd(),
			[]records.InvoiceStatus{records.InvoiceStatusSent, records.InvoiceStatusOverdue}).
		Scan(&outstanding).Error
	if err != nil {
		return records.ClientActivity{}, unavailable(err)
	}
	activity.Outstanding = outstanding.Total

	err = s.db.WithContext(ctx).
		Model(&records.Quote{}).
		Where("org_id = ? AND client_id = ? AND issued_at >= ? AND issued_at < ?",
			orgID, clientID, rng.Start, rng.ExclusiveEnd()).
		Count(&activity.QuoteCount).Error
	if err != nil {
		return records.ClientActivity{}, unavailable(err)
	}

	// Payment behavior over paid invoices in the period. Days late are
	// clamped at zero so early payments do not offset late ones.
	var paid []records.Invoice
	err = s.db.WithContext(ctx).
		Where("org_id = ? AND client_id = ? AND issued_at >= ? AND issued_at < ? AND status = ?",
			orgID, clientID, rng.Start, rng.ExclusiveEnd(), records.InvoiceStatusPaid).
		Find(&paid).Error
	if err != nil {
		return records.ClientActivity{}, unavailable(err)
	}
	var daysLate, samples int
	for _, inv := range paid {
		if inv.DueDate == nil || inv.PaidAt == nil {
			continue
		}
		days := int(inv.PaidAt.Sub(*inv.DueDate).Hours() / 24)
		if days < 0 {
			days = 0
		}
		daysLate += days
		samples++
	}
	if samples > 0 {
		activity.HasPayments = true
		activity.AveragePaymentDays = daysLate / samples
	}

	// Lifetime bounds ignore the range on purpose.
	var first, last records.Invoice
	err = s.db.WithContext(ctx).
		Where("org_id = ? AND client_id = ?", orgID, clientID).
		Order("issued_at ASC").
		Limit(1).
		Find(&first).Error
	if err != nil {
		return records.ClientActivity{}, unavailable(err)
	}
	if first.ID != 0 {
		issued := first.IssuedAt
		activity.FirstInvoiceAt = &issued
	}
	err = s.db.WithContext(ctx).
		Where("org_id = ? AND client_id = ?", orgID, clientID).
		Order("issued_at DESC").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return records.ClientActivity{}, unavailable(err)
	}
	if last.ID != 0 {
		issued := last.IssuedAt
		activity.LastInvoiceAt = &issued
	}

	return activity, nil
}

func (s *Source) PendingInvoiceCount(ctx context.Context, orgID snowflake.ID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&records.Invoice{}).
		Where("org_id = ? AND status = ?", orgID, records.InvoiceStatusSent).
		Count(&count).Error
	if err != nil {
		return 0, unavailable(err)
	}
	return count, nil
}

func (s *Source) OverdueInvoiceCount(ctx context.Context, orgID snowflake.ID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&records.Invoice{}).
		Where("org_id = ? AND status = ?", orgID, records.InvoiceStatusOverdue).
		Count(&count).Error
	if err != nil {
		return 0, unavailable(err)
	}
	return count, nil
}
