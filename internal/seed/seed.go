// Package seed populates a demo tenant with sample records so the
// dashboard renders meaningful numbers on a fresh install.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	records "github.com/smallbiznis/pulse/internal/records/domain"
	"gorm.io/gorm"
)

// DemoOrgID is the tenant the demo records belong to. Fixed so repeated
// startups find the same tenant and skip reseeding.
const DemoOrgID snowflake.ID = 1

// EnsureDemoOrg seeds the demo tenant if it has no clients yet.
func EnsureDemoOrg(conn *gorm.DB, node *snowflake.Node, now time.Time) error {
	if conn == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&records.Client{}).Where("org_id = ?", DemoOrgID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return insertDemoRecords(tx, node, now.UTC())
	})
}

func insertDemoRecords(tx *gorm.DB, node *snowflake.Node, now time.Time) error {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prevStart := monthStart.AddDate(0, -1, 0)

	clients := []records.Client{
		{ID: node.Generate(), OrgID: DemoOrgID, Name: "Northwind Consulting", Email: "billing@northwind.example", Industry: "consulting", IsActive: true, CreatedAt: prevStart.AddDate(0, -3, 0)},
		{ID: node.Generate(), OrgID: DemoOrgID, Name: "Acme Retail", Email: "accounts@acme.example", Industry: "retail", IsActive: true, CreatedAt: prevStart},
		{ID: node.Generate(), OrgID: DemoOrgID, Name: "Globex Media", Email: "finance@globex.example", Industry: "media", IsActive: true, CreatedAt: monthStart.AddDate(0, 0, 2)},
	}
	if err := tx.Create(&clients).Error; err != nil {
		return err
	}

	amount := func(v string) decimal.Decimal { return decimal.RequireFromString(v) }
	paidAt := monthStart.AddDate(0, 0, 12)
	dueSoon := monthStart.AddDate(0, 0, 25)
	pastDue := prevStart.AddDate(0, 0, 20)

	invoices := []records.Invoice{
		{ID: node.Generate(), OrgID: DemoOrgID, ClientID: clients[0].ID, Status: records.InvoiceStatusPaid, TotalAmount: amount("4800"), IssuedAt: monthStart.AddDate(0, 0, 3), DueDate: &dueSoon, PaidAt: &paidAt},
		{ID: node.Generate(), OrgID: DemoOrgID, ClientID: clients[1].ID, Status: records.InvoiceStatusSent, TotalAmount: amount("2200"), IssuedAt: monthStart.AddDate(0, 0, 8), DueDate: &dueSoon},
		{ID: node.Generate(), OrgID: DemoOrgID, ClientID: clients[1].ID, Status: records.InvoiceStatusOverdue, TotalAmount: amount("1350"), IssuedAt: prevStart.AddDate(0, 0, 5), DueDate: &pastDue},
		{ID: node.Generate(), OrgID: DemoOrgID, ClientID: clients[2].ID, Status: records.InvoiceStatusPaid, TotalAmount: amount("3100"), IssuedAt: prevStart.AddDate(0, 0, 10), PaidAt: &pastDue},
	}
	if err := tx.Create(&invoices).Error; err != nil {
		return err
	}

	lineItems := []records.InvoiceLineItem{
		{ID: node.Generate(), OrgID: DemoOrgID, InvoiceID: invoices[0].ID, Description: "Consulting", Quantity: amount("32"), UnitPrice: amount("150")},
		{ID: node.Generate(), OrgID: DemoOrgID, InvoiceID: invoices[1].ID, Description: "Design", Quantity: amount("20"), UnitPrice: amount("110")},
		{ID: node.Generate(), OrgID: DemoOrgID, InvoiceID: invoices[3].ID, Description: "Consulting", Quantity: amount("20"), UnitPrice: amount("155")},
	}
	if err := tx.Create(&lineItems).Error; err != nil {
		return err
	}

	quotes := []records.Quote{
		{ID: node.Generate(), OrgID: DemoOrgID, ClientID: clients[0].ID, Status: records.QuoteStatusAccepted, TotalAmount: amount("4800"), IssuedAt: prevStart.AddDate(0, 0, 25)},
		{ID: node.Generate(), OrgID: DemoOrgID, ClientID: clients[2].ID, Status: records.QuoteStatusSent, TotalAmount: amount("5600"), IssuedAt: monthStart.AddDate(0, 0, 6)},
		{ID: node.Generate(), OrgID: DemoOrgID, ClientID: clients[1].ID, Status: records.QuoteStatusDeclined, TotalAmount: amount("900"), IssuedAt: monthStart.AddDate(0, 0, 1)},
	}
	if err := tx.Create(&quotes).Error; err != nil {
		return err
	}

	expenses := []records.Expense{
		{ID: node.Generate(), OrgID: DemoOrgID, Category: "office_rent", Amount: amount("1600"), Date: monthStart.AddDate(0, 0, 1)},
		{ID: node.Generate(), OrgID: DemoOrgID, Category: "software", Amount: amount("420"), Date: monthStart.AddDate(0, 0, 4)},
		{ID: node.Generate(), OrgID: DemoOrgID, Category: "travel", Amount: amount("780"), IsBillable: true, Date: monthStart.AddDate(0, 0, 9), Notes: "client onsite"},
		{ID: node.Generate(), OrgID: DemoOrgID, Category: "office_rent", Amount: amount("1600"), Date: prevStart.AddDate(0, 0, 1)},
	}
	return tx.Create(&expenses).Error
}
