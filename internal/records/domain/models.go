// Package domain contains the transactional record models the analytics
// engine aggregates over. These tables are written by upstream systems;
// this service only reads them (tests seed them directly).
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// QuoteStatus represents quote lifecycle states.
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "draft"
	QuoteStatusSent     QuoteStatus = "sent"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusDeclined QuoteStatus = "declined"
	QuoteStatusExpired  QuoteStatus = "expired"
)

// Client represents a billable customer of a tenant.
type Client struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrgID     snowflake.ID `gorm:"not null;index"`
	Name      string       `gorm:"type:text;not null"`
	Email     string       `gorm:"type:text"`
	Industry  string       `gorm:"type:text"`
	IsActive  bool         `gorm:"not null;default:true"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Client) TableName() string { return "clients" }

// Invoice represents an issued invoice.
type Invoice struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	OrgID       snowflake.ID    `gorm:"not null;index"`
	ClientID    snowflake.ID    `gorm:"not null;index"`
	Status      InvoiceStatus   `gorm:"type:text;not null;default:'draft'"`
	TotalAmount decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	IssuedAt    time.Time       `gorm:"not null;index"`
	DueDate     *time.Time      `gorm:""`
	PaidAt      *time.Time      `gorm:""`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceLineItem represents a line on an invoice. Revenue by service type
// is derived from Quantity*UnitPrice grouped by Description.
type InvoiceLineItem struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	OrgID       snowflake.ID    `gorm:"not null;index"`
	InvoiceID   snowflake.ID    `gorm:"not null;index"`
	Description string          `gorm:"type:text;not null"`
	Quantity    decimal.Decimal `gorm:"type:numeric;not null;default:1"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

// Quote represents a quotation sent to a client.
type Quote struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	OrgID       snowflake.ID    `gorm:"not null;index"`
	ClientID    snowflake.ID    `gorm:"not null;index"`
	Status      QuoteStatus     `gorm:"type:text;not null;default:'draft'"`
	TotalAmount decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	IssuedAt    time.Time       `gorm:"not null;index"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Quote) TableName() string { return "quotes" }

// Expense represents a recorded business expense.
type Expense struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	OrgID      snowflake.ID    `gorm:"not null;index"`
	Category   string          `gorm:"type:text;not null"`
	Amount     decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	IsBillable bool            `gorm:"not null;default:false"`
	Date       time.Time       `gorm:"not null;index"`
	Notes      string          `gorm:"type:text"`
	CreatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Expense) TableName() string { return "expenses" }
