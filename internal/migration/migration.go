// Package migration creates the analytics schema on startup so the service
// is usable out of the box for local and self-hosted environments. The
// transactional record tables are included for standalone deployments where
// no other subsystem owns them.
package migration

import (
	analytics "github.com/smallbiznis/pulse/internal/analytics/domain"
	records "github.com/smallbiznis/pulse/internal/records/domain"
	"gorm.io/gorm"
)

func Run(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&records.Client{},
		&records.Invoice{},
		&records.InvoiceLineItem{},
		&records.Quote{},
		&records.Expense{},
		&analytics.Snapshot{},
		&analytics.CategoryBreakdown{},
		&analytics.ClientEntry{},
		&analytics.PerformanceMetric{},
	)
}
