package realtime

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertLevelCritical AlertLevel = "critical"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelSuccess  AlertLevel = "success"
)

// Alert is a rule-derived notification over the live metric set.
type Alert struct {
	Level          AlertLevel `json:"level"`
	Message        string     `json:"message"`
	Metric         string     `json:"metric"`
	Timestamp      time.Time  `json:"timestamp"`
	ActionRequired bool       `json:"action_required"`
}

// alertRule maps one metric predicate onto an alert.
type alertRule struct {
	metric         string
	matches        func(LiveMetric) bool
	level          AlertLevel
	actionRequired bool
	message        func(LiveMetric) string
}

var overdueThreshold = decimal.NewFromInt(5)

// alertRules is the declarative rule table evaluated on every update.
var alertRules = []alertRule{
	{
		metric:         MetricDailyProfit,
		matches:        func(m LiveMetric) bool { return m.Value.IsNegative() },
		level:          AlertLevelCritical,
		actionRequired: true,
		message: func(m LiveMetric) string {
			return fmt.Sprintf("Daily profit is negative: $%s", m.Value)
		},
	},
	{
		metric:         MetricOverdueInvoices,
		matches:        func(m LiveMetric) bool { return m.Value.GreaterThan(overdueThreshold) },
		level:          AlertLevelWarning,
		actionRequired: true,
		message: func(m LiveMetric) string {
			return fmt.Sprintf("%s invoices are overdue", m.Value)
		},
	},
	{
		metric:  MetricDailyRevenue,
		matches: func(m LiveMetric) bool { return m.Trend == TrendUp },
		level:   AlertLevelSuccess,
		message: func(m LiveMetric) string {
			return fmt.Sprintf("%s is trending up (+$%s)", m.Name, m.Change)
		},
	},
	{
		metric:  MetricActiveClients,
		matches: func(m LiveMetric) bool { return m.Trend == TrendUp },
		level:   AlertLevelSuccess,
		message: func(m LiveMetric) string {
			return fmt.Sprintf("%s is trending up (+$%s)", m.Name, m.Change)
		},
	},
}

// GenerateAlerts runs the rule table over a metric set. Stateless: the same
// metrics always yield the same alerts.
func GenerateAlerts(metrics []LiveMetric) []Alert {
	alerts := make([]Alert, 0)
	for _, metric := range metrics {
		for _, rule := range alertRules {
			if rule.metric != metric.Name || !rule.matches(metric) {
				continue
			}
			alerts = append(alerts, Alert{
				Level:          rule.level,
				Message:        rule.message(metric),
				Metric:         metric.Name,
				Timestamp:      metric.Timestamp,
				ActionRequired: rule.actionRequired,
			})
		}
	}
	return alerts
}
