package realtime

// Performance score policy: per-metric weights and trend multipliers.
const (
	defaultMetricWeight = 0.1

	favorableMultiplier   = 1.0
	stableMultiplier      = 0.7
	unfavorableMultiplier = 0.3

	neutralScore = 50.0
)

var metricWeights = map[string]float64{
	MetricDailyRevenue:    0.3,
	MetricDailyProfit:     0.25,
	MetricDailyExpenses:   0.2,
	MetricPendingInvoices: 0.15,
	MetricOverdueInvoices: 0.1,
}

// PerformanceScore reduces a metric set to a 0-100 health score. Trend
// labels already point in the favorable direction, so up always scores
// full weight. An empty set returns the neutral score.
func PerformanceScore(metrics []LiveMetric) float64 {
	if len(metrics) == 0 {
		return neutralScore
	}

	var score, totalWeight float64
	for _, metric := range metrics {
		weight, ok := metricWeights[metric.Name]
		if !ok {
			weight = defaultMetricWeight
		}
		totalWeight += weight

		switch metric.Trend {
		case TrendUp:
			score += weight * favorableMultiplier
		case TrendStable:
			score += weight * stableMultiplier
		default:
			score += weight * unfavorableMultiplier
		}
	}

	if totalWeight == 0 {
		return neutralScore
	}

	result := (score / totalWeight) * 100
	if result < 0 {
		return 0
	}
	if result > 100 {
		return 100
	}
	return result
}
