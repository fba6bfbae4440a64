package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics captures cache, aggregation, and streaming health signals.
type Metrics struct {
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	cacheBypass         *prometheus.CounterVec
	cacheShared         *prometheus.CounterVec
	cacheInvalidations  *prometheus.CounterVec
	aggregationDuration *prometheus.HistogramVec
	aggregationPartial  prometheus.Counter
	warmupRuns          prometheus.Counter
	warmupErrors        prometheus.Counter
	streamConnections   prometheus.Gauge
	streamPushes        *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics registered against the default
// prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New builds and registers the instrument set.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_cache_hits_total",
			Help: "Cache hits by key type.",
		}, []string{"key_type"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_cache_misses_total",
			Help: "Cache misses by key type.",
		}, []string{"key_type"}),
		cacheBypass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_cache_bypass_total",
			Help: "Computations served without the cache backend.",
		}, []string{"key_type"}),
		cacheShared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_cache_singleflight_shared_total",
			Help: "Callers that piggybacked on an in-flight computation.",
		}, []string{"key_type"}),
		cacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_cache_invalidations_total",
			Help: "Cache invalidations by key type.",
		}, []string{"key_type"}),
		aggregationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pulse_aggregation_duration_seconds",
			Help:    "Aggregation operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		aggregationPartial: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_aggregation_partial_total",
			Help: "Aggregations completed with one or more sources unavailable.",
		}),
		warmupRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_warmup_runs_total",
			Help: "Snapshot warm-up loop iterations.",
		}),
		warmupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_warmup_errors_total",
			Help: "Snapshot warm-up iterations that reported errors.",
		}),
		streamConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_stream_connections",
			Help: "Open websocket stream connections.",
		}),
		streamPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_stream_pushes_total",
			Help: "Stream payload pushes by kind.",
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.cacheHits,
			m.cacheMisses,
			m.cacheBypass,
			m.cacheShared,
			m.cacheInvalidations,
			m.aggregationDuration,
			m.aggregationPartial,
			m.warmupRuns,
			m.warmupErrors,
			m.streamConnections,
			m.streamPushes,
		)
	}

	return m
}

func (m *Metrics) IncCacheHit(keyType string)          { m.cacheHits.WithLabelValues(label(keyType)).Inc() }
func (m *Metrics) IncCacheMiss(keyType string)         { m.cacheMisses.WithLabelValues(label(keyType)).Inc() }
func (m *Metrics) IncCacheBypass(keyType string)       { m.cacheBypass.WithLabelValues(label(keyType)).Inc() }
func (m *Metrics) IncCacheShared(keyType string)       { m.cacheShared.WithLabelValues(label(keyType)).Inc() }
func (m *Metrics) IncCacheInvalidation(keyType string) { m.cacheInvalidations.WithLabelValues(label(keyType)).Inc() }

func (m *Metrics) ObserveAggregation(operation string, elapsed time.Duration) {
	m.aggregationDuration.WithLabelValues(label(operation)).Observe(elapsed.Seconds())
}

func (m *Metrics) IncAggregationPartial() { m.aggregationPartial.Inc() }

func (m *Metrics) IncWarmupRun()   { m.warmupRuns.Inc() }
func (m *Metrics) IncWarmupError() { m.warmupErrors.Inc() }

func (m *Metrics) IncStreamConnections() { m.streamConnections.Inc() }
func (m *Metrics) DecStreamConnections() { m.streamConnections.Dec() }
func (m *Metrics) IncStreamPush(kind string) {
	m.streamPushes.WithLabelValues(label(kind)).Inc()
}

func label(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
