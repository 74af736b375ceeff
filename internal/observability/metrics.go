// Package observability exposes Prometheus metrics for the cache and the
// fetch orchestrator through their hook structs.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"devotional/internal/cache"
	"devotional/internal/devotional"
)

// Metrics holds the collectors registered by NewMetrics.
type Metrics struct {
	CacheLookups   *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec
	Fetches        *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. Passing nil uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devotional_cache_lookups_total",
				Help: "Cache lookups by result (hit, miss, expired, corrupt, stale)",
			},
			[]string{"result"},
		),
		CacheEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devotional_cache_evictions_total",
				Help: "Cache evictions by reason (expired, manual, clear)",
			},
			[]string{"reason"},
		),
		Fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devotional_fetches_total",
				Help: "Completed devotional fetches by provenance or error type",
			},
			[]string{"outcome"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devotional_fetch_duration_seconds",
				Help:    "Duration of devotional fetches",
				Buckets: []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"outcome"},
		),
	}
}

// CacheHooks returns hooks that feed the cache collectors.
func (m *Metrics) CacheHooks() cache.Hooks {
	return cache.Hooks{
		OnLookup: func(result string) {
			m.CacheLookups.WithLabelValues(result).Inc()
		},
		OnEvict: func(reason string) {
			m.CacheEvictions.WithLabelValues(reason).Inc()
		},
	}
}

// FetchHooks returns hooks that feed the fetch collectors.
func (m *Metrics) FetchHooks() devotional.Hooks {
	return devotional.Hooks{
		OnFetchDone: func(outcome string, d time.Duration) {
			m.Fetches.WithLabelValues(outcome).Inc()
			m.FetchDuration.WithLabelValues(outcome).Observe(d.Seconds())
		},
	}
}
