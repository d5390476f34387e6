// Package metrics provides Prometheus instrumentation for the rule store,
// the validator and the derivation engine.
//
// Collectors live in a private registry so only these metrics appear on the
// /metrics endpoint. Every recorder method is safe on a nil *Metrics, which
// lets components run uninstrumented in tests and one-shot CLI modes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors of the service.
type Metrics struct {
	Registry *prometheus.Registry

	StoreMutationsTotal *prometheus.CounterVec
	StoreErrorsTotal    *prometheus.CounterVec
	RulesCount          *prometheus.GaugeVec
	ValidationsTotal    *prometheus.CounterVec
	DerivationsTotal    prometheus.Counter
	DerivationDuration  prometheus.Histogram
	DerivedItemsTotal   *prometheus.CounterVec
	CacheLoadsTotal     *prometheus.CounterVec
	CacheInvalidations  prometheus.Counter
	BackupsTotal        *prometheus.CounterVec
}

// New creates and registers all collectors in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		StoreMutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "underwriting_store_mutations_total",
			Help: "Total number of successful rule store mutations.",
		}, []string{"category", "operation"}),

		StoreErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "underwriting_store_errors_total",
			Help: "Total number of rejected or failed rule store mutations.",
		}, []string{"category", "operation"}),

		RulesCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "underwriting_rules",
			Help: "Number of rules in the current document of a category.",
		}, []string{"category"}),

		ValidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "underwriting_validations_total",
			Help: "Total number of rule validations.",
		}, []string{"category", "valid"}),

		DerivationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "underwriting_derivations_total",
			Help: "Total number of case derivations.",
		}),

		DerivationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "underwriting_derivation_duration_seconds",
			Help:    "Case derivation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		DerivedItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "underwriting_derived_items_total",
			Help: "Total number of derived risk factors, test recommendations and decision options.",
		}, []string{"kind"}),

		CacheLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "underwriting_rules_cache_loads_total",
			Help: "Total number of rule cache reloads from the store.",
		}, []string{"category"}),

		CacheInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "underwriting_rules_cache_invalidations_total",
			Help: "Total number of rule cache invalidations.",
		}),

		BackupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "underwriting_backups_total",
			Help: "Total number of scheduled rule backups.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.StoreMutationsTotal,
		m.StoreErrorsTotal,
		m.RulesCount,
		m.ValidationsTotal,
		m.DerivationsTotal,
		m.DerivationDuration,
		m.DerivedItemsTotal,
		m.CacheLoadsTotal,
		m.CacheInvalidations,
		m.BackupsTotal,
	)

	return m
}

// Handler returns an [http.Handler] that serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordMutation counts a store mutation and its outcome.
func (m *Metrics) RecordMutation(category, operation string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.StoreErrorsTotal.WithLabelValues(category, operation).Inc()
		return
	}
	m.StoreMutationsTotal.WithLabelValues(category, operation).Inc()
}

// SetRulesCount updates the rule count gauge of a category.
func (m *Metrics) SetRulesCount(category string, n int) {
	if m == nil {
		return
	}
	m.RulesCount.WithLabelValues(category).Set(float64(n))
}

// RecordValidation counts a validation result.
func (m *Metrics) RecordValidation(category string, valid bool) {
	if m == nil {
		return
	}
	m.ValidationsTotal.WithLabelValues(category, strconv.FormatBool(valid)).Inc()
}

// RecordDerivation counts a derivation run and the items it produced.
func (m *Metrics) RecordDerivation(started time.Time, riskFactors, tests, options int) {
	if m == nil {
		return
	}
	m.DerivationsTotal.Inc()
	m.DerivationDuration.Observe(time.Since(started).Seconds())
	m.DerivedItemsTotal.WithLabelValues("risk_factor").Add(float64(riskFactors))
	m.DerivedItemsTotal.WithLabelValues("test_recommendation").Add(float64(tests))
	m.DerivedItemsTotal.WithLabelValues("decision_option").Add(float64(options))
}

// IncCacheLoads increments the cache load counter of a category.
func (m *Metrics) IncCacheLoads(category string) {
	if m == nil {
		return
	}
	m.CacheLoadsTotal.WithLabelValues(category).Inc()
}

// IncCacheInvalidations increments the cache invalidation counter.
func (m *Metrics) IncCacheInvalidations() {
	if m == nil {
		return
	}
	m.CacheInvalidations.Inc()
}

// RecordBackup counts a backup run.
func (m *Metrics) RecordBackup(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BackupsTotal.WithLabelValues(result).Inc()
}
