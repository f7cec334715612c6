// Package metrics exposes batch run metrics through a Prometheus registry.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Symbol outcomes
const (
	StatusLoaded = "loaded"
	StatusEmpty  = "empty"
	StatusFailed = "failed"
)

// Backtest outcomes
const (
	StatusCompleted = "completed"
)

// Registry holds all Prometheus metrics. A nil *Registry records nothing.
type Registry struct {
	*prometheus.Registry

	symbolsTotal     *prometheus.CounterVec
	symbolDuration   prometheus.Histogram
	batchDuration    prometheus.Histogram
	rowsTotal        *prometheus.CounterVec
	cacheRequests    *prometheus.CounterVec
	backtestsTotal   *prometheus.CounterVec
	backtestDuration prometheus.Histogram
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		symbolsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantlab_symbols_total",
				Help: "Total number of symbols processed by outcome",
			},
			[]string{"status"},
		),

		symbolDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quantlab_symbol_duration_seconds",
				Help:    "Per-symbol pipeline duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),

		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quantlab_batch_duration_seconds",
				Help:    "Batch duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		rowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantlab_rows_total",
				Help: "Aligned rows produced, traded or synthesized",
			},
			[]string{"kind"},
		),

		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantlab_cache_requests_total",
				Help: "Batch cache lookups by result",
			},
			[]string{"result"},
		),

		backtestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantlab_backtests_total",
				Help: "Total number of backtests",
			},
			[]string{"status"},
		),

		backtestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quantlab_backtest_duration_seconds",
				Help:    "Backtest duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),
	}

	reg.MustRegister(r.symbolsTotal)
	reg.MustRegister(r.symbolDuration)
	reg.MustRegister(r.batchDuration)
	reg.MustRegister(r.rowsTotal)
	reg.MustRegister(r.cacheRequests)
	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)

	return r
}

// RecordSymbol records one symbol's outcome and pipeline duration.
func (r *Registry) RecordSymbol(status string, duration float64) {
	if r == nil {
		return
	}
	r.symbolsTotal.WithLabelValues(status).Inc()
	r.symbolDuration.Observe(duration)
}

// RecordRows records the traded and synthesized rows of one aligned series.
func (r *Registry) RecordRows(traded, synthesized int) {
	if r == nil {
		return
	}
	r.rowsTotal.WithLabelValues("traded").Add(float64(traded))
	r.rowsTotal.WithLabelValues("synthesized").Add(float64(synthesized))
}

// RecordBatch records a batch completion.
func (r *Registry) RecordBatch(duration float64) {
	if r == nil {
		return
	}
	r.batchDuration.Observe(duration)
}

// RecordCache records a cache lookup.
func (r *Registry) RecordCache(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheRequests.WithLabelValues(result).Inc()
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(status string, duration float64) {
	if r == nil {
		return
	}
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

// WriteTextfile writes the registry in the text exposition format for the
// node exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	return prometheus.WriteToTextfile(path, r.Registry)
}
