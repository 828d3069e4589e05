// Package metrics exposes reconciliation counters and timings for
// Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	SweepsTotal      prometheus.Counter
	SweepDuration    prometheus.Histogram
	SweepOutcomes    *prometheus.CounterVec
	AdjustedCreated  prometheus.Counter
	Violations       *prometheus.CounterVec
	EventsPublished  prometheus.Counter
	EventsFailed     prometheus.Counter
	UnprocessedGauge prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	sweeps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "indentrecon_sweeps_total",
		Help: "Shortfall sweeps run.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "indentrecon_sweep_duration_seconds",
		Help:    "Wall time of shortfall sweeps.",
		Buckets: prometheus.DefBuckets,
	})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "indentrecon_sweep_outcomes_total",
		Help: "Per-indent sweep outcomes by status.",
	}, []string{"status"})
	adjusted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "indentrecon_adjusted_indents_created_total",
		Help: "Adjusted indents created by sweeps.",
	})
	violations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "indentrecon_validation_violations_total",
		Help: "Delivery issue and conversion violations by kind.",
	}, []string{"kind"})
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "indentrecon_events_published_total",
		Help: "Adjusted indent events published.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "indentrecon_events_failed_total",
		Help: "Adjusted indent events that could not be published.",
	})
	unprocessed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "indentrecon_unprocessed_indents",
		Help: "Source indents waiting for a sweep, as of the last sweep.",
	})

	r.MustRegister(sweeps, duration, outcomes, adjusted, violations, published, failed, unprocessed)
	return &Registry{
		reg:              r,
		SweepsTotal:      sweeps,
		SweepDuration:    duration,
		SweepOutcomes:    outcomes,
		AdjustedCreated:  adjusted,
		Violations:       violations,
		EventsPublished:  published,
		EventsFailed:     failed,
		UnprocessedGauge: unprocessed,
	}
}

// ObserveSweep records a finished sweep.
func (r *Registry) ObserveSweep(d time.Duration, outcomes map[string]int, created int) {
	if r == nil {
		return
	}
	r.SweepsTotal.Inc()
	r.SweepDuration.Observe(d.Seconds())
	for status, n := range outcomes {
		r.SweepOutcomes.WithLabelValues(status).Add(float64(n))
	}
	r.AdjustedCreated.Add(float64(created))
}

// ObserveViolation counts a domain violation of the given kind.
func (r *Registry) ObserveViolation(kind string) {
	if r == nil {
		return
	}
	r.Violations.WithLabelValues(kind).Inc()
}

// ObserveEvent counts a publish attempt.
func (r *Registry) ObserveEvent(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.EventsFailed.Inc()
		return
	}
	r.EventsPublished.Inc()
}

// SetUnprocessed records how many source indents still wait for a sweep.
func (r *Registry) SetUnprocessed(n int) {
	if r == nil {
		return
	}
	r.UnprocessedGauge.Set(float64(n))
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
