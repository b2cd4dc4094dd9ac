package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Removal reasons used as the "reason" label of removals_total.
const (
	ReasonKill    = "kill"
	ReasonKillAll = "kill_all"
	ReasonPurge   = "purge"
	ReasonEvict   = "evict"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskmgr",
			Subsystem: "admission",
			Name:      "decisions_total",
			Help:      "Admission decisions by strategy and outcome (insert or reject).",
		}, []string{"strategy", "outcome"},
	)
	evictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskmgr",
			Subsystem: "admission",
			Name:      "evictions_total",
			Help:      "Records evicted to make room for a new process.",
		}, []string{"strategy"},
	)
	admissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taskmgr",
			Subsystem: "admission",
			Name:      "duration_seconds",
			Help:      "Time spent deciding and committing an admission.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"},
	)
	removals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskmgr",
			Subsystem: "process",
			Name:      "removals_total",
			Help:      "Records removed, by reason.",
		}, []string{"reason"},
	)
	processes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taskmgr",
			Subsystem: "process",
			Name:      "records",
			Help:      "Records currently held by the store.",
		},
	)
	capacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taskmgr",
			Subsystem: "process",
			Name:      "capacity",
			Help:      "Configured maximum number of records.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{admissions, evictions, admissionDuration, removals, processes, capacity}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics gathered from g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveAdmission(strategy, outcome string, seconds float64) {
	if regOK.Load() {
		admissions.WithLabelValues(strategy, outcome).Inc()
		admissionDuration.WithLabelValues(strategy).Observe(seconds)
	}
}

func IncEviction(strategy string) {
	if regOK.Load() {
		evictions.WithLabelValues(strategy).Inc()
		removals.WithLabelValues(ReasonEvict).Inc()
	}
}

func AddRemovals(reason string, n int) {
	if regOK.Load() && n > 0 {
		removals.WithLabelValues(reason).Add(float64(n))
	}
}

func SetRecords(n int) {
	if regOK.Load() {
		processes.Set(float64(n))
	}
}

func SetCapacity(n int) {
	if regOK.Load() {
		capacity.Set(float64(n))
	}
}
