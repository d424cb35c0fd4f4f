// internal/app/system/schemametrics/metrics.go
package schemametrics

import (
	"net/http"
	"time"

	"github.com/dalemusser/chatschema/internal/app/system/indexes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bootstrapper's Prometheus collectors on a private
// registry. It implements indexes.Recorder.
type Metrics struct {
	reg *prometheus.Registry

	operations  *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	lastSuccess prometheus.Gauge
}

// New builds and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatschema_operations_total",
			Help: "Collections and indexes ensured, by outcome",
		}, []string{"kind", "collection", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatschema_run_duration_seconds",
			Help:    "Duration of a schema run",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"mode", "result"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatschema_last_success_timestamp_seconds",
			Help: "Unix time of the last successful schema run",
		}),
	}
	m.reg.MustRegister(m.operations, m.runDuration, m.lastSuccess)
	return m
}

// Record counts one ensured collection or index.
func (m *Metrics) Record(kind, collection, _ string, outcome indexes.Outcome) {
	m.operations.WithLabelValues(kind, collection, string(outcome)).Inc()
}

// ObserveRun records a finished run. A nil err also stamps the
// last-success gauge.
func (m *Metrics) ObserveRun(mode string, took time.Duration, err error) {
	result := "ok"
	switch {
	case err == nil:
		m.lastSuccess.SetToCurrentTime()
	case indexes.IsConnectionError(err):
		result = "connection_error"
	case indexes.IsConstraintConflict(err):
		result = "conflict"
	default:
		result = "error"
	}
	m.runDuration.WithLabelValues(mode, result).Observe(took.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
