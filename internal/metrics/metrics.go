package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the annotator's Prometheus collectors
type Metrics struct {
	Decisions *prometheus.CounterVec
	Skips     prometheus.Counter
	Persists  *prometheus.CounterVec
	Sessions  prometheus.Counter

	// Progress is the number of evidences decided in the active session
	Progress prometheus.Gauge
	// Remaining is the number of evidences still to decide
	Remaining prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance on its own registry
func New() *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "annotator_decisions_total",
			Help: "Decisions recorded, by decision",
		}, []string{"decision"}),
		Skips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotator_skips_total",
			Help: "Evidences skipped without a record",
		}),
		Persists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "annotator_persist_total",
			Help: "Persist attempts after a decision, by mode and result",
		}, []string{"mode", "result"}),
		Sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotator_sessions_started_total",
			Help: "Sessions loaded",
		}),
		Progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "annotator_session_progress",
			Help: "Evidences decided or skipped in the active session",
		}),
		Remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "annotator_session_remaining",
			Help: "Evidences left in the active session",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(m.Decisions, m.Skips, m.Persists, m.Sessions, m.Progress, m.Remaining)
	return m
}

// ObserveDecision counts one recorded decision
func (m *Metrics) ObserveDecision(decision string) {
	m.Decisions.WithLabelValues(decision).Inc()
}

// ObservePersist counts one persist attempt
func (m *Metrics) ObservePersist(mode string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Persists.WithLabelValues(mode, result).Inc()
}

// SetProgress updates the session gauges
func (m *Metrics) SetProgress(done, total int) {
	m.Progress.Set(float64(done))
	m.Remaining.Set(float64(total - done))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
