// Package telemetry exposes Prometheus metrics for the mutation pipeline:
// tool executions, patch match strategies, turn outcomes, and consent
// denials. All methods are safe on a nil *Metrics so callers can leave
// telemetry unconfigured.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's instrument set, registered on a single
// registry.
type Metrics struct {
	registry *prometheus.Registry

	toolExecutions *prometheus.CounterVec
	patchMatches   *prometheus.CounterVec
	turns          *prometheus.CounterVec
	consentDenials *prometheus.CounterVec
	turnDuration   prometheus.Histogram
	commitExtras   prometheus.Counter
}

// New builds and registers the pipeline metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		toolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chisel",
			Name:      "tool_executions_total",
			Help:      "Tool calls executed, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		patchMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chisel",
			Name:      "patch_matches_total",
			Help:      "Patch blocks applied, by matching strategy.",
		}, []string{"strategy"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chisel",
			Name:      "turns_total",
			Help:      "Model turns finished, by terminal state.",
		}, []string{"state"}),
		consentDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chisel",
			Name:      "consent_denials_total",
			Help:      "Tool calls declined by the user.",
		}, []string{"tool"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chisel",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of one model turn.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		commitExtras: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chisel",
			Name:      "commit_extra_files_total",
			Help:      "Files folded into a turn commit that no tool recorded.",
		}),
	}
	reg.MustRegister(
		m.toolExecutions,
		m.patchMatches,
		m.turns,
		m.consentDenials,
		m.turnDuration,
		m.commitExtras,
	)
	return m
}

// Handler serves the metrics over HTTP in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ToolExecuted counts one tool call. outcome is "ok", "error", or "denied".
func (m *Metrics) ToolExecuted(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolExecutions.WithLabelValues(tool, outcome).Inc()
}

// PatchMatched counts one applied patch block by strategy.
func (m *Metrics) PatchMatched(strategy string) {
	if m == nil {
		return
	}
	m.patchMatches.WithLabelValues(strategy).Inc()
}

// TurnFinished counts a turn reaching a terminal state and records its
// duration.
func (m *Metrics) TurnFinished(state string, seconds float64) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(state).Inc()
	m.turnDuration.Observe(seconds)
}

// ConsentDenied counts a declined tool call.
func (m *Metrics) ConsentDenied(tool string) {
	if m == nil {
		return
	}
	m.consentDenials.WithLabelValues(tool).Inc()
}

// ExtraFilesFolded counts unattributed files amended into turn commits.
func (m *Metrics) ExtraFilesFolded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.commitExtras.Add(float64(n))
}
