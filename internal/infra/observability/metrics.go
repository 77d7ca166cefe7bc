package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	upstreamErrors   *prometheus.CounterVec
	credentialHits   *prometheus.CounterVec
	credentialMisses *prometheus.CounterVec
	tokenRefreshes   *prometheus.CounterVec
	probeDuration    *prometheus.HistogramVec
	probeStatus      *prometheus.GaugeVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// gateway metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_tool_calls_total",
				Help: "Total tool calls by tool and outcome code.",
			},
			[]string{"tool", "outcome"},
		),
		toolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_tool_call_duration_seconds",
				Help:    "Duration of tool calls by upstream service.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		upstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_errors_total",
				Help: "Total classified upstream errors.",
			},
			[]string{"service", "code"},
		),
		credentialHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_credential_cache_hits_total",
				Help: "Total credential cache hits.",
			},
			[]string{"identity"},
		),
		credentialMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_credential_cache_misses_total",
				Help: "Total credential cache misses (stale or absent).",
			},
			[]string{"identity"},
		),
		tokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_token_refreshes_total",
				Help: "Total token refresh attempts by result.",
			},
			[]string{"identity", "result"},
		),
		probeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_health_probe_duration_seconds",
				Help:    "Latency of health probes by service.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		probeStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_health_probe_status",
				Help: "Last probe status per service (1 ok, 0.5 warning, 0 error).",
			},
			[]string{"service"},
		),
	}
}

// RecordToolCall counts a finished tool call. outcome is "ok" or an error code.
func (m *Metrics) RecordToolCall(tool, service, outcome string, d time.Duration) {
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolCallDuration.WithLabelValues(service).Observe(d.Seconds())
}

// IncrUpstreamError increments the classified upstream error counter.
func (m *Metrics) IncrUpstreamError(service, code string) {
	m.upstreamErrors.WithLabelValues(service, code).Inc()
}

// IncrCredentialHit increments the credential cache hit counter.
func (m *Metrics) IncrCredentialHit(identity string) {
	m.credentialHits.WithLabelValues(identity).Inc()
}

// IncrCredentialMiss increments the credential cache miss counter.
func (m *Metrics) IncrCredentialMiss(identity string) {
	m.credentialMisses.WithLabelValues(identity).Inc()
}

// IncrTokenRefresh counts a refresh attempt; result is "success" or "failure".
func (m *Metrics) IncrTokenRefresh(identity, result string) {
	m.tokenRefreshes.WithLabelValues(identity, result).Inc()
}

// RecordProbe records a health probe outcome.
func (m *Metrics) RecordProbe(service, status string, d time.Duration) {
	m.probeDuration.WithLabelValues(service).Observe(d.Seconds())
	v := 0.0
	switch status {
	case "ok":
		v = 1
	case "warning":
		v = 0.5
	}
	m.probeStatus.WithLabelValues(service).Set(v)
}

// TokenRefreshes returns how many refreshes were attempted for identity.
func (m *Metrics) TokenRefreshes(identity string) float64 {
	return getCounterValue(m.tokenRefreshes, identity, "success") +
		getCounterValue(m.tokenRefreshes, identity, "failure")
}

// ToolCalls returns how many calls of tool ended with outcome.
func (m *Metrics) ToolCalls(tool, outcome string) float64 {
	return getCounterValue(m.toolCalls, tool, outcome)
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
