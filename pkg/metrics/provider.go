package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics tracks calls to external screening, registry and bank providers.
type ProviderMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// Provider call outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// NewProviderMetrics registers the provider metrics on the provided registerer.
func NewProviderMetrics(reg prometheus.Registerer) *ProviderMetrics {
	if reg == nil {
		return &ProviderMetrics{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoescrow_provider_calls_total",
		Help: "External provider calls by provider and outcome.",
	}, []string{"provider", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autoescrow_provider_latency_seconds",
		Help:    "External provider call latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"provider"})
	reg.MustRegister(calls, latency)
	return &ProviderMetrics{calls: calls, latency: latency}
}

// Observe records a finished call.
func (p *ProviderMetrics) Observe(provider, outcome string, took time.Duration) {
	if p == nil || p.calls == nil {
		return
	}
	provider = normalizeLabel(provider)
	p.calls.WithLabelValues(provider, outcome).Inc()
	p.latency.WithLabelValues(provider).Observe(took.Seconds())
}
