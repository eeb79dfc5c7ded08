package metrics

import "github.com/prometheus/client_golang/prometheus"

// DecisionMetrics tracks risk engine outcomes.
type DecisionMetrics struct {
	decisions  *prometheus.CounterVec
	fraudScore prometheus.Histogram
	amlScore   prometheus.Histogram
	alerts     *prometheus.CounterVec
}

// NewDecisionMetrics registers the decision metrics on the provided registerer.
func NewDecisionMetrics(reg prometheus.Registerer) *DecisionMetrics {
	if reg == nil {
		return &DecisionMetrics{}
	}
	buckets := prometheus.LinearBuckets(10, 10, 10)
	m := &DecisionMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoescrow_decisions_total",
			Help: "Transaction evaluations by recommended outcome.",
		}, []string{"outcome"}),
		fraudScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoescrow_fraud_score",
			Help:    "Distribution of clamped fraud risk scores.",
			Buckets: buckets,
		}),
		amlScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoescrow_aml_score",
			Help:    "Distribution of clamped AML risk scores.",
			Buckets: buckets,
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoescrow_critical_alerts_total",
			Help: "Critical alerts raised by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.decisions, m.fraudScore, m.amlScore, m.alerts)
	return m
}

func (m *DecisionMetrics) IncDecision(outcome string) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *DecisionMetrics) ObserveFraudScore(score int) {
	if m == nil || m.fraudScore == nil {
		return
	}
	m.fraudScore.Observe(float64(score))
}

func (m *DecisionMetrics) ObserveAMLScore(score int) {
	if m == nil || m.amlScore == nil {
		return
	}
	m.amlScore.Observe(float64(score))
}

// IncAlert counts critical alerts such as sanctions hits, SAR triggers and stolen vehicles.
func (m *DecisionMetrics) IncAlert(kind string) {
	if m == nil || m.alerts == nil {
		return
	}
	m.alerts.WithLabelValues(normalizeLabel(kind)).Inc()
}
