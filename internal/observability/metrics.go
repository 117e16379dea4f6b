package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for identity flows.
type Metrics struct {
	FlowsTotal       *prometheus.CounterVec
	BiometryPrompts  *prometheus.CounterVec
	DegradedSessions prometheus.Counter
	ActiveSessions   prometheus.Gauge
}

// NewMetrics registers the collectors on reg. A nil reg yields unregistered
// collectors, which is what tests and the CLI use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FlowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nostrid",
			Name:      "flows_total",
			Help:      "Identity flows by flow and outcome.",
		}, []string{"flow", "outcome"}),
		BiometryPrompts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nostrid",
			Name:      "biometry_prompts_total",
			Help:      "Biometric prompts by result.",
		}, []string{"result"}),
		DegradedSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nostrid",
			Name:      "degraded_sessions_total",
			Help:      "Sessions established without biometric confirmation.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nostrid",
			Name:      "active_sessions",
			Help:      "Sessions currently holding a live secret key.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.FlowsTotal, m.BiometryPrompts, m.DegradedSessions, m.ActiveSessions)
	}
	return m
}

// Flow records the outcome of a flow.
func (m *Metrics) Flow(flow, outcome string) {
	m.FlowsTotal.WithLabelValues(flow, outcome).Inc()
}

// Prompt records a biometric prompt result.
func (m *Metrics) Prompt(result string) {
	m.BiometryPrompts.WithLabelValues(result).Inc()
}
