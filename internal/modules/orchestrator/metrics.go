package orchestrator

import "github.com/prometheus/client_golang/prometheus"

const (
	resultInvalid = "invalid"
	resultBusy    = "busy"
)

type Metrics struct {
	orchestrations *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		orchestrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Name:      "orchestrations_total",
			Help:      "Payment and document actions by action and result.",
		}, []string{"action", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.orchestrations)
	}
	return m
}

func (m *Metrics) inc(action, result string) {
	if m == nil {
		return
	}
	m.orchestrations.WithLabelValues(action, result).Inc()
}
