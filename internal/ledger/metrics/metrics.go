package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AppendsTotal        *prometheus.CounterVec
	AppendFailures      prometheus.Counter
	IntegrityViolations prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		AppendsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civis_ledger_appends_total",
			Help: "Total number of audit events appended to the chain",
		}, []string{"event_type"}),
		AppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civis_ledger_append_failures_total",
			Help: "Total number of audit appends that failed to persist",
		}),
		IntegrityViolations: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "civis_ledger_integrity_violations",
			Help: "Violations found by the most recent integrity verification",
		}),
	}
}

func (m *Metrics) IncrementAppends(eventType string) {
	m.AppendsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncrementAppendFailures() {
	m.AppendFailures.Inc()
}

func (m *Metrics) SetIntegrityViolations(count int) {
	m.IntegrityViolations.Set(float64(count))
}
