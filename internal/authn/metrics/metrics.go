package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ValidationsTotal   *prometheus.CounterVec
	AttemptsTotal      *prometheus.CounterVec
	LockoutsTotal      prometheus.Counter
	RegistrationsTotal *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		ValidationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civis_authn_identifier_validations_total",
			Help: "Identifier validations by resulting step",
		}, []string{"step"}),
		AttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civis_authn_biometric_attempts_total",
			Help: "Biometric authentication attempts by outcome",
		}, []string{"outcome"}),
		LockoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civis_authn_lockouts_total",
			Help: "Sessions that hit the lockout predicate",
		}),
		RegistrationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civis_authn_registrations_total",
			Help: "Voter registrations by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementValidations(step string) {
	m.ValidationsTotal.WithLabelValues(step).Inc()
}

func (m *Metrics) IncrementAttempts(outcome string) {
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementLockouts() {
	m.LockoutsTotal.Inc()
}

func (m *Metrics) IncrementRegistrations(outcome string) {
	m.RegistrationsTotal.WithLabelValues(outcome).Inc()
}
