package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/maaaruch/online-voting/internal/domain"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registrations  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	elections      *prometheus.CounterVec
	votes          *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// New builds the collectors and registers them on reg when reg is not nil.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credentials",
				Name:      "registrations_total",
				Help:      "Registration attempts by result",
			},
			[]string{"result"},
		),
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credentials",
				Name:      "logins_total",
				Help:      "Authentication attempts by result",
			},
			[]string{"result"},
		),
		elections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ballots",
				Name:      "elections_created_total",
				Help:      "Ballot creation attempts by result",
			},
			[]string{"result"},
		),
		votes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tally",
				Name:      "votes_cast_total",
				Help:      "Vote casting attempts by result",
			},
			[]string{"result"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "active",
				Help:      "Sessions with a logged-in user",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.registrations)
		reg.MustRegister(m.logins)
		reg.MustRegister(m.elections)
		reg.MustRegister(m.votes)
		reg.MustRegister(m.activeSessions)
	}
	return m
}

func (m *Metrics) ObserveRegistration(err error) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(domain.Code(err)).Inc()
}

func (m *Metrics) ObserveLogin(err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(domain.Code(err)).Inc()
}

func (m *Metrics) ObserveElection(err error) {
	if m == nil {
		return
	}
	m.elections.WithLabelValues(domain.Code(err)).Inc()
}

func (m *Metrics) ObserveVote(err error) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(domain.Code(err)).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
