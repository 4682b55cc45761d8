package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's prometheus collectors.
type Metrics struct {
	LoginAttempts  *prometheus.CounterVec
	SessionsKilled prometheus.Counter
}

// NewMetrics registers the gateway collectors on a registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_login_attempts_total",
			Help: "Login attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		SessionsKilled: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_sessions_killed_total",
			Help: "Sessions destroyed through the administration endpoints.",
		}),
	}
}

// ObserveLogin records one login attempt outcome for a provider.
func (m *Metrics) ObserveLogin(providerName string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.LoginAttempts.WithLabelValues(providerName, outcome).Inc()
}
