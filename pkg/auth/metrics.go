package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "portal"

// Metrics exposes authentication counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg             prometheus.Registerer
	loginAttempts   *prometheus.CounterVec
	lockouts        *prometheus.CounterVec
	dashboardLogins *prometheus.CounterVec
	revocations     prometheus.Counter
}

// NewMetrics registers the auth collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		loginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		lockouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lockouts_total",
			Help:      "Lockouts imposed by kind (source or code).",
		}, []string{"kind"}),
		dashboardLogins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dashboard_logins_total",
			Help:      "Dashboard login attempts by result.",
		}, []string{"result"}),
		revocations: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "code_revocations_total",
			Help:      "Access codes revoked from the dashboard.",
		}),
	}
}

func (m *Metrics) observeSessions(primary, dashboard func() int) {
	if m == nil {
		return
	}

	f := promauto.With(m.reg)

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "active_sessions",
		Help:      "Live primary sessions.",
	}, func() float64 { return float64(primary()) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "dashboard_sessions",
		Help:      "Live dashboard sessions.",
	}, func() float64 { return float64(dashboard()) })
}

func (m *Metrics) loginResult(r Reason) {
	if m == nil {
		return
	}

	result := string(r)
	if r == ReasonNone {
		result = "success"
	}

	m.loginAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) lockout(source, code bool) {
	if m == nil {
		return
	}

	if source {
		m.lockouts.WithLabelValues("source").Inc()
	}

	if code {
		m.lockouts.WithLabelValues("code").Inc()
	}
}

func (m *Metrics) dashboardLogin(r Reason) {
	if m == nil {
		return
	}

	result := string(r)
	if r == ReasonNone {
		result = "success"
	}

	m.dashboardLogins.WithLabelValues(result).Inc()
}

func (m *Metrics) revoked() {
	if m == nil {
		return
	}

	m.revocations.Inc()
}
