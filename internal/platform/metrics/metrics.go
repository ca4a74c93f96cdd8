package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds account-level and edge Prometheus metrics.
type Metrics struct {
	UsersRegistered prometheus.Counter
	LoginFailures   prometheus.Counter
	RateLimited     *prometheus.CounterVec
}

// New creates and registers account metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UsersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "securekyc_users_registered_total",
			Help: "Total number of users registered",
		}),
		LoginFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "securekyc_login_failures_total",
			Help: "Total number of rejected login attempts",
		}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "securekyc_rate_limited_total",
			Help: "Total number of requests refused by the rate limiter",
		}, []string{"class"}),
	}
}

func (m *Metrics) IncrementUsersRegistered() {
	if m == nil {
		return
	}
	m.UsersRegistered.Inc()
}

func (m *Metrics) IncrementLoginFailures() {
	if m == nil {
		return
	}
	m.LoginFailures.Inc()
}

func (m *Metrics) IncrementRateLimited(class string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(class).Inc()
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
