package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the KYC module.
type Metrics struct {
	// Decisions by status and operation (submit, resubmit)
	Decisions *prometheus.CounterVec

	RiskScore prometheus.Histogram

	ResubmitRefused prometheus.Counter

	// Notification failures by channel (email, kafka)
	NotifyFailures *prometheus.CounterVec
}

// New registers KYC metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers KYC metrics on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "securekyc_kyc_decisions_total",
			Help: "Total KYC decisions by status and operation",
		}, []string{"status", "operation"}),

		RiskScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "securekyc_kyc_risk_score",
			Help:    "Distribution of computed KYC risk scores",
			Buckets: []float64{0, 15, 25, 40, 55, 70, 100, 150},
		}),

		ResubmitRefused: factory.NewCounter(prometheus.CounterOpts{
			Name: "securekyc_kyc_resubmit_refused_total",
			Help: "Resubmissions refused because the attempt cap was reached",
		}),

		NotifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "securekyc_kyc_notify_failures_total",
			Help: "Decision notifications that could not be delivered, by channel",
		}, []string{"channel"}),
	}
}

// ObserveDecision records one decision and its score.
func (m *Metrics) ObserveDecision(status, operation string, score int) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(status, operation).Inc()
	m.RiskScore.Observe(float64(score))
}

func (m *Metrics) IncrementResubmitRefused() {
	if m != nil {
		m.ResubmitRefused.Inc()
	}
}

func (m *Metrics) IncrementNotifyFailure(channel string) {
	if m != nil {
		m.NotifyFailures.WithLabelValues(channel).Inc()
	}
}
