package metrics

import "github.com/prometheus/client_golang/prometheus"

// Submission outcomes recorded by the intake handlers.
const (
	OutcomeRelayed      = "relayed"
	OutcomeInvalidBody  = "invalid_body"
	OutcomeInvalid      = "invalid"
	OutcomeBot          = "bot"
	OutcomeDuplicate    = "duplicate"
	OutcomeRateLimited  = "rate_limited"
	OutcomeUpstreamFail = "upstream_error"
)

// IntakeMetrics exposes counters/histograms for the submission pipeline.
type IntakeMetrics struct {
	submissionsTotal *prometheus.CounterVec
	relayTotal       *prometheus.CounterVec
	relayLatency     *prometheus.HistogramVec
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "bridge",
			Name:      "submissions_total",
			Help:      "Form submissions by kind and pipeline outcome",
		}, []string{"kind", "outcome"}),
		relayTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "bridge",
			Name:      "relay_total",
			Help:      "Telegram relay attempts by kind, status and thread fallback",
		}, []string{"kind", "status", "fallback"}),
		relayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "bridge",
			Name:      "relay_latency_seconds",
			Help:      "Latency of relaying one submission to Telegram",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissionsTotal, m.relayTotal, m.relayLatency)
	return m
}

func (m *IntakeMetrics) ObserveSubmission(kind, outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *IntakeMetrics) ObserveRelay(kind, status string, fallback bool, seconds float64) {
	if m == nil {
		return
	}
	label := "false"
	if fallback {
		label = "true"
	}
	m.relayTotal.WithLabelValues(kind, status, label).Inc()
	m.relayLatency.WithLabelValues(kind).Observe(seconds)
}
