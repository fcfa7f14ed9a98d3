package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "session_client"

// Request outcomes
const (
	outcomeOK           = "ok"
	outcomeError        = "error"
	outcomeReplayed     = "replayed"
	outcomeUnauthorized = "unauthorized"
	outcomeRenewFailed  = "renew_failed"
)

// Metrics counts what the transport does. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	renewals *prometheus.CounterVec
	queued   prometheus.Counter
}

// NewMetrics creates the transport metrics and registers them on reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total authenticated requests by outcome",
			},
			[]string{"outcome"},
		),
		renewals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "renewals_total",
				Help:      "Total credential renewals started by the transport",
			},
			[]string{"result"},
		),
		queued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "queued_requests_total",
				Help:      "Requests that waited on a renewal started by another request",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.renewals, m.queued)
	}
	return m
}

func (m *Metrics) request(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) renewal(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.renewals.WithLabelValues(result).Inc()
}

func (m *Metrics) queuedRequest() {
	if m == nil {
		return
	}
	m.queued.Inc()
}

// Renewals exposes the renewal counter, labelled by result
func (m *Metrics) Renewals() *prometheus.CounterVec {
	return m.renewals
}
