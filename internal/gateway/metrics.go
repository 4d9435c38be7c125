package gateway

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds gateway pipeline metrics.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	rateLimitedTotal prometheus.Counter
	unmatchedTotal   prometheus.Counter
}

// NewMetrics creates metrics registered on the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates metrics registered on the given
// registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "agentgate"
	}

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Requests handled by the gateway pipeline.",
			},
			[]string{"kind", "status"},
		),
		rateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_rate_limited_total",
				Help:      "Requests rejected by the rate limiter.",
			},
		),
		unmatchedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_unmatched_total",
				Help:      "Requests that matched no registered route.",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.requestsTotal, m.rateLimitedTotal, m.unmatchedTotal} {
		// Ignore duplicate registration so multiple gateways can share a
		// registerer in tests.
		_ = registerer.Register(c)
	}

	return m
}

// RecordRequest records one handled request.
func (m *Metrics) RecordRequest(kind string, status int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(kind, strconv.Itoa(status)).Inc()
}

// RecordRateLimited records a 429.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimitedTotal.Inc()
}

// RecordUnmatched records a 404.
func (m *Metrics) RecordUnmatched() {
	if m == nil {
		return
	}
	m.unmatchedTotal.Inc()
}
