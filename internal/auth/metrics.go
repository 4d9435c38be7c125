package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for authentication operations.
type Metrics struct {
	validationsTotal   *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a Metrics instance with a custom
// registerer. Tests use a private registry.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "agentgate"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "validations_total",
				Help:      "Total number of credential validations",
			},
			[]string{"method", "result"},
		),
		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "validation_duration_seconds",
				Help:      "Credential validation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method"},
		),
	}

	// Use Register instead of MustRegister so duplicate registration (e.g.
	// in tests) is tolerated; the descriptors are identical when
	// re-registered.
	for _, c := range []prometheus.Collector{m.validationsTotal, m.validationDuration} {
		_ = registerer.Register(c)
	}

	return m
}

// RecordValidation records the outcome of one credential validation.
func (m *Metrics) RecordValidation(method Method, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.validationsTotal.WithLabelValues(string(method), result).Inc()
	m.validationDuration.WithLabelValues(string(method)).Observe(duration.Seconds())
}
