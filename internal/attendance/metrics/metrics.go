// Package metrics provides observability for the presence validation module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for clock validation.
type Metrics struct {
	// Clock outcomes by kind and result ("accepted" or the rejection reason).
	ClockOutcome *prometheus.CounterVec

	// Full validation latency including store round-trips.
	ValidateLatency prometheus.Histogram

	// Device bindings established on first clock-in.
	DeviceBindings prometheus.Counter
}

// New creates and registers all validation metrics.
func New() *Metrics {
	return &Metrics{
		ClockOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldwatch_clock_outcomes_total",
			Help: "Total clock validation outcomes by event kind and result",
		}, []string{"kind", "result"}),

		ValidateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldwatch_clock_validate_duration_seconds",
			Help:    "Duration of full clock validation including store access",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		DeviceBindings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fieldwatch_device_bindings_total",
			Help: "Total device bindings established on first successful clock-in",
		}),
	}
}

// IncrementOutcome records a validation outcome.
func (m *Metrics) IncrementOutcome(kind, result string) {
	if m != nil {
		m.ClockOutcome.WithLabelValues(kind, result).Inc()
	}
}

// ObserveValidateLatency records the total validation duration.
func (m *Metrics) ObserveValidateLatency(d time.Duration) {
	if m != nil {
		m.ValidateLatency.Observe(d.Seconds())
	}
}

// IncrementDeviceBindings records a first-use device binding.
func (m *Metrics) IncrementDeviceBindings() {
	if m != nil {
		m.DeviceBindings.Inc()
	}
}
