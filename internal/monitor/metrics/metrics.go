// Package metrics provides Prometheus metrics for the monitor scheduler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the monitor sweep metrics. A nil *Metrics is valid and
// records nothing, so tests can pass nil.
type Metrics struct {
	SweepDuration   prometheus.Histogram
	TicksSkipped    prometheus.Counter
	AlertsRaised    prometheus.Counter
	ForcedCloses    prometheus.Counter
	EvalFailures    prometheus.Counter
	ShiftsEvaluated prometheus.Counter
}

// New registers the monitor metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldwatch_monitor_sweep_duration_seconds",
			Help:    "Duration of one violation sweep",
			Buckets: prometheus.DefBuckets,
		}),
		TicksSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fieldwatch_monitor_ticks_skipped_total",
			Help: "Ticks skipped because the previous sweep was still running",
		}),
		AlertsRaised: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fieldwatch_monitor_alerts_raised_total",
			Help: "Violation alerts created",
		}),
		ForcedCloses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fieldwatch_monitor_forced_closes_total",
			Help: "Shifts force-closed by the daily sweep",
		}),
		EvalFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fieldwatch_monitor_eval_failures_total",
			Help: "Per-shift evaluation failures isolated during a sweep",
		}),
		ShiftsEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fieldwatch_monitor_shifts_evaluated_total",
			Help: "Open shifts evaluated across all sweeps",
		}),
	}
}

func (m *Metrics) ObserveSweepDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}

func (m *Metrics) IncrementTicksSkipped() {
	if m == nil {
		return
	}
	m.TicksSkipped.Inc()
}

func (m *Metrics) IncrementAlertsRaised() {
	if m == nil {
		return
	}
	m.AlertsRaised.Inc()
}

func (m *Metrics) IncrementForcedCloses() {
	if m == nil {
		return
	}
	m.ForcedCloses.Inc()
}

func (m *Metrics) IncrementEvalFailures() {
	if m == nil {
		return
	}
	m.EvalFailures.Inc()
}

func (m *Metrics) AddShiftsEvaluated(n int) {
	if m == nil {
		return
	}
	m.ShiftsEvaluated.Add(float64(n))
}
