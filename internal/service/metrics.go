package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/timmy/sissync/internal/domain"
)

// SyncMetrics holds the Prometheus instruments for sync runs.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	runsTotal     *prometheus.CounterVec
	runsInFlight  prometheus.Gauge
	attemptsTotal *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
}

// NewSyncMetrics creates the instruments and registers them with reg.
// If reg is nil, it returns nil (no-op metrics).
func NewSyncMetrics(reg prometheus.Registerer) (*SyncMetrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &SyncMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sissync_runs_total",
			Help: "Finished sync runs by terminal status.",
		}, []string{"status"}),
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sissync_runs_in_flight",
			Help: "Sync runs currently executing in this process.",
		}),
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sissync_school_attempts_total",
			Help: "Finished per-school attempts by source and status.",
		}, []string{"source", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sissync_endpoint_step_duration_seconds",
			Help:    "Duration of endpoint steps in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"source", "endpoint", "success"}),
	}

	for _, c := range []prometheus.Collector{m.runsTotal, m.runsInFlight, m.attemptsTotal, m.stepDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RunStarted increments the in-flight gauge.
func (m *SyncMetrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsInFlight.Inc()
}

// RunFinished decrements the in-flight gauge and counts the terminal status.
func (m *SyncMetrics) RunFinished(status domain.RunStatus) {
	if m == nil {
		return
	}
	m.runsInFlight.Dec()
	m.runsTotal.WithLabelValues(string(status)).Inc()
}

// RecordAttempt counts one finished school attempt.
func (m *SyncMetrics) RecordAttempt(source domain.Source, status domain.AttemptStatus) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(string(source), string(status)).Inc()
}

// RecordStep records the duration of one endpoint step.
func (m *SyncMetrics) RecordStep(source domain.Source, endpoint string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	outcome := "false"
	if success {
		outcome = "true"
	}
	m.stepDuration.WithLabelValues(string(source), endpoint, outcome).Observe(d.Seconds())
}
