package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CancellationMetrics tracks the optimistic cancel flow.
type CancellationMetrics struct {
	requested prometheus.Counter
	outcomes  *prometheus.CounterVec
	commit    *prometheus.HistogramVec
	pending   prometheus.Gauge
}

func NewCancellationMetrics(reg prometheus.Registerer) *CancellationMetrics {
	if reg == nil {
		return &CancellationMetrics{}
	}
	requested := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cancellation_requests_total",
		Help:      "Cancellation requests accepted into the grace window.",
	})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cancellation_outcomes_total",
		Help:      "Resolved cancellation tickets by final state and reason.",
	}, []string{"state", "reason"})
	commit := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cancellation_commit_duration_seconds",
		Help:      "Time spent committing a cancellation to the orders store.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cancellation_pending",
		Help:      "Cancellation tickets currently inside their grace window.",
	})
	reg.MustRegister(requested, outcomes, commit, pending)
	return &CancellationMetrics{
		requested: requested,
		outcomes:  outcomes,
		commit:    commit,
		pending:   pending,
	}
}

// IncRequested counts a ticket entering pending confirmation.
func (m *CancellationMetrics) IncRequested() {
	if m == nil || m.requested == nil {
		return
	}
	m.requested.Inc()
}

// RecordOutcome counts a ticket reaching a terminal state.
func (m *CancellationMetrics) RecordOutcome(state, reason string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(state), normalizeLabel(reason)).Inc()
}

// ObserveCommit records how long the authoritative commit took.
func (m *CancellationMetrics) ObserveCommit(duration time.Duration, err error) {
	if m == nil || m.commit == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.commit.WithLabelValues(result).Observe(duration.Seconds())
}

// SetPending publishes the number of tickets awaiting commit.
func (m *CancellationMetrics) SetPending(count int) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(count))
}
