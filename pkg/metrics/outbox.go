package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics records publisher delivery outcomes.
type OutboxMetrics struct {
	outcomes *prometheus.CounterVec
	lag      *prometheus.HistogramVec
}

// NewOutboxMetrics registers the publisher metrics; a nil registerer yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_total",
		Help: "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	lag := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_publish_lag_seconds",
		Help:    "Delay between an outbox row being written and published.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
	}, []string{"event_type"})
	reg.MustRegister(outcomes, lag)
	return &OutboxMetrics{outcomes: outcomes, lag: lag}
}

// Published counts a delivered row and observes how long it waited.
func (m *OutboxMetrics) Published(eventType string, lag time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(eventType), "published").Inc()
	if lag < 0 {
		lag = 0
	}
	m.lag.WithLabelValues(normalizeLabel(eventType)).Observe(lag.Seconds())
}

// Failed counts a retryable publish failure.
func (m *OutboxMetrics) Failed(eventType string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(eventType), "failed").Inc()
}

// DeadLettered counts a row moved to outbox_dlq.
func (m *OutboxMetrics) DeadLettered(eventType string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(eventType), "dead_lettered").Inc()
}
