package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CertificationMetrics records state machine activity.
type CertificationMetrics struct {
	submissions    prometheus.Counter
	statusChecks   *prometheus.CounterVec
	windowsOpened  prometheus.Counter
	batches        *prometheus.CounterVec
	completed      *prometheus.CounterVec
	evaluationTime *prometheus.HistogramVec
}

// NewCertificationMetrics registers the certification metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewCertificationMetrics(reg prometheus.Registerer) *CertificationMetrics {
	if reg == nil {
		return &CertificationMetrics{}
	}
	submissions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certification_submissions_total",
		Help: "Certifications created.",
	})
	statusChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certification_status_checks_total",
		Help: "Status evaluations by strategy and outcome.",
	}, []string{"strategy", "outcome"})
	windowsOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certification_windows_opened_total",
		Help: "Success windows opened.",
	})
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certification_batches_completed_total",
		Help: "Batch completions that flipped at least one certification.",
	}, []string{"strategy"})
	completed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certifications_completed_total",
		Help: "Certifications flipped to completed.",
	}, []string{"strategy"})
	evaluationTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "certification_evaluation_duration_seconds",
		Help:    "Time spent evaluating a store while holding its row lock.",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})
	reg.MustRegister(submissions, statusChecks, windowsOpened, batches, completed, evaluationTime)
	return &CertificationMetrics{
		submissions:    submissions,
		statusChecks:   statusChecks,
		windowsOpened:  windowsOpened,
		batches:        batches,
		completed:      completed,
		evaluationTime: evaluationTime,
	}
}

func (c *CertificationMetrics) IncSubmission() {
	if c == nil || c.submissions == nil {
		return
	}
	c.submissions.Inc()
}

// IncStatusCheck counts a status evaluation; outcome is pending, completed or error.
func (c *CertificationMetrics) IncStatusCheck(strategy, outcome string) {
	if c == nil || c.statusChecks == nil {
		return
	}
	c.statusChecks.WithLabelValues(normalizeLabel(strategy), normalizeLabel(outcome)).Inc()
}

func (c *CertificationMetrics) IncWindowOpened() {
	if c == nil || c.windowsOpened == nil {
		return
	}
	c.windowsOpened.Inc()
}

// AddCompleted records one batch that flipped count certifications.
func (c *CertificationMetrics) AddCompleted(strategy string, count int) {
	if c == nil || c.batches == nil || count <= 0 {
		return
	}
	c.batches.WithLabelValues(normalizeLabel(strategy)).Inc()
	c.completed.WithLabelValues(normalizeLabel(strategy)).Add(float64(count))
}

func (c *CertificationMetrics) ObserveEvaluation(strategy string, duration time.Duration) {
	if c == nil || c.evaluationTime == nil {
		return
	}
	c.evaluationTime.WithLabelValues(normalizeLabel(strategy)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
