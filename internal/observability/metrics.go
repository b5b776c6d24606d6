package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of the vehicle-tracking service,
// grouped by jobs, remote invocations, HTTP triggers and events. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// JobsStarted counts workflow executions started by this process.
	JobsStarted prometheus.Counter

	// JobsCompleted counts jobs that finished with success=true.
	JobsCompleted prometheus.Counter

	// JobsFailed counts jobs that finished with success=false, labeled by reason
	// (job_failure, timeout, cancelled, invocation, runtime).
	JobsFailed *prometheus.CounterVec

	// JobDuration observes end-to-end job duration in seconds.
	JobDuration prometheus.Histogram

	// InvocationAttempts counts remote processor calls, labeled by transport
	// and outcome (success, job_failure, retryable, invocation, timeout,
	// cancelled).
	InvocationAttempts *prometheus.CounterVec

	// InvocationDuration observes one remote call in seconds, labeled by transport.
	InvocationDuration *prometheus.HistogramVec

	// Heartbeats counts liveness signals recorded by the invoker.
	Heartbeats prometheus.Counter

	// CaseTriggers counts HTTP processing triggers, labeled by outcome
	// (accepted, rejected, rate_limited).
	CaseTriggers *prometheus.CounterVec

	// EventsPublished counts Kafka messages, labeled by topic and outcome.
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates metrics registered with the default Prometheus registry.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates metrics registered with reg.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of video-tracking jobs started",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of video-tracking jobs completed successfully",
		}),
		JobsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of video-tracking jobs that failed, by reason",
		}, []string{"reason"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "End-to-end duration of video-tracking jobs",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 2100},
		}),
		InvocationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocation_attempts_total",
			Help:      "Remote processor invocation attempts, by transport and outcome",
		}, []string{"transport", "outcome"}),
		InvocationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Duration of one remote processor call",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800},
		}, []string{"transport"}),
		Heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Activity heartbeats recorded while waiting on the remote processor",
		}),
		CaseTriggers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "case_triggers_total",
			Help:      "HTTP processing triggers, by outcome",
		}, []string{"outcome"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Kafka events published, by topic and outcome",
		}, []string{"topic", "outcome"}),
	}
}

// RecordJobStarted increments the started jobs counter.
func (m *Metrics) RecordJobStarted() {
	if m == nil {
		return
	}
	m.JobsStarted.Inc()
}

// RecordJobCompleted records a successful job and its duration.
func (m *Metrics) RecordJobCompleted(durationSeconds float64) {
	if m == nil {
		return
	}
	m.JobsCompleted.Inc()
	m.JobDuration.Observe(durationSeconds)
}

// RecordJobFailed records a failed job, its reason and its duration.
func (m *Metrics) RecordJobFailed(reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.JobsFailed.WithLabelValues(reason).Inc()
	m.JobDuration.Observe(durationSeconds)
}

// RecordInvocation records one remote call.
func (m *Metrics) RecordInvocation(transport, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.InvocationAttempts.WithLabelValues(transport, outcome).Inc()
	m.InvocationDuration.WithLabelValues(transport).Observe(durationSeconds)
}

// RecordHeartbeat increments the heartbeat counter.
func (m *Metrics) RecordHeartbeat() {
	if m == nil {
		return
	}
	m.Heartbeats.Inc()
}

// RecordCaseTrigger records an HTTP trigger outcome.
func (m *Metrics) RecordCaseTrigger(outcome string) {
	if m == nil {
		return
	}
	m.CaseTriggers.WithLabelValues(outcome).Inc()
}

// RecordEventPublished records a Kafka publish outcome.
func (m *Metrics) RecordEventPublished(topic, outcome string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(topic, outcome).Inc()
}
