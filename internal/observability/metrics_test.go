package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetricsWithRegistry("test_vehicle_tracking", prometheus.NewRegistry())
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_vehicle_tracking_default")

	assert.NotNil(t, m.JobsStarted)
	assert.NotNil(t, m.JobsCompleted)
	assert.NotNil(t, m.JobsFailed)
	assert.NotNil(t, m.JobDuration)
	assert.NotNil(t, m.InvocationAttempts)
	assert.NotNil(t, m.InvocationDuration)
	assert.NotNil(t, m.Heartbeats)
	assert.NotNil(t, m.CaseTriggers)
	assert.NotNil(t, m.EventsPublished)
}

func TestRecordJobLifecycle(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordJobStarted()
	m.RecordJobStarted()
	m.RecordJobCompleted(12)
	m.RecordJobFailed("timeout", 30)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.JobsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsCompleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsFailed.WithLabelValues("timeout")))

	count, err := getHistogramSampleCount(m.JobDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestRecordInvocation(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordInvocation("grpc", "success", 1.5)
	m.RecordInvocation("grpc", "retryable", 0.1)
	m.RecordHeartbeat()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.InvocationAttempts.WithLabelValues("grpc", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InvocationAttempts.WithLabelValues("grpc", "retryable")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Heartbeats))
}

func TestRecordTriggersAndEvents(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCaseTrigger("accepted")
	m.RecordEventPublished("results", "ok")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CaseTriggers.WithLabelValues("accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("results", "ok")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordJobStarted()
		m.RecordJobCompleted(1)
		m.RecordJobFailed("runtime", 1)
		m.RecordInvocation("http", "success", 1)
		m.RecordHeartbeat()
		m.RecordCaseTrigger("accepted")
		m.RecordEventPublished("t", "ok")
	})
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var metric = &dto.Metric{}
	if err := m.Write(metric); err != nil {
		return 0, err
	}

	return metric.Histogram.GetSampleCount(), nil
}
