package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordsValues(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest("POST", 201, 20*time.Millisecond)
	m.ObserveRequest("POST", 201, 30*time.Millisecond)
	m.ObserveRetry("rate_limited")
	m.ObserveEntity("roles", "created")
	m.RunStarted()
	m.SetProgress(0.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.APIRequests.WithLabelValues("POST", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIRetries.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntitiesProcessed.WithLabelValues("roles", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveRuns))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.RunProgress))

	m.RunFinished("completed")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("completed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("GET", 200, time.Second)
		m.ObserveRetry("network")
		m.ObserveEntity("messages", "failed")
		m.RunStarted()
		m.SetProgress(1)
		m.RunFinished("failed")
	})
}
