package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	rec.IncCounter(RequestsTotal, map[string]string{"method": "ping"})
	rec.IncCounter(RequestsTotal, map[string]string{"method": "ping"})
	rec.IncCounter(RequestTimeouts, map[string]string{"method": "ping"})
	rec.ObserveLatency(RequestLatency, 10*time.Millisecond, map[string]string{"method": "ping"})

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.counters.WithLabelValues(RequestsTotal, "ping")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.counters.WithLabelValues(RequestTimeouts, "ping")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.histogram))

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err, "collectors register once per registry")
}

func TestNoopRecorder(t *testing.T) {
	var rec Recorder = NoopRecorder{}
	rec.IncCounter(RequestsTotal, nil)
	rec.ObserveLatency(RequestLatency, time.Second, nil)
}
