package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.MessageReceived("request")
	m.MessageReceived("request")
	m.MessageReceived("notification")
	m.ReplySent("result")
	m.UnknownReply()
	m.Cancellation(true)
	m.Cancellation(false)
	m.Cancellation(false)
	m.PendingDelta(3)
	m.PendingDelta(-1)
	m.InFlightDelta(1)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.messagesReceived.WithLabelValues("request")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.messagesReceived.WithLabelValues("notification")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.repliesSent.WithLabelValues("result")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.unknownReplies))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cancellations.WithLabelValues("hit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.cancellations.WithLabelValues("miss")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.pendingRequests))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.inFlightTasks))
}

func TestMetrics_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageReceived("request")
		m.ReplySent("error")
		m.UnknownReply()
		m.Cancellation(true)
		m.PendingDelta(1)
		m.InFlightDelta(-1)
	})
}
