package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "flowplugin"

// Metrics holds the Prometheus collectors for one or more RPC connections.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	messagesReceived *prometheus.CounterVec
	repliesSent      *prometheus.CounterVec
	unknownReplies   prometheus.Counter
	cancellations    *prometheus.CounterVec
	pendingRequests  prometheus.Gauge
	inFlightTasks    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_received_total",
			Help:      "Inbound JSON-RPC messages by kind.",
		}, []string{"kind"}),
		repliesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "replies_sent_total",
			Help:      "Replies written for inbound requests by outcome.",
		}, []string{"outcome"}),
		unknownReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "unknown_correlation_total",
			Help:      "Replies that matched no pending outbound request.",
		}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cancellations_total",
			Help:      "Cancellation notifications by result.",
		}, []string{"result"}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_requests",
			Help:      "Outbound requests awaiting a reply.",
		}),
		inFlightTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "inflight_tasks",
			Help:      "Inbound requests currently being handled.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.messagesReceived, m.repliesSent, m.unknownReplies,
			m.cancellations, m.pendingRequests, m.inFlightTasks,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// MessageReceived counts one inbound message of the given kind.
func (m *Metrics) MessageReceived(kind string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(kind).Inc()
}

// ReplySent counts one reply with the given outcome ("result", "error", "cancelled").
func (m *Metrics) ReplySent(outcome string) {
	if m == nil {
		return
	}
	m.repliesSent.WithLabelValues(outcome).Inc()
}

// UnknownReply counts a reply whose id had no pending waiter.
func (m *Metrics) UnknownReply() {
	if m == nil {
		return
	}
	m.unknownReplies.Inc()
}

// Cancellation counts a cancel notification; found reports whether a task matched.
func (m *Metrics) Cancellation(found bool) {
	if m == nil {
		return
	}
	result := "miss"
	if found {
		result = "hit"
	}
	m.cancellations.WithLabelValues(result).Inc()
}

// PendingDelta adjusts the pending outbound request gauge.
func (m *Metrics) PendingDelta(d float64) {
	if m == nil {
		return
	}
	m.pendingRequests.Add(d)
}

// InFlightDelta adjusts the in-flight inbound task gauge.
func (m *Metrics) InFlightDelta(d float64) {
	if m == nil {
		return
	}
	m.inFlightTasks.Add(d)
}
