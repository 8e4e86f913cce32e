// Package metrics exposes the operational gauges and counters
// spec_full.md §4.7 calls for. Every update is pure observation: it
// never feeds back into session, correlator, or worker control flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/driftline/wsrpc/pkg/wsrpc/session"
)

// Metrics implements worker.MetricsSink against prometheus
// client_golang, registered on whichever Registerer the caller passes
// in (the package default registry, or a private one in tests).
type Metrics struct {
	status            *prometheus.GaugeVec
	reconnectAttempts prometheus.Counter
	pendingRequests   prometheus.Gauge
	activeSubs        prometheus.Gauge
}

// New registers wsrpc_session_status, wsrpc_reconnect_attempts_total,
// wsrpc_pending_requests, and wsrpc_active_subscriptions on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wsrpc",
			Subsystem: "session",
			Name:      "status",
			Help:      "1 for the session's current state, 0 for every other state value.",
		}, []string{"state"}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsrpc",
			Name:      "reconnect_attempts_total",
			Help:      "Total reconnect attempts started after the initial connect.",
		}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wsrpc",
			Name:      "pending_requests",
			Help:      "Current size of the correlator's pending-request map.",
		}),
		activeSubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wsrpc",
			Name:      "active_subscriptions",
			Help:      "Current size of the subscription registry.",
		}),
	}

	reg.MustRegister(m.status, m.reconnectAttempts, m.pendingRequests, m.activeSubs)

	for _, s := range allStates {
		m.status.WithLabelValues(s.String()).Set(0)
	}

	return m
}

var allStates = []session.State{
	session.Disconnected,
	session.Connecting,
	session.SessionInit,
	session.Connected,
	session.KeepaliveFailed,
	session.Error,
}

// SetStatus zeroes every state's time series except the current one.
func (m *Metrics) SetStatus(state session.State) {
	for _, s := range allStates {
		if s == state {
			m.status.WithLabelValues(s.String()).Set(1)
		} else {
			m.status.WithLabelValues(s.String()).Set(0)
		}
	}
}

// IncReconnectAttempt increments the reconnect-attempt counter.
func (m *Metrics) IncReconnectAttempt() {
	m.reconnectAttempts.Inc()
}

// SetPendingRequests sets the pending-request gauge to n.
func (m *Metrics) SetPendingRequests(n int) {
	m.pendingRequests.Set(float64(n))
}

// SetActiveSubscriptions sets the active-subscription gauge to n.
func (m *Metrics) SetActiveSubscriptions(n int) {
	m.activeSubs.Set(float64(n))
}
