package worker

import "github.com/driftline/wsrpc/pkg/wsrpc/session"

// MetricsSink receives pure observation hooks from the Shell; it never
// influences control flow, per spec_full.md §4.7. internal/metrics
// implements this against prometheus client_golang.
type MetricsSink interface {
	SetStatus(state session.State)
	IncReconnectAttempt()
	SetPendingRequests(n int)
	SetActiveSubscriptions(n int)
}

type noopMetrics struct{}

func (noopMetrics) SetStatus(session.State)    {}
func (noopMetrics) IncReconnectAttempt()       {}
func (noopMetrics) SetPendingRequests(int)     {}
func (noopMetrics) SetActiveSubscriptions(int) {}
