package worker

import "github.com/driftline/wsrpc/pkg/wsrpc/session"

// Event is the closed set of values the Shell posts to its event
// channel, mirroring spec.md §4.4's event table. Only plain structural
// values cross this boundary — never a raw frame or a shared pointer
// into Session/Correlator state.
type Event interface{ isWorkerEvent() }

// Reply answers a Connect/Disconnect/SendRequest/Subscribe/Unsubscribe
// command by RequestID. Exactly one of Data or the error fields is
// populated depending on IsError.
type Reply struct {
	RequestID    string
	IsError      bool
	Data         any
	ErrorMessage string
	ErrorCode    string
}

// Notification carries one decoded payload for an active subscription,
// keyed by the worker-stable InternalID the host chose at Subscribe
// time.
type Notification struct {
	InternalID string
	Data       any
}

// StateChanged mirrors a Session status transition.
type StateChanged struct {
	Status session.Status
}

func (Reply) isWorkerEvent()        {}
func (Notification) isWorkerEvent() {}
func (StateChanged) isWorkerEvent() {}
