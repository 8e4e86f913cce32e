package worker

import (
	"time"

	"github.com/driftline/wsrpc/pkg/wsrpc/session"
)

// Command is the closed set of values the Shell's command channel
// accepts, mirroring spec.md §4.4's command table. RequestID is a
// host-chosen correlation key, unrelated to the wire-level numeric
// request id the correlator assigns internally.
type Command interface{ isWorkerCommand() }

// Connect calls Session.Connect and resolves RequestID's Reply on the
// first transition to Connected, or rejects it if the session reaches
// Disconnected/Error before that.
type Connect struct {
	RequestID string
	Config    session.Config
}

// Disconnect calls Session.Disconnect and resolves RequestID's Reply
// once the session reaches Disconnected.
type Disconnect struct {
	RequestID string
}

// SendRequest reconstructs a typed request from CommandType + Params
// via the command registry and dispatches it through the Correlator.
type SendRequest struct {
	RequestID   string
	CommandType string
	Params      any
	Timeout     time.Duration
}

// Subscribe creates a subscription via the subscription registry,
// issues the subscribe request, and responds with {subscriptionId}.
type Subscribe struct {
	RequestID        string
	SubscriptionName string
	Params           any
	InternalID       string
	Timeout          time.Duration
}

// Unsubscribe fires the unsubscribe request and removes routing.
type Unsubscribe struct {
	RequestID      string
	SubscriptionID string
	Timeout        time.Duration
}

func (Connect) isWorkerCommand()     {}
func (Disconnect) isWorkerCommand()  {}
func (SendRequest) isWorkerCommand() {}
func (Subscribe) isWorkerCommand()   {}
func (Unsubscribe) isWorkerCommand() {}
