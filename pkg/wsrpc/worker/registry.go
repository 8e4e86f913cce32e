package worker

import "github.com/driftline/wsrpc/pkg/wsrpc/correlator"

// RequestSpec is the command registry entry spec.md §4.4 calls for:
// "reconstructs the typed command from commandType + params via the
// command registry". One RequestSpec is registered per CommandType
// string a SendRequest command may name.
type RequestSpec interface {
	// Route returns the wire route this command dispatches to.
	Route() string

	// Decode decodes a successful reply's payload into an application
	// value.
	Decode(payload []byte) (any, error)
}

// Registry holds the fixed set of request and subscription kinds a
// Shell knows how to dispatch. A command naming an unknown
// CommandType/SubscriptionName is logged and answered with an error
// Reply (code UnknownCommandType or UnknownSubscription).
type Registry struct {
	requests map[string]RequestSpec
	subs     map[string]correlator.SubscriptionSpec
}

// NewRegistry returns an empty Registry ready for RegisterRequest /
// RegisterSubscription calls.
func NewRegistry() *Registry {
	return &Registry{
		requests: make(map[string]RequestSpec),
		subs:     make(map[string]correlator.SubscriptionSpec),
	}
}

// RegisterRequest binds commandType to spec for SendRequest commands.
func (r *Registry) RegisterRequest(commandType string, spec RequestSpec) {
	r.requests[commandType] = spec
}

// RegisterSubscription binds subscriptionName to spec for Subscribe
// commands.
func (r *Registry) RegisterSubscription(subscriptionName string, spec correlator.SubscriptionSpec) {
	r.subs[subscriptionName] = spec
}

func (r *Registry) request(commandType string) (RequestSpec, bool) {
	spec, ok := r.requests[commandType]
	return spec, ok
}

func (r *Registry) subscription(name string) (correlator.SubscriptionSpec, bool) {
	spec, ok := r.subs[name]
	return spec, ok
}
