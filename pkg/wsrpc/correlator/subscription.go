package correlator

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/driftline/wsrpc/pkg/wsrpc/session"
)

// SubscriptionState is the state of an ActiveSubscription: Active once
// the server has assigned a subscriptionId, Closed once unsubscribed or
// the session drops. Subscribe creates the entry only when the subscribe
// reply arrives, already Active; no entry exists while the request is
// in flight, and SubscriptionPending is never assigned by this package.
type SubscriptionState int

const (
	SubscriptionPending SubscriptionState = iota
	SubscriptionActive
	SubscriptionClosed
)

// SubscriptionSpec knows how to build the wire requests for a particular
// subscription kind and how to decode its notification payloads. It is
// the "registry vtable" spec.md §9 calls for: the only place a
// particular subscription's wire shape is mentioned.
type SubscriptionSpec interface {
	// SubscribeRequest builds the route and payload for the initial
	// subscribe request.
	SubscribeRequest(params any) (route string, payload any)

	// UnsubscribeRequest builds the route and payload for tearing down
	// subscriptionID.
	UnsubscribeRequest(subscriptionID string) (route string, payload any)

	// Deserialize decodes one notification payload.
	Deserialize(payload []byte) (any, error)
}

type subscribeReply struct {
	SubscriptionID string `json:"subscriptionId"`
}

// ActiveSubscription is the registry entry routing notifications by
// server-assigned subscriptionId to a caller's sink.
type ActiveSubscription struct {
	SubscriptionID string
	InternalID     string

	spec SubscriptionSpec

	mu    sync.Mutex
	state SubscriptionState

	sink    func(any)
	onError func(error)
}

func (s *ActiveSubscription) State() SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe issues spec's subscribe request, and on success registers a
// routing entry so future notifications for the assigned subscriptionId
// reach sink. onDone is invoked exactly once with the subscriptionId or
// an error.
func (c *Correlator) Subscribe(
	spec SubscriptionSpec,
	params any,
	internalID string,
	sink func(any),
	onError func(error),
	timeout time.Duration,
	onDone func(subscriptionID string, err error),
) {
	route, payload := spec.SubscribeRequest(params)

	c.SendRequest(route, payload, decodeSubscribeReply, timeout, func(result any, err error) {
		if err != nil {
			onDone("", err)
			return
		}

		subID := result.(string)

		sub := &ActiveSubscription{
			SubscriptionID: subID,
			InternalID:     internalID,
			spec:           spec,
			state:          SubscriptionActive,
			sink:           sink,
			onError:        onError,
		}

		c.mu.Lock()
		c.subs[subID] = sub
		c.mu.Unlock()

		onDone(subID, nil)
	})
}

func decodeSubscribeReply(payload []byte) (any, error) {
	var reply subscribeReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return nil, err
	}

	if reply.SubscriptionID == "" {
		return nil, ErrDecodeFailure
	}

	return reply.SubscriptionID, nil
}

// Unsubscribe removes the routing entry immediately (so late
// notifications are dropped) and fires the unsubscribe request without
// waiting for its reply; a timeout or error on that request is only
// logged, per spec.md §4.3.
func (c *Correlator) Unsubscribe(subscriptionID string, defaultTimeout time.Duration) {
	c.mu.Lock()
	sub, ok := c.subs[subscriptionID]
	if ok {
		delete(c.subs, subscriptionID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	sub.mu.Lock()
	sub.state = SubscriptionClosed
	sub.mu.Unlock()

	route, payload := sub.spec.UnsubscribeRequest(subscriptionID)

	c.SendRequest(route, payload, func(b []byte) (any, error) { return struct{}{}, nil }, defaultTimeout, func(_ any, err error) {
		if err != nil {
			c.logger.Warn("correlator: unsubscribe request failed", "subscriptionId", subscriptionID, "error", err)
		}
	})
}

// ActiveSubscriptionCount reports the number of registered routing
// entries; used by internal/metrics.
func (c *Correlator) ActiveSubscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Correlator) handleNotification(n *session.NotificationMessage) {
	c.mu.Lock()
	sub, ok := c.subs[n.SubscriptionID]
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("correlator: notification for unknown subscription", "subscriptionId", n.SubscriptionID)
		return
	}

	if sub.State() != SubscriptionActive {
		return
	}

	decoded, err := sub.spec.Deserialize(n.Payload)
	if err != nil {
		c.logger.Warn("correlator: failed to decode notification", "subscriptionId", n.SubscriptionID, "error", err)
		if sub.onError != nil {
			sub.onError(err)
		}
		return
	}

	sub.sink(decoded)
}
