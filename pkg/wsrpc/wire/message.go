// Package wire implements the framed message codec described as an
// abstracted collaborator by the transport spec: a tagged-union binary
// frame carrying a session id, a request id (for Request/Reply), and one
// of the Request/Reply/Notification payload variants. Session and
// Correlator never see raw bytes; they only ever handle *Message.
package wire

import (
	"encoding/json"
	"sync/atomic"
)

// Variant tags the payload carried by a Message.
type Variant string

const (
	VariantRequest      Variant = "request"
	VariantReply        Variant = "reply"
	VariantNotification Variant = "notification"
)

// Session-management command names. These are the only Request routes
// Session itself ever issues; everything else is application traffic
// forwarded upward by Session unmodified.
const (
	RouteSessionCreate    = "session.create"
	RouteSessionKeepalive = "session.keepalive"
	RouteSessionDestroy   = "session.destroy"
)

// StatusSuccess is the literal success code a Reply status must carry;
// anything else is a ServerError, echoed verbatim to the caller.
const StatusSuccess = "SUCCESS"

var requestIDCounter atomic.Uint64

// NextRequestID hands out a process-wide unique request id. It never
// resets, so a request id is never reused within one process lifetime.
func NextRequestID() uint64 {
	return requestIDCounter.Add(1)
}

// Message is the single wire-level type shared by Transport and Session.
// Route is only meaningful on Request; Status only on Reply;
// SubscriptionID only on Notification.
type Message struct {
	Variant        Variant         `json:"variant"`
	RequestID      uint64          `json:"requestId,omitempty"`
	SessionID      string          `json:"sessionId,omitempty"`
	Route          string          `json:"route,omitempty"`
	Status         string          `json:"status,omitempty"`
	SubscriptionID string          `json:"subscriptionId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// NewRequest builds a Request frame. sessionID may be empty for
// SessionCreate, which is the one request sent before a session exists.
func NewRequest(route, sessionID string, requestID uint64, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Variant:   VariantRequest,
		RequestID: requestID,
		SessionID: sessionID,
		Route:     route,
		Payload:   data,
	}, nil
}

// NewReply builds a successful Reply frame for the given request.
func NewReply(requestID uint64, sessionID string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Variant:   VariantReply,
		RequestID: requestID,
		SessionID: sessionID,
		Status:    StatusSuccess,
		Payload:   data,
	}, nil
}

// NewErrorReply builds a failed Reply frame; code is echoed verbatim to
// the caller as ServerError's code.
func NewErrorReply(requestID uint64, sessionID, code string) *Message {
	return &Message{
		Variant:   VariantReply,
		RequestID: requestID,
		SessionID: sessionID,
		Status:    code,
	}
}

// NewNotification builds a Notification frame for an active subscription.
func NewNotification(sessionID, subscriptionID string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Variant:        VariantNotification,
		SessionID:      sessionID,
		SubscriptionID: subscriptionID,
		Payload:        data,
	}, nil
}

// IsSuccess reports whether a Reply's status is the literal success code.
func (m *Message) IsSuccess() bool {
	return m.Status == StatusSuccess
}

// UnmarshalPayload decodes the message payload into v.
func (m *Message) UnmarshalPayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}

	return json.Unmarshal(m.Payload, v)
}

// Session-management payload shapes. These cross the wire as the
// Payload of Request/Reply frames on the session.* routes above.

type SessionCreateParams struct {
	ClientSessionID string `json:"clientSessionId"`
}

type SessionCreateResult struct {
	SessionID string `json:"sessionId"`
}

type SessionKeepaliveParams struct{}

type SessionKeepaliveResult struct{}

type SessionDestroyParams struct{}

type SessionDestroyResult struct{}
