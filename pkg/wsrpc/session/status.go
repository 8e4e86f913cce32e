package session

// State enumerates the session lifecycle states from spec.md §4.2.
type State int

const (
	Disconnected State = iota
	Connecting
	SessionInit
	Connected
	KeepaliveFailed
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case SessionInit:
		return "SessionInit"
	case Connected:
		return "Connected"
	case KeepaliveFailed:
		return "KeepaliveFailed"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Status is the observable snapshot of a Session: its current state, the
// server-assigned session id (only non-empty when State == Connected),
// and the reconnect budget remaining.
type Status struct {
	State                 State
	SessionID             string
	ReconnectAttemptsLeft int
}

// Observer is notified of every Session lifecycle event. Session never
// calls back into its owner directly (spec.md §9's "explicit wiring"):
// it only ever notifies its Observer set.
type Observer interface {
	// OnStateChanged fires on every Status mutation, including
	// transitions that do not change State (e.g. Connecting -> Connecting
	// when a failed attempt schedules the next one).
	OnStateChanged(status Status)

	// OnConnected fires exactly once per successful SessionCreateReply.
	OnConnected(sessionID string)

	// OnDisconnected fires when the session gives up: either the
	// reconnect budget is exhausted, or disconnect() was called.
	OnDisconnected()

	// OnMessage forwards every application-level (non session-management)
	// Reply or Notification whose sessionId matched the current session.
	OnMessage(msg SessionMessage)
}

// SessionMessage is the payload Session forwards upward: either a Reply
// (destined for the Correlator's pending map) or a Notification
// (destined for the subscription registry).
type SessionMessage struct {
	Kind    MessageKind
	Reply   *ReplyMessage
	Notify  *NotificationMessage
}

type MessageKind int

const (
	KindReply MessageKind = iota
	KindNotification
)

type ReplyMessage struct {
	RequestID uint64
	Status    string
	Payload   []byte
}

type NotificationMessage struct {
	SubscriptionID string
	Payload        []byte
}
