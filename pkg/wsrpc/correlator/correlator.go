// Package correlator turns a Session into request/reply and pub/sub
// semantics: it matches replies to outstanding requests by request id,
// applies per-request timeouts, and routes notifications to the
// subscription that asked for them.
package correlator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/driftline/wsrpc/pkg/wsrpc/session"
	"github.com/driftline/wsrpc/pkg/wsrpc/transport"
	"github.com/driftline/wsrpc/pkg/wsrpc/wire"
)

// DecodeFunc decodes a reply or notification payload into an
// application value, or returns an error if the payload is malformed.
type DecodeFunc func(payload []byte) (any, error)

type pendingRequest struct {
	route  string
	decode DecodeFunc
	onDone func(any, error)
	timer  *time.Timer
}

// Correlator owns the pending-request map and the subscription registry
// described by spec.md §4.3. It is driven by being registered as a
// session.Observer; SendRequest/Subscribe/Unsubscribe may be called from
// any goroutine (mirroring the teacher's mutex-guarded pending map).
type Correlator struct {
	sess   *session.Session
	logger *slog.Logger

	mu      sync.Mutex
	pending map[uint64]*pendingRequest
	subs    map[string]*ActiveSubscription
}

// New constructs a Correlator bound to sess and registers itself as a
// session.Observer so it can forward replies/notifications and react to
// session drops.
func New(sess *session.Session, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Correlator{
		sess:    sess,
		logger:  logger,
		pending: make(map[uint64]*pendingRequest),
		subs:    make(map[string]*ActiveSubscription),
	}

	sess.AddObserver(c)

	return c
}

// SendRequest issues route/params over the session and invokes onDone
// exactly once: with the decoded value on success, or with a *TimeoutError,
// *ServerError, ErrDecodeFailure, transport.ErrNotConnected, or
// ErrConnectionClosed on failure. It returns synchronously with
// transport.ErrNotConnected if the session is not Connected — there is
// no implicit send-queueing at this layer.
func (c *Correlator) SendRequest(route string, params any, decode DecodeFunc, timeout time.Duration, onDone func(any, error)) {
	if c.sess.Status().State != session.Connected {
		onDone(nil, transport.ErrNotConnected)
		return
	}

	reqID := wire.NextRequestID()

	pr := &pendingRequest{route: route, decode: decode, onDone: onDone}

	c.mu.Lock()
	c.pending[reqID] = pr
	c.mu.Unlock()

	if err := c.sess.SendApplication(route, reqID, params); err != nil {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()

		onDone(nil, err)

		return
	}

	pr.timer = time.AfterFunc(timeout, func() {
		c.timeoutRequest(reqID, route, timeout)
	})
}

func (c *Correlator) timeoutRequest(reqID uint64, route string, timeout time.Duration) {
	c.mu.Lock()
	pr, ok := c.pending[reqID]
	if ok {
		delete(c.pending, reqID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	pr.onDone(nil, &TimeoutError{Route: route, Timeout: timeout})
}

// PendingCount reports the number of outstanding requests; used by
// internal/metrics.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// --- session.Observer ---

func (c *Correlator) OnStateChanged(session.Status) {}
func (c *Correlator) OnConnected(string)             {}

func (c *Correlator) OnDisconnected() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]*pendingRequest)
	subs := c.subs
	c.subs = make(map[string]*ActiveSubscription)
	c.mu.Unlock()

	for _, pr := range pending {
		pr.timer.Stop()
		pr.onDone(nil, ErrConnectionClosed)
	}

	for _, sub := range subs {
		sub.mu.Lock()
		sub.state = SubscriptionClosed
		sub.mu.Unlock()
	}
}

func (c *Correlator) OnMessage(msg session.SessionMessage) {
	switch msg.Kind {
	case session.KindReply:
		c.handleReply(msg.Reply)
	case session.KindNotification:
		c.handleNotification(msg.Notify)
	}
}

func (c *Correlator) handleReply(r *session.ReplyMessage) {
	c.mu.Lock()
	pr, ok := c.pending[r.RequestID]
	if ok {
		delete(c.pending, r.RequestID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("correlator: reply for unknown request", "requestId", r.RequestID)
		return
	}

	pr.timer.Stop()

	if r.Status != wire.StatusSuccess {
		pr.onDone(nil, &ServerError{Code: r.Status})
		return
	}

	decoded, err := pr.decode(r.Payload)
	if err != nil || decoded == nil {
		pr.onDone(nil, ErrDecodeFailure)
		return
	}

	pr.onDone(decoded, nil)
}
