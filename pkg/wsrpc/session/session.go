// Package session lifts a raw Transport into a session with a stable
// identity across brief disconnects: it owns the state machine, the
// keepalive timer, and the reconnect loop described by the transport
// spec's session component.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/wsrpc/pkg/wsrpc/transport"
	"github.com/driftline/wsrpc/pkg/wsrpc/wire"
)

type mgmtKind int

const (
	mgmtNone mgmtKind = iota
	mgmtCreate
	mgmtKeepalive
	mgmtDestroy
)

// Session implements transport.Observer and drives one Transport through
// the state table in spec.md §4.2. All mutable state is owned by a single
// internal goroutine; every external interaction — Connect, Disconnect,
// and every transport.Observer callback — is a value posted onto an
// internal event channel, so there is never a lock to take or a
// reentrancy hazard between a transport callback and a caller's method.
type Session struct {
	transport transport.Transport
	logger    *slog.Logger

	events chan event
	done   chan struct{}
	wg     sync.WaitGroup

	observersMu sync.RWMutex
	observers   []Observer

	statusMu sync.RWMutex
	status   Status

	// Fields below are owned exclusively by loop() / handle().
	cfg                   Config
	reconnectAttemptsLeft int
	lastReceivedAt        time.Time
	lastKeepaliveSentAt   time.Time
	keepaliveFailures     int
	pendingMgmtReqID      uint64
	pendingMgmtKind       mgmtKind
	reconnectTimer        *time.Timer
	keepaliveTimer        *time.Timer
	disconnectNotified    bool
}

// New constructs a Session bound to transport. The Session immediately
// starts its internal event loop; call Dispose to stop it.
func New(t transport.Transport, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		transport: t,
		logger:    logger,
		events:    make(chan event, 64),
		done:      make(chan struct{}),
		status:    Status{State: Disconnected},
	}

	t.SetObserver(s)

	s.wg.Add(1)
	go s.loop()

	return s
}

// AddObserver registers an Observer. Every Observer registered receives
// every notification; there is no unregister, matching the worker
// shell's single-consumer usage.
func (s *Session) AddObserver(obs Observer) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, obs)
}

// Status returns a point-in-time snapshot, safe to call from any
// goroutine.
func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Connect begins the Disconnected -> Connecting transition. It returns
// immediately; the outcome is delivered via the registered Observers'
// OnConnected/OnDisconnected/OnStateChanged callbacks.
func (s *Session) Connect(cfg Config) {
	s.post(evConnect{cfg: cfg})
}

// Disconnect begins a best-effort graceful shutdown of the current
// session, per spec.md §4.2's "any -> disconnect() -> Disconnected" row.
func (s *Session) Disconnect() {
	s.post(evDisconnect{})
}

// SendApplication sends an application-level request over the current
// session. It fails fast with transport.ErrNotConnected if the session
// is not Connected, per spec.md §4.3's "no implicit queueing" rule.
func (s *Session) SendApplication(route string, requestID uint64, payload any) error {
	st := s.Status()
	if st.State != Connected {
		return transport.ErrNotConnected
	}

	msg, err := wire.NewRequest(route, st.SessionID, requestID, payload)
	if err != nil {
		return err
	}

	return s.transport.Send(wire.Encode(msg))
}

// Dispose stops the internal event loop, timers, and the transport.
// After Dispose returns, no further Observer notifications are sent.
func (s *Session) Dispose() {
	select {
	case <-s.done:
		return
	default:
	}

	close(s.done)
	s.wg.Wait()
	s.transport.Disconnect()
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) loop() {
	defer s.wg.Done()

	for {
		select {
		case ev := <-s.events:
			s.handle(ev)
		case <-s.done:
			s.stopTimers()
			return
		}
	}
}

// --- transport.Observer ---

func (s *Session) OnOpen()             { s.post(evTransportOpen{}) }
func (s *Session) OnBytes(data []byte) { s.post(evTransportBytes{data: data}) }
func (s *Session) OnClose(err error)   { s.post(evTransportClose{err: err}) }
func (s *Session) OnError(err error)   { s.post(evTransportError{err: err}) }

// --- event handling (single-goroutine owned) ---

func (s *Session) handle(ev event) {
	switch e := ev.(type) {
	case evConnect:
		s.handleConnect(e.cfg)
	case evDisconnect:
		s.handleDisconnect()
	case evTransportOpen:
		s.handleTransportOpen()
	case evTransportBytes:
		s.handleTransportBytes(e.data)
	case evTransportClose:
		s.handleTransportClose()
	case evTransportError:
		s.logger.Warn("session: transport error (advisory)", "error", e.err)
	case evReconnectTick:
		s.handleReconnectTick()
	case evKeepaliveTick:
		s.handleKeepaliveTick()
	}
}

func (s *Session) handleConnect(cfg Config) {
	if cfg.ClientSessionID == "" {
		cfg.ClientSessionID = uuid.NewString()
	}

	s.cfg = cfg
	s.reconnectAttemptsLeft = cfg.MaxReconnectAttempts
	s.disconnectNotified = false

	s.setState(Connecting, "")

	if err := s.transport.Connect(cfg.URL); err != nil {
		s.logger.Warn("session: initial connect failed", "error", err)
	}
}

func (s *Session) handleDisconnect() {
	st := s.Status()

	if st.State == Connected {
		reqID := wire.NextRequestID()
		if msg, err := wire.NewRequest(wire.RouteSessionDestroy, st.SessionID, reqID, wire.SessionDestroyParams{}); err == nil {
			_ = s.transport.Send(wire.Encode(msg))
		}
	}

	s.stopTimers()
	s.transport.Disconnect()

	wasDisconnected := st.State == Disconnected
	s.setState(Disconnected, "")

	if !wasDisconnected {
		s.notifyDisconnected()
	}
}

func (s *Session) handleTransportOpen() {
	st := s.Status()
	if st.State != Connecting {
		return
	}

	s.setState(SessionInit, "")

	reqID := wire.NextRequestID()
	s.pendingMgmtReqID = reqID
	s.pendingMgmtKind = mgmtCreate

	msg, err := wire.NewRequest(wire.RouteSessionCreate, "", reqID, wire.SessionCreateParams{
		ClientSessionID: s.cfg.ClientSessionID,
	})
	if err != nil {
		s.logger.Error("session: failed to build SessionCreate", "error", err)
		return
	}

	if err := s.transport.Send(wire.Encode(msg)); err != nil {
		s.logger.Warn("session: failed to send SessionCreate", "error", err)
	}
}

func (s *Session) handleTransportClose() {
	st := s.Status()

	switch st.State {
	case Disconnected, KeepaliveFailed:
		// A close while Disconnected follows disconnect(), which already
		// notified observers. KeepaliveFailed never outlasts
		// forceReconnectAfterKeepaliveFailure, which moves on to
		// Connecting in the same handler; the connection it drops reports
		// no close, because Transport.Disconnect detaches it.
		return
	}

	s.stopTimers()

	if s.reconnectAttemptsLeft > 0 {
		s.reconnectAttemptsLeft--
		s.setState(Connecting, "")
		s.startReconnectTimer()
		return
	}

	s.setState(Disconnected, "")
	s.notifyDisconnected()
}

func (s *Session) handleReconnectTick() {
	s.reconnectTimer = nil

	if err := s.transport.Connect(s.cfg.URL); err != nil {
		s.logger.Warn("session: reconnect attempt failed", "error", err)
	}
}

func (s *Session) handleTransportBytes(data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		s.logger.Warn("session: failed to decode frame", "error", err)
		return
	}

	switch msg.Variant {
	case wire.VariantReply:
		s.handleReply(msg)
	case wire.VariantNotification:
		s.handleNotification(msg)
	default:
		s.logger.Warn("session: unexpected frame variant from server", "variant", msg.Variant)
	}
}

func (s *Session) handleReply(msg *wire.Message) {
	if s.pendingMgmtKind != mgmtNone && msg.RequestID == s.pendingMgmtReqID {
		s.handleMgmtReply(msg)
		return
	}

	st := s.Status()
	if st.SessionID != "" && msg.SessionID != st.SessionID {
		s.logger.Warn("session: dropping reply for mismatched session", "requestId", msg.RequestID)
		return
	}

	s.lastReceivedAt = time.Now()
	s.notifyMessage(SessionMessage{
		Kind: KindReply,
		Reply: &ReplyMessage{
			RequestID: msg.RequestID,
			Status:    msg.Status,
			Payload:   msg.Payload,
		},
	})
}

func (s *Session) handleNotification(msg *wire.Message) {
	st := s.Status()
	if st.SessionID == "" || msg.SessionID != st.SessionID {
		s.logger.Warn("session: dropping notification for mismatched session", "subscriptionId", msg.SubscriptionID)
		return
	}

	s.lastReceivedAt = time.Now()
	s.notifyMessage(SessionMessage{
		Kind: KindNotification,
		Notify: &NotificationMessage{
			SubscriptionID: msg.SubscriptionID,
			Payload:        msg.Payload,
		},
	})
}

func (s *Session) handleMgmtReply(msg *wire.Message) {
	kind := s.pendingMgmtKind
	s.pendingMgmtKind = mgmtNone
	s.pendingMgmtReqID = 0

	switch kind {
	case mgmtCreate:
		s.handleSessionCreateReply(msg)
	case mgmtKeepalive:
		s.handleSessionKeepaliveReply(msg)
	case mgmtDestroy:
		// fire-and-forget; nothing to do once acknowledged.
	}
}

func (s *Session) handleSessionCreateReply(msg *wire.Message) {
	if !msg.IsSuccess() {
		s.logger.Error("session: SessionCreate rejected", "status", msg.Status)
		s.handleTransportClose()
		return
	}

	var result wire.SessionCreateResult
	if err := msg.UnmarshalPayload(&result); err != nil || result.SessionID == "" {
		s.logger.Error("session: malformed SessionCreateReply", "error", err)
		s.handleTransportClose()
		return
	}

	now := time.Now()
	s.lastReceivedAt = now
	s.lastKeepaliveSentAt = now
	s.keepaliveFailures = 0
	s.reconnectAttemptsLeft = s.cfg.MaxReconnectAttempts

	s.setState(Connected, result.SessionID)
	s.startKeepaliveTimer()
	s.notifyConnected(result.SessionID)
}

func (s *Session) handleSessionKeepaliveReply(msg *wire.Message) {
	st := s.Status()
	if msg.SessionID != st.SessionID {
		s.logger.Warn("session: keepalive reply for mismatched session, ignoring")
		return
	}

	s.keepaliveFailures = 0
	s.reconnectAttemptsLeft = s.cfg.MaxReconnectAttempts
}

func (s *Session) handleKeepaliveTick() {
	st := s.Status()
	if st.State != Connected {
		return
	}

	now := time.Now()
	sinceReceived := now.Sub(s.lastReceivedAt)
	sinceSent := now.Sub(s.lastKeepaliveSentAt)

	if sinceReceived >= s.cfg.KeepaliveInterval && sinceSent >= s.cfg.KeepaliveInterval {
		s.sendKeepalive(st.SessionID, now)
	}

	if s.keepaliveFailures >= s.cfg.MaxKeepaliveFailures {
		s.forceReconnectAfterKeepaliveFailure()
		return
	}

	s.scheduleKeepaliveTimer()
}

func (s *Session) sendKeepalive(sessionID string, now time.Time) {
	reqID := wire.NextRequestID()
	s.pendingMgmtReqID = reqID
	s.pendingMgmtKind = mgmtKeepalive
	s.lastKeepaliveSentAt = now
	s.keepaliveFailures++

	msg, err := wire.NewRequest(wire.RouteSessionKeepalive, sessionID, reqID, wire.SessionKeepaliveParams{})
	if err != nil {
		s.logger.Error("session: failed to build SessionKeepalive", "error", err)
		return
	}

	if err := s.transport.Send(wire.Encode(msg)); err != nil {
		s.logger.Warn("session: failed to send SessionKeepalive", "error", err)
	}
}

// forceReconnectAfterKeepaliveFailure implements the unification decided
// in DESIGN.md for spec.md §9's open question (c): a keepalive failure is
// evidence of a stale socket, not exhausted policy, so the attempt budget
// is fully reset rather than decremented.
func (s *Session) forceReconnectAfterKeepaliveFailure() {
	s.stopTimers()
	s.setState(KeepaliveFailed, "")
	s.transport.Disconnect()

	s.reconnectAttemptsLeft = s.cfg.MaxReconnectAttempts
	s.pendingMgmtKind = mgmtNone
	s.pendingMgmtReqID = 0

	s.setState(Connecting, "")

	if err := s.transport.Connect(s.cfg.URL); err != nil {
		s.logger.Warn("session: reconnect after keepalive failure did not dial", "error", err)
	}
}

func (s *Session) startReconnectTimer() {
	if s.reconnectTimer != nil {
		return
	}

	s.reconnectTimer = time.AfterFunc(s.cfg.ReconnectInterval, func() {
		s.post(evReconnectTick{})
	})
}

func (s *Session) startKeepaliveTimer() {
	s.scheduleKeepaliveTimer()
}

func (s *Session) scheduleKeepaliveTimer() {
	if s.keepaliveTimer != nil {
		s.keepaliveTimer.Stop()
	}

	s.keepaliveTimer = time.AfterFunc(s.cfg.KeepaliveInterval, func() {
		s.post(evKeepaliveTick{})
	})
}

func (s *Session) stopTimers() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}

	if s.keepaliveTimer != nil {
		s.keepaliveTimer.Stop()
		s.keepaliveTimer = nil
	}
}

func (s *Session) setState(state State, sessionID string) {
	s.statusMu.Lock()
	s.status = Status{
		State:                 state,
		SessionID:             sessionID,
		ReconnectAttemptsLeft: s.reconnectAttemptsLeft,
	}
	s.statusMu.Unlock()

	s.notifyStateChanged(s.Status())
}

func (s *Session) notifyStateChanged(status Status) {
	for _, obs := range s.snapshotObservers() {
		obs.OnStateChanged(status)
	}
}

func (s *Session) notifyConnected(sessionID string) {
	for _, obs := range s.snapshotObservers() {
		obs.OnConnected(sessionID)
	}
}

func (s *Session) notifyDisconnected() {
	if s.disconnectNotified {
		return
	}

	s.disconnectNotified = true

	for _, obs := range s.snapshotObservers() {
		obs.OnDisconnected()
	}
}

func (s *Session) notifyMessage(msg SessionMessage) {
	for _, obs := range s.snapshotObservers() {
		obs.OnMessage(msg)
	}
}

func (s *Session) snapshotObservers() []Observer {
	s.observersMu.RLock()
	defer s.observersMu.RUnlock()
	return append([]Observer(nil), s.observers...)
}
