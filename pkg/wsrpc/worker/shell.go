// Package worker implements the Go-native analogue of the background
// worker described by spec.md §4.4: a dedicated goroutine that
// exclusively owns a Session and Correlator pair, fed by a buffered
// command channel and draining to an event channel. No shared mutable
// state crosses that boundary — only the Command/Event values in this
// package, exchanged by value.
package worker

import (
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/driftline/wsrpc/pkg/wsrpc/correlator"
	"github.com/driftline/wsrpc/pkg/wsrpc/session"
	"github.com/driftline/wsrpc/pkg/wsrpc/transport"
)

// internal signal types fed by Session's observer callbacks into the
// same loop that drains the public command channel, so the two never
// race over sess/cor/registry state.
type signal interface{ isWorkerSignal() }

type sigStateChanged struct{ status session.Status }
type sigConnected struct{ sessionID string }
type sigDisconnected struct{}

func (sigStateChanged) isWorkerSignal() {}
func (sigConnected) isWorkerSignal()    {}
func (sigDisconnected) isWorkerSignal() {}

// Shell runs the worker-side event loop. It is safe to send on
// Commands() from any goroutine; Events() must be drained by exactly
// one consumer (the host facade), matching spec.md §4's single-consumer
// callback contract.
type Shell struct {
	sess *session.Session
	cor  *correlator.Correlator

	logger   *slog.Logger
	registry *Registry
	metrics  MetricsSink

	commands chan Command
	events   chan Event
	signals  chan signal

	done chan struct{}
	grp  *errgroup.Group

	pendingConnectReqID    string
	pendingDisconnectReqID string
	seenFirstConnecting    bool
}

// Option configures a Shell at construction time.
type Option func(*Shell)

// WithMetrics attaches a MetricsSink. The Shell sets the status (and
// counts reconnect attempts) on every state change, the pending-request
// gauge when a SendRequest is issued and when it completes, and the
// subscription gauge when a Subscribe completes and on Unsubscribe.
// Other correlator changes, such as the maps being cleared on session
// drop, are not reflected until the next of these updates.
func WithMetrics(m MetricsSink) Option {
	return func(s *Shell) { s.metrics = m }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Shell) { s.logger = l }
}

// New builds a Shell around a fresh Session/Correlator pair wrapping t,
// and starts its event loop goroutine immediately. Call Dispose to
// stop it.
func New(t transport.Transport, registry *Registry, opts ...Option) *Shell {
	s := &Shell{
		logger:   slog.Default(),
		registry: registry,
		metrics:  noopMetrics{},
		commands: make(chan Command, 32),
		events:   make(chan Event, 64),
		signals:  make(chan signal, 64),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.sess = session.New(t, s.logger)
	s.cor = correlator.New(s.sess, s.logger)
	s.sess.AddObserver(s)

	s.grp = &errgroup.Group{}
	s.grp.Go(func() error {
		s.loop()
		return nil
	})

	return s
}

// Commands returns the channel a host submits Command values on.
func (s *Shell) Commands() chan<- Command { return s.commands }

// Events returns the channel a host drains Event values from. Dispose
// closes it after the loop exits; nothing else closes it. Events already
// buffered are still delivered before the close. The facade treats a
// close it did not cause through its own Dispose as WorkerLost.
func (s *Shell) Events() <-chan Event { return s.events }

// Dispose stops the event loop, the underlying Session, and releases
// all resources. Safe to call more than once.
func (s *Shell) Dispose() {
	select {
	case <-s.done:
		return
	default:
	}

	close(s.done)
	_ = s.grp.Wait()
	s.sess.Dispose()
	close(s.events)
}

func (s *Shell) loop() {
	for {
		select {
		case cmd := <-s.commands:
			s.handleCommand(cmd)
		case sig := <-s.signals:
			s.handleSignal(sig)
		case <-s.done:
			return
		}
	}
}

func (s *Shell) postEvent(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Shell) postSignal(sig signal) {
	select {
	case s.signals <- sig:
	case <-s.done:
	}
}

// --- command handling (loop-goroutine owned) ---

func (s *Shell) handleCommand(cmd Command) {
	switch c := cmd.(type) {
	case Connect:
		s.handleConnect(c)
	case Disconnect:
		s.handleDisconnect(c)
	case SendRequest:
		s.handleSendRequest(c)
	case Subscribe:
		s.handleSubscribe(c)
	case Unsubscribe:
		s.handleUnsubscribe(c)
	default:
		s.logger.Warn("worker: unknown command kind")
	}
}

func (s *Shell) handleConnect(c Connect) {
	s.pendingConnectReqID = c.RequestID
	s.sess.Connect(c.Config)
}

func (s *Shell) handleDisconnect(c Disconnect) {
	s.pendingDisconnectReqID = c.RequestID
	s.sess.Disconnect()
}

func (s *Shell) handleSendRequest(c SendRequest) {
	spec, ok := s.registry.request(c.CommandType)
	if !ok {
		s.logger.Warn("worker: unknown command type", "commandType", c.CommandType)
		s.postEvent(Reply{RequestID: c.RequestID, IsError: true, ErrorCode: "UnknownCommandType", ErrorMessage: ErrUnknownCommandType.Error()})
		return
	}

	s.cor.SendRequest(spec.Route(), c.Params, spec.Decode, c.Timeout, func(data any, err error) {
		s.postEvent(replyFromResult(c.RequestID, data, err))
		s.updatePendingMetrics()
	})

	s.updatePendingMetrics()
}

func (s *Shell) handleSubscribe(c Subscribe) {
	spec, ok := s.registry.subscription(c.SubscriptionName)
	if !ok {
		s.logger.Warn("worker: unknown subscription", "name", c.SubscriptionName)
		s.postEvent(Reply{RequestID: c.RequestID, IsError: true, ErrorCode: "UnknownSubscription", ErrorMessage: ErrUnknownSubscription.Error()})
		return
	}

	sink := func(data any) {
		s.postEvent(Notification{InternalID: c.InternalID, Data: data})
	}

	onError := func(err error) {
		s.logger.Warn("worker: notification decode failed, dropped", "internalId", c.InternalID, "error", err)
	}

	s.cor.Subscribe(spec, c.Params, c.InternalID, sink, onError, c.Timeout, func(subscriptionID string, err error) {
		if err != nil {
			s.postEvent(replyFromResult(c.RequestID, nil, err))
		} else {
			s.postEvent(Reply{RequestID: c.RequestID, Data: subscriptionID})
		}
		s.updateSubscriptionMetrics()
	})
}

func (s *Shell) handleUnsubscribe(c Unsubscribe) {
	s.cor.Unsubscribe(c.SubscriptionID, c.Timeout)
	s.postEvent(Reply{RequestID: c.RequestID})
	s.updateSubscriptionMetrics()
}

func replyFromResult(requestID string, data any, err error) Reply {
	if err == nil {
		return Reply{RequestID: requestID, Data: data}
	}

	code, msg := errorCodeAndMessage(err)
	return Reply{RequestID: requestID, IsError: true, ErrorCode: code, ErrorMessage: msg}
}

func (s *Shell) updatePendingMetrics() {
	s.metrics.SetPendingRequests(s.cor.PendingCount())
}

func (s *Shell) updateSubscriptionMetrics() {
	s.metrics.SetActiveSubscriptions(s.cor.ActiveSubscriptionCount())
}

// --- session.Observer: invoked synchronously from Session's own loop
// goroutine, so these must never block; they only ever hand a signal to
// this Shell's own loop via the buffered signals channel. ---

func (s *Shell) OnStateChanged(status session.Status) { s.postSignal(sigStateChanged{status: status}) }
func (s *Shell) OnConnected(sessionID string)          { s.postSignal(sigConnected{sessionID: sessionID}) }
func (s *Shell) OnDisconnected()                       { s.postSignal(sigDisconnected{}) }
func (s *Shell) OnMessage(session.SessionMessage)      {}

func (s *Shell) handleSignal(sig signal) {
	switch v := sig.(type) {
	case sigStateChanged:
		s.metrics.SetStatus(v.status.State)

		if v.status.State == session.Connecting {
			if s.seenFirstConnecting {
				s.metrics.IncReconnectAttempt()
			}
			s.seenFirstConnecting = true
		}

		s.postEvent(StateChanged{Status: v.status})
	case sigConnected:
		if s.pendingConnectReqID != "" {
			s.postEvent(Reply{RequestID: s.pendingConnectReqID})
			s.pendingConnectReqID = ""
		}
	case sigDisconnected:
		if s.pendingConnectReqID != "" {
			s.postEvent(Reply{RequestID: s.pendingConnectReqID, IsError: true, ErrorCode: "ConnectionClosed"})
			s.pendingConnectReqID = ""
		}

		if s.pendingDisconnectReqID != "" {
			s.postEvent(Reply{RequestID: s.pendingDisconnectReqID})
			s.pendingDisconnectReqID = ""
		}
	}
}
