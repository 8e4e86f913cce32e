package demoserver

import (
	"context"
	"time"

	"github.com/driftline/wsrpc/pkg/wsrpc/wire"
)

// Demo application routes, matching the shapes pkg/wsrpc/facade's and
// pkg/wsrpc/worker's own tests exercise against a fake transport.
const (
	routePing              = "ping"
	routeTickerSubscribe   = "ticker.subscribe"
	routeTickerUnsubscribe = "ticker.unsubscribe"
	tickerInterval         = 200 * time.Millisecond
)

// Error codes this server echoes back as Reply.Status. Session-management
// codes match correlator/worker's expectations; codeRouteNotFound and
// codeUnknownSubscription are demo-server-local.
const (
	codeRouteNotFound       = "RouteNotFound"
	codeSessionIDMismatch   = "SessionIDMismatch"
	codeUnknownSubscription = "UnknownSubscription"
)

func (c *conn) handleSessionCreate(replyType int, msg *wire.Message) {
	var params wire.SessionCreateParams
	if err := msg.UnmarshalPayload(&params); err != nil {
		c.sendErrorReply(replyType, msg.RequestID, codeRouteNotFound)
		return
	}

	c.mu.Lock()
	c.sessionID = newUUID()
	sessionID := c.sessionID
	c.mu.Unlock()

	c.logger.Info("session created", "session_id", sessionID, "client_session_id", params.ClientSessionID)

	reply, err := wire.NewReply(msg.RequestID, sessionID, wire.SessionCreateResult{SessionID: sessionID})
	if err != nil {
		c.logger.Error("failed to build session create reply", "error", err)
		return
	}

	c.send(replyType, reply)
}

func (c *conn) handleSessionKeepalive(replyType int, msg *wire.Message) {
	if !c.sessionMatches(msg) {
		c.sendErrorReply(replyType, msg.RequestID, codeSessionIDMismatch)
		return
	}

	c.sendReply(replyType, msg.RequestID, wire.SessionKeepaliveResult{})
}

func (c *conn) handleSessionDestroy(replyType int, msg *wire.Message) {
	if !c.sessionMatches(msg) {
		c.sendErrorReply(replyType, msg.RequestID, codeSessionIDMismatch)
		return
	}

	c.stopAllSubs()
	c.sendReply(replyType, msg.RequestID, wire.SessionDestroyResult{})

	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()
}

type pingParams struct {
	Message string `json:"message"`
}

type pingResult struct {
	Message string `json:"message"`
}

func (c *conn) handlePing(replyType int, msg *wire.Message) {
	if !c.sessionMatches(msg) {
		c.sendErrorReply(replyType, msg.RequestID, codeSessionIDMismatch)
		return
	}

	var params pingParams
	_ = msg.UnmarshalPayload(&params)

	c.sendReply(replyType, msg.RequestID, pingResult{Message: "pong"})
}

type tickerSubscribeResult struct {
	SubscriptionID string `json:"subscriptionId"`
}

type tickerUnsubscribeParams struct {
	SubscriptionID string `json:"subscriptionId"`
}

type tickerNotification struct {
	Tick string `json:"tick"`
}

func (c *conn) handleTickerSubscribe(ctx context.Context, replyType int, msg *wire.Message) {
	if !c.sessionMatches(msg) {
		c.sendErrorReply(replyType, msg.RequestID, codeSessionIDMismatch)
		return
	}

	subscriptionID := newUUID()
	stop := make(chan struct{})

	c.mu.Lock()
	c.subs[subscriptionID] = stop
	c.mu.Unlock()

	c.subsWG.Add(1)
	go c.runTicker(ctx, replyType, subscriptionID, stop)

	c.sendReply(replyType, msg.RequestID, tickerSubscribeResult{SubscriptionID: subscriptionID})
}

func (c *conn) runTicker(ctx context.Context, messageType int, subscriptionID string, stop chan struct{}) {
	defer c.subsWG.Done()

	ticker := time.NewTicker(tickerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case now := <-ticker.C:
			notif, err := wire.NewNotification(
				c.currentSessionID(),
				subscriptionID,
				tickerNotification{Tick: now.UTC().Format(time.RFC3339Nano)},
			)
			if err != nil {
				c.logger.Error("failed to build ticker notification", "error", err)
				continue
			}

			c.send(messageType, notif)
		}
	}
}

func (c *conn) handleTickerUnsubscribe(replyType int, msg *wire.Message) {
	if !c.sessionMatches(msg) {
		c.sendErrorReply(replyType, msg.RequestID, codeSessionIDMismatch)
		return
	}

	var params tickerUnsubscribeParams
	if err := msg.UnmarshalPayload(&params); err != nil {
		c.sendErrorReply(replyType, msg.RequestID, codeUnknownSubscription)
		return
	}

	c.mu.Lock()
	stop, ok := c.subs[params.SubscriptionID]
	if ok {
		delete(c.subs, params.SubscriptionID)
	}
	c.mu.Unlock()

	if !ok {
		c.sendErrorReply(replyType, msg.RequestID, codeUnknownSubscription)
		return
	}

	close(stop)

	c.sendReply(replyType, msg.RequestID, struct{}{})
}
