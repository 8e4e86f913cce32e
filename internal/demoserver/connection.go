package demoserver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/driftline/wsrpc/pkg/wsrpc/wire"
)

// conn holds the per-WebSocket-connection state: the negotiated session
// id and the set of live ticker subscriptions. One conn serves exactly
// one client, matching the teacher's one-goroutine-per-connection
// read loop with a goroutine-per-request dispatch underneath it.
type conn struct {
	ws      *websocket.Conn
	logger  *slog.Logger
	writeMu sync.Mutex

	mu        sync.Mutex
	sessionID string
	subs      map[string]chan struct{}
	subsWG    sync.WaitGroup
}

func newConn(ws *websocket.Conn, logger *slog.Logger) *conn {
	return &conn{
		ws:     ws,
		logger: logger,
		subs:   make(map[string]chan struct{}),
	}
}

func (c *conn) run(ctx context.Context) {
	defer c.stopAllSubs()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
			) {
				c.logger.Error("read error", "error", err)
			}

			return
		}

		msg, err := decodeFrame(mt, data)
		if err != nil {
			c.logger.Error("failed to decode frame", "error", err)
			continue
		}

		go c.handleRequest(ctx, mt, msg)
	}
}

func decodeFrame(messageType int, data []byte) (*wire.Message, error) {
	if messageType == websocket.TextMessage {
		return wire.DecodeJSON(data)
	}

	return wire.Decode(data)
}

func (c *conn) handleRequest(ctx context.Context, replyType int, msg *wire.Message) {
	if msg.Variant != wire.VariantRequest {
		return
	}

	switch msg.Route {
	case wire.RouteSessionCreate:
		c.handleSessionCreate(replyType, msg)
	case wire.RouteSessionKeepalive:
		c.handleSessionKeepalive(replyType, msg)
	case wire.RouteSessionDestroy:
		c.handleSessionDestroy(replyType, msg)
	case routePing:
		c.handlePing(replyType, msg)
	case routeTickerSubscribe:
		c.handleTickerSubscribe(ctx, replyType, msg)
	case routeTickerUnsubscribe:
		c.handleTickerUnsubscribe(replyType, msg)
	default:
		c.sendErrorReply(replyType, msg.RequestID, codeRouteNotFound)
	}
}

func (c *conn) currentSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *conn) sessionMatches(msg *wire.Message) bool {
	return msg.SessionID != "" && msg.SessionID == c.currentSessionID()
}

func (c *conn) sendReply(replyType int, requestID uint64, payload any) {
	reply, err := wire.NewReply(requestID, c.currentSessionID(), payload)
	if err != nil {
		c.logger.Error("failed to build reply", "error", err)
		return
	}

	c.send(replyType, reply)
}

func (c *conn) sendErrorReply(replyType int, requestID uint64, code string) {
	c.send(replyType, wire.NewErrorReply(requestID, c.currentSessionID(), code))
}

func (c *conn) send(messageType int, msg *wire.Message) {
	var data []byte
	var err error

	if messageType == websocket.TextMessage {
		data, err = wire.EncodeJSON(msg)
	} else {
		data = wire.Encode(msg)
	}

	if err != nil {
		c.logger.Error("failed to encode message", "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(messageType, data); err != nil {
		c.logger.Error("failed to write message", "error", err)
	}
}

func (c *conn) stopAllSubs() {
	c.mu.Lock()
	stops := make([]chan struct{}, 0, len(c.subs))
	for id, stop := range c.subs {
		stops = append(stops, stop)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	for _, stop := range stops {
		close(stop)
	}

	c.subsWG.Wait()
}

func newUUID() string {
	return uuid.NewString()
}
