// Package demoserver hosts the reference server half of the wire
// protocol: the session-management routes session.Session expects,
// plus two demo application routes used by cmd/wsrpcctl and the
// package tests. It exists to exercise the client stack end to end; it
// is not a production server.
package demoserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
)

// Server upgrades incoming HTTP connections to the framed WebSocket
// protocol pkg/wsrpc/transport.WSTransport speaks, at /ws/.
type Server struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New constructs a Server. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the chi router exposing the WebSocket endpoint behind a
// per-IP sliding-window rate limiter.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(httprate.Limit(
		600, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	))

	r.Get("/ws/", s.handleWS)

	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Info("client connected", "remote_addr", conn.RemoteAddr())
	defer s.logger.Info("client disconnected", "remote_addr", conn.RemoteAddr())

	c := newConn(conn, s.logger)
	c.run(r.Context())
}
