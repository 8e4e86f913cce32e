package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// noProxyDialer mirrors the teacher's dialer: proxy-less, with a generous
// handshake timeout so a slow TLS handshake doesn't look like a dead peer.
var noProxyDialer = websocket.Dialer{
	Proxy:            nil,
	HandshakeTimeout: 45 * time.Second,
}

// WSTransport is the plain gorilla/websocket Transport implementation:
// binary frames only, one connection at a time, one read loop goroutine
// per connection.
type WSTransport struct {
	logger *slog.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	obs      Observer
	writeMu  sync.Mutex
	closedCh chan struct{}
}

// NewWSTransport constructs a WSTransport. A nil logger falls back to
// slog.Default(), matching the teacher's ClientConfig.Logger convention.
func NewWSTransport(logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}

	return &WSTransport{logger: logger}
}

func (t *WSTransport) SetObserver(obs Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.obs = obs
}

func (t *WSTransport) observer() Observer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.obs
}

func (t *WSTransport) Connect(rawURL string) error {
	t.Disconnect()

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("transport: invalid url: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), noProxyDialer.HandshakeTimeout)
	defer cancel()

	conn, _, err := noProxyDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if obs := t.observer(); obs != nil {
			obs.OnError(err)
			obs.OnClose(err)
		}

		return fmt.Errorf("transport: dial failed: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.closedCh = make(chan struct{})
	t.mu.Unlock()

	go t.readLoop(conn, t.closedCh)

	if obs := t.observer(); obs != nil {
		obs.OnOpen()
	}

	return nil
}

func (t *WSTransport) readLoop(conn *websocket.Conn, closedCh chan struct{}) {
	defer close(closedCh)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			current := t.conn == conn
			if current {
				t.conn = nil
			}
			t.mu.Unlock()

			// A conn already discarded by Disconnect is detached: its
			// closing is not reported to the observer.
			if !current {
				return
			}

			if obs := t.observer(); obs != nil {
				if websocket.IsUnexpectedCloseError(
					err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure,
				) {
					obs.OnError(err)
				}

				obs.OnClose(err)
			}

			return
		}

		if obs := t.observer(); obs != nil {
			obs.OnBytes(data)
		}
	}
}

func (t *WSTransport) Send(data []byte) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *WSTransport) Disconnect() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	_ = conn.Close()
}
