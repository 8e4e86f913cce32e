// Package transport owns exactly one bidirectional byte-framed connection
// to a URL. It knows nothing about sessions, requests, or subscriptions —
// it delivers raw frames and lifecycle callbacks to a single observer, the
// Session that sits above it.
package transport

import "errors"

// ErrNotConnected is returned by Send when the connection is not open.
var ErrNotConnected = errors.New("transport: not connected")

// Observer receives the lifecycle and data events of a Transport. At most
// one Observer is attached at a time; attaching a new one replaces the
// old one.
type Observer interface {
	OnOpen()
	OnBytes(data []byte)
	OnClose(err error)
	OnError(err error)
}

// Transport owns one connection at a time. Connect closes any prior
// connection before opening a new one. Disconnect is idempotent.
type Transport interface {
	// Connect opens a new connection to url. Success or failure is
	// reported via the attached Observer's OnOpen or OnError+OnClose;
	// WSTransport dials synchronously and reports before Connect returns.
	Connect(url string) error

	// Disconnect closes the connection if open and discards the handle;
	// the observer receives no further callbacks for that connection and
	// stays attached for the next Connect. Safe to call multiple times.
	Disconnect()

	// Send transmits a binary frame. It fails fast with ErrNotConnected
	// if the connection is not currently open.
	Send(data []byte) error

	// SetObserver attaches the single consumer of this transport's
	// events, replacing any previous observer.
	SetObserver(obs Observer)
}
