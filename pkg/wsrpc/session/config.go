package session

import "time"

// Config carries the connection knobs a Session needs, matching the
// keys spec.md §6 names as recognized configuration.
type Config struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectInterval    time.Duration
	KeepaliveInterval    time.Duration
	MaxKeepaliveFailures int

	// ClientSessionID is sent as SessionCreate's clientSessionId. If
	// empty, Connect generates a random one.
	ClientSessionID string
}

// DefaultConfig returns the defaults from spec.md §6: 3 reconnect
// attempts, 1s reconnect interval, 1s keepalive interval, 3 allowed
// keepalive failures.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		MaxReconnectAttempts: 3,
		ReconnectInterval:    time.Second,
		KeepaliveInterval:    time.Second,
		MaxKeepaliveFailures: 3,
	}
}
