// Package config loads the connection knobs spec.md §6 and
// spec_full.md §4.6 name as recognized configuration, and can watch
// the configuration file and report each re-read to a callback.
package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/driftline/wsrpc/pkg/wsrpc/session"
)

// Keys recognized in file/env configuration, matching spec.md §6
// verbatim.
const (
	KeyURL                  = "url"
	KeyMaxReconnectAttempts = "maxReconnectAttempts"
	KeyReconnectIntervalMs  = "reconnectIntervalMs"
	KeyKeepaliveIntervalMs  = "keepaliveIntervalMs"
	KeyMaxKeepaliveFailures = "maxKeepaliveFailures"

	// EnvPrefix is the prefix viper applies to environment variable
	// lookups, e.g. WSRPC_URL, WSRPC_MAXRECONNECTATTEMPTS.
	EnvPrefix = "WSRPC"
)

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyMaxReconnectAttempts, 3)
	v.SetDefault(KeyReconnectIntervalMs, 1000)
	v.SetDefault(KeyKeepaliveIntervalMs, 1000)
	v.SetDefault(KeyMaxKeepaliveFailures, 3)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	return v
}

func toSessionConfig(v *viper.Viper) session.Config {
	return session.Config{
		URL:                  v.GetString(KeyURL),
		MaxReconnectAttempts: v.GetInt(KeyMaxReconnectAttempts),
		ReconnectInterval:    time.Duration(v.GetInt64(KeyReconnectIntervalMs)) * time.Millisecond,
		KeepaliveInterval:    time.Duration(v.GetInt64(KeyKeepaliveIntervalMs)) * time.Millisecond,
		MaxKeepaliveFailures: v.GetInt(KeyMaxKeepaliveFailures),
	}
}

// Load reads a YAML/TOML/JSON configuration file at path (any format
// viper recognizes by extension) or from WSRPC_-prefixed environment
// variables, applying spec.md §6's defaults for any unset key.
func Load(path string) (session.Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return session.Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	return toSessionConfig(v), nil
}

// Watcher re-reads the session.Config at path as it changes on disk.
// Every key, URL included, is re-read; applying the new values is left
// to the onChange callback passed to Watch.
type Watcher struct {
	v *viper.Viper
}

// Watch reads path, then starts watching it with fsnotify via viper's
// WatchConfig, invoking onChange with the freshly re-read config on
// every write. Watch neither logs nor acts on a changed URL itself;
// reconnecting to a new endpoint is left to onChange.
func Watch(path string, onChange func(session.Config)) (*Watcher, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		onChange(toSessionConfig(v))
	})
	v.WatchConfig()

	return &Watcher{v: v}, nil
}

// Current returns the last-read configuration snapshot.
func (w *Watcher) Current() session.Config {
	return toSessionConfig(w.v)
}
