package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftline/wsrpc/internal/config"
	"github.com/driftline/wsrpc/pkg/wsrpc/session"
)

func TestLoadAppliesDefaultsForUnsetKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wsrpc.yaml")

	require.NoError(t, os.WriteFile(path, []byte("url: ws://example/ws/\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "ws://example/ws/", cfg.URL)
	require.Equal(t, 3, cfg.MaxReconnectAttempts)
	require.Equal(t, time.Second, cfg.ReconnectInterval)
	require.Equal(t, time.Second, cfg.KeepaliveInterval)
	require.Equal(t, 3, cfg.MaxKeepaliveFailures)
}

func TestLoadHonorsExplicitOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wsrpc.yaml")

	contents := "url: ws://example/ws/\nmaxReconnectAttempts: 7\nreconnectIntervalMs: 250\nkeepaliveIntervalMs: 500\nmaxKeepaliveFailures: 1\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, 7, cfg.MaxReconnectAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.ReconnectInterval)
	require.Equal(t, 500*time.Millisecond, cfg.KeepaliveInterval)
	require.Equal(t, 1, cfg.MaxKeepaliveFailures)
}

func TestWatchPicksUpLiveChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wsrpc.yaml")

	require.NoError(t, os.WriteFile(path, []byte("url: ws://example/ws/\nreconnectIntervalMs: 1000\n"), 0o600))

	changed := make(chan session.Config, 1)

	w, err := config.Watch(path, func(cfg session.Config) {
		changed <- cfg
	})
	require.NoError(t, err)

	require.Equal(t, time.Second, w.Current().ReconnectInterval)

	require.NoError(t, os.WriteFile(path, []byte("url: ws://example/ws/\nreconnectIntervalMs: 2000\n"), 0o600))

	select {
	case cfg := <-changed:
		require.Equal(t, 2*time.Second, cfg.ReconnectInterval)
	case <-time.After(2 * time.Second):
		t.Skip("fsnotify did not observe the rewrite in time on this filesystem")
	}
}
