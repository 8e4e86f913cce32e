package demoserver_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftline/wsrpc/internal/demoserver"
	"github.com/driftline/wsrpc/pkg/wsrpc/facade"
	"github.com/driftline/wsrpc/pkg/wsrpc/session"
	"github.com/driftline/wsrpc/pkg/wsrpc/transport"
	"github.com/driftline/wsrpc/pkg/wsrpc/worker"
)

type pingSpec struct{}

func (pingSpec) Route() string { return "ping" }

func (pingSpec) Decode(payload []byte) (any, error) {
	var v struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v.Message, nil
}

type tickerSpec struct{}

func (tickerSpec) SubscribeRequest(any) (string, any) {
	return "ticker.subscribe", struct{}{}
}

func (tickerSpec) UnsubscribeRequest(subscriptionID string) (string, any) {
	return "ticker.unsubscribe", struct {
		SubscriptionID string `json:"subscriptionId"`
	}{SubscriptionID: subscriptionID}
}

func (tickerSpec) Deserialize(payload []byte) (any, error) {
	var v struct {
		Tick string `json:"tick"`
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v.Tick, nil
}

func newTestServer(t *testing.T) string {
	t.Helper()

	srv := demoserver.New(nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/"
}

func testConfig(url string) session.Config {
	return session.Config{
		URL:                  url,
		MaxReconnectAttempts: 3,
		ReconnectInterval:    50 * time.Millisecond,
		KeepaliveInterval:    time.Hour,
		MaxKeepaliveFailures: 3,
	}
}

func TestDemoServerPingRoundTrip(t *testing.T) {
	url := newTestServer(t)

	reg := worker.NewRegistry()
	reg.RegisterRequest("Ping", pingSpec{})

	client := facade.New(transport.NewWSTransport(nil), reg)
	defer client.Dispose()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Connect(testConfig(url)).Wait(ctx)
	require.NoError(t, err)

	result, err := facade.Request[string](client, "Ping", nil, time.Second).Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "pong", result)

	_, err = client.Disconnect().Wait(ctx)
	require.NoError(t, err)
}

func TestDemoServerTickerSubscription(t *testing.T) {
	url := newTestServer(t)

	reg := worker.NewRegistry()
	reg.RegisterSubscription("ticker", tickerSpec{})

	client := facade.New(transport.NewWSTransport(nil), reg)
	defer client.Dispose()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := client.Connect(testConfig(url)).Wait(ctx)
	require.NoError(t, err)

	var mu sync.Mutex
	var ticks []string

	internalID, err := client.Subscribe("ticker", nil, func(data any) {
		mu.Lock()
		ticks = append(ticks, data.(string))
		mu.Unlock()
	}, func(error) {}, time.Second).Wait(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, internalID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ticks) >= 2
	}, 2*time.Second, 20*time.Millisecond)

	_, err = client.Unsubscribe(internalID, time.Second).Wait(ctx)
	require.NoError(t, err)

	mu.Lock()
	countAtUnsubscribe := len(ticks)
	mu.Unlock()

	time.Sleep(500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, countAtUnsubscribe, len(ticks), "no notification should arrive after unsubscribe")
}
