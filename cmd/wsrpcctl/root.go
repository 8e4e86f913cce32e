package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftline/wsrpc/pkg/wsrpc/session"
	"github.com/driftline/wsrpc/pkg/wsrpc/worker"
)

func newRootCmd() *cobra.Command {
	var url string

	rootCmd := &cobra.Command{
		Use:           "wsrpcctl",
		Short:         "Talk to a wsrpc demo server over a session-oriented WebSocket connection",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&url, "url", "ws://localhost:8080/ws/", "demo server WebSocket URL")

	rootCmd.AddCommand(
		newConnectCmd(&url),
		newPingCmd(&url),
		newWatchCmd(&url),
	)

	return rootCmd
}

func demoConfig(url string) session.Config {
	return session.Config{
		URL:                  url,
		MaxReconnectAttempts: 5,
		ReconnectInterval:    time.Second,
		KeepaliveInterval:    10 * time.Second,
		MaxKeepaliveFailures: 3,
	}
}

func demoRegistry() *worker.Registry {
	reg := worker.NewRegistry()
	reg.RegisterRequest("Ping", pingSpec{})
	reg.RegisterSubscription("ticker", tickerSpec{})
	return reg
}

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
