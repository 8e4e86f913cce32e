package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftline/wsrpc/pkg/wsrpc/facade"
	"github.com/driftline/wsrpc/pkg/wsrpc/transport"
)

func newWatchCmd(url *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Connect, subscribe to the ticker, print notifications until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := facade.New(transport.NewWSTransport(nil), demoRegistry())
			defer client.Dispose()

			client.OnConnected(printConnected)
			client.OnDisconnected(printDisconnected)
			client.OnConnectionError(printConnectionError)

			connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			if _, err := client.Connect(demoConfig(*url)).Wait(connectCtx); err != nil {
				return err
			}

			subCtx, subCancel := context.WithTimeout(ctx, 5*time.Second)
			defer subCancel()

			internalID, err := client.Subscribe("ticker", nil, func(data any) {
				printData("tick: %v", data)
			}, func(err error) {
				printConnectionError(err)
			}, 5*time.Second).Wait(subCtx)
			if err != nil {
				return err
			}

			<-ctx.Done()

			unsubCtx, unsubCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer unsubCancel()
			_, _ = client.Unsubscribe(internalID, 5*time.Second).Wait(unsubCtx)

			disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer disconnectCancel()

			_, err = client.Disconnect().Wait(disconnectCtx)
			return err
		},
	}
}
