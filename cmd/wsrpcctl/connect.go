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

func newConnectCmd(url *string) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect and print status transitions until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := facade.New(transport.NewWSTransport(nil), demoRegistry())
			defer client.Dispose()

			client.OnConnected(printConnected)
			client.OnDisconnected(printDisconnected)
			client.OnConnectionError(printConnectionError)

			printInfo("connecting to %s", *url)

			connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			if _, err := client.Connect(demoConfig(*url)).Wait(connectCtx); err != nil {
				return err
			}

			<-ctx.Done()

			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, err := client.Disconnect().Wait(disconnectCtx)
			return err
		},
	}
}
