package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftline/wsrpc/pkg/wsrpc/facade"
	"github.com/driftline/wsrpc/pkg/wsrpc/transport"
)

func newPingCmd(url *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Connect, send one ping request, print the reply, disconnect",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := facade.New(transport.NewWSTransport(nil), demoRegistry())
			defer client.Dispose()

			client.OnConnected(printConnected)
			client.OnConnectionError(printConnectionError)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if _, err := client.Connect(demoConfig(*url)).Wait(ctx); err != nil {
				return err
			}

			reply, err := facade.Request[string](client, "Ping", nil, 5*time.Second).Wait(ctx)
			if err != nil {
				return err
			}

			printData("reply: %s", reply)

			_, err = client.Disconnect().Wait(ctx)
			return err
		},
	}
}
