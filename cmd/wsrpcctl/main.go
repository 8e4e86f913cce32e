// Command wsrpcctl is a terminal client for the demo server in
// internal/demoserver, built on top of pkg/wsrpc/facade. It exists to
// exercise the client stack by hand; it is not a production tool.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
