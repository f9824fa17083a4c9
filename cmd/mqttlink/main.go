// mqttlink keeps a supervised MQTT connection alive and routes messages to
// per-topic handlers.
//
// Commands:
//   - run:     connect, subscribe and publish a demo message stream until interrupted
//   - publish: publish a single message once connected
//   - events:  list link events recorded in the SQLite journal
//   - version: print build information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // release tag
	commit  = "unknown" // git revision
	date    = "unknown" // build timestamp
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
