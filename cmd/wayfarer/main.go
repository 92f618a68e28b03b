// File: cmd/wayfarer/main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/wayfarer-cli/cmd"
	"github.com/xkilldash9x/wayfarer-cli/internal/observability"
)

func main() {
	// Listen for interrupt signals so a Ctrl-C unwinds the agent loop and
	// closes the browsing session cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer observability.Sync()

	cmd.ExecuteContext(ctx)
}
