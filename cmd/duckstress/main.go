// Package main provides the duckstress CLI, a concurrency stress harness for
// DuckDB.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/duckstress/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
