package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/keboola/go-fetch/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx, os.Args[1:])
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
