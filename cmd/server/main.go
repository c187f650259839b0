package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/henriksa/boss-launcher-webhook/internal/wire"
)

func main() {
	if err := run(); err != nil {
		slog.Error("webhook server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := wire.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer cleanup()

	// App.Start logs the effective configuration before listening.
	serveErr := make(chan error, 1)
	go func() { serveErr <- app.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	case runErr = <-serveErr:
		if runErr != nil {
			runErr = fmt.Errorf("server stopped: %w", runErr)
		}
	}

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}
	return runErr
}
