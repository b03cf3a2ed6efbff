package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"postcms/internal/config"
)

// ServeMCP runs postcms as a standalone MCP server on stdin/stdout. It
// builds the app, starts background jobs and serves until stdin closes or
// the process is interrupted.
func ServeMCP(ctx context.Context, cfg *config.Config, opts Options) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := a.MCP()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		if err != nil {
			a.logger.Error("mcp server stopped", zap.Error(err))
		}
		return err
	case <-ctx.Done():
		a.logger.Info("mcp server interrupted")
		return nil
	}
}
