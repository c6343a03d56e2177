package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/careerd/internal/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	a, err := newApp(ctx, cfg, appTelemetryOptions...)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() {
		_ = a.Close(context.Background())
	}()
	logger := a.logger.Underlying()

	srv, err := httpserver.NewServer(a.svc, logger, cfg.Server, httpserver.WithVersion(version))
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}
	return serve(ctx, srv, cfg.Server.ShutdownTimeout.Duration(), logger)
}

// server is the part of httpserver.Server that serve drives.
type server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serve runs srv until ctx is cancelled, then shuts it down within timeout.
func serve(ctx context.Context, srv server, timeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return <-errCh
}
