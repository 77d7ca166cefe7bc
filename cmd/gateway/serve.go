package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/agency-tool-gateway/internal/app"
	"github.com/boddenberg/agency-tool-gateway/internal/config"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/observability"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve()
		},
	}
}

func serve() error {
	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Version == "dev" {
		cfg.Version = version
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, cfg.Name, cfg.Version)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("health_probe_timeout", cfg.HealthProbeTimeout),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.String("credential_store", cfg.CredentialStore),
		zap.Bool("credential_singleflight", cfg.CredentialSingleflight),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, cfg.Name, cfg.Version)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	// --- Gateway ---
	gw, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer gw.Close()

	logger.Info("tool catalog loaded",
		zap.Int("tools", gw.Registry.Len()),
		zap.Strings("services", gw.Registry.Services()),
	)

	// --- Server ---
	// No WriteTimeout: /health/full waits for the slowest probe.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           gw.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		return err
	case <-quit:
	}

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}
