// Package main is the entry point for the core server.
//
// The bootstrap sequence is:
//  1. Load configuration from environment variables.
//  2. Run pending database migrations.
//  3. Connect to PostgreSQL and wire the session controller, rate
//     limiter, and metrics registry via internal/appctx.
//  4. Start the HTTP server (internal/handlers) and, if configured, the
//     OTLP tracer.
//  5. Wait for SIGINT/SIGTERM, then gracefully shut down.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/idropr/core/internal/appctx"
	"github.com/idropr/core/internal/config"
	"github.com/idropr/core/internal/handlers"
	"github.com/idropr/core/internal/logging"
	"github.com/idropr/core/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Printf("server failed: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate(ctx, cfg); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	shutdownTracing, err := tracing.Init(ctx)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	state, err := appctx.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build app state: %w", err)
	}
	defer state.Close()

	h := handlers.New(state.DB, state.Sessions, cfg.MasterPassword, time.Now, state.Metrics)
	httpHandler := handlers.NewHTTPHandler(h, state.Limiter, state.Metrics, cfg.ServerMode, logger)

	addr := cfg.IPAddress
	if cfg.ServerPort != "" {
		addr = ":" + cfg.ServerPort
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "mode", cfg.ServerMode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- fmt.Errorf("serve HTTP: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serveErrCh:
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		if serveErr != nil {
			return serveErr
		}
		return fmt.Errorf("shutdown HTTP: %w", err)
	}

	return serveErr
}

// migrate applies pending goose migrations using a short-lived pool,
// separate from the long-lived pool appctx.New builds for request traffic.
func migrate(ctx context.Context, cfg config.Config) error {
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	return runMigrations(pool)
}
