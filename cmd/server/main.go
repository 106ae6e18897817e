// Package main provides the entry point for the upload broker server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/upload-broker/internal/bootstrap"
	"github.com/maauso/upload-broker/internal/config"
	"github.com/maauso/upload-broker/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting upload broker",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("bucket", cfg.BucketName),
		slog.Duration("grant_expiration", cfg.PresignedURLExpiration()),
		slog.Int("maximum_files_allowed", cfg.MaximumFilesAllowed),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.Grants, deps.Gateway, logger,
		server.WithMaxFiles(cfg.MaximumFilesAllowed),
		server.WithMaxUploadMemory(cfg.MaxUploadMemoryMB<<20),
		server.WithMaxUploadSize(cfg.MaxUploadSizeMB<<20),
	)
	routerCfg := server.DefaultConfig()
	routerCfg.AllowedOrigins = cfg.AllowedOrigins
	routerCfg.GrantRateLimit = server.RateLimitConfig{
		RequestsPerMinute: cfg.GrantRateLimitPerMinute,
		Burst:             cfg.GrantRateLimitBurst,
	}
	routerCfg.Gatherer = deps.Registry
	router := server.NewRouter(handlers, deps.Validator, logger, routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second, // Direct uploads stream multipart bodies
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		deps.Reservations.Shutdown()
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		deps.Reservations.Shutdown()
		return fmt.Errorf("shutdown failed: %w", err)
	}

	// Outstanding reservations are dropped; their objects are left in place.
	deps.Reservations.Shutdown()

	logger.Info("server stopped gracefully")
	return nil
}
