// Package bootstrap provides dependency initialization for the upload broker.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/maauso/upload-broker/internal/auth"
	"github.com/maauso/upload-broker/internal/config"
	"github.com/maauso/upload-broker/internal/grant"
	"github.com/maauso/upload-broker/internal/reservation"
	"github.com/maauso/upload-broker/internal/storage"
)

// reapGrace is how long after grant expiry the reaper waits, so a POST that
// S3 accepted just before expiry can still finish before its object is deleted.
const reapGrace = 30 * time.Second

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Gateway      *storage.S3Gateway
	Reservations *reservation.Table
	Grants       *grant.Service
	Validator    *auth.HTTPValidator
	Registry     *prometheus.Registry
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	gateway, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observer, err := reservation.NewPrometheusObserver("", registry)
	if err != nil {
		return nil, fmt.Errorf("register reservation metrics: %w", err)
	}

	// The grant expiry and the bookkeeping window share one setting; the
	// reaper trails expiry by reapGrace.
	expiration := cfg.PresignedURLExpiration()

	table := reservation.NewTable(gateway, expiration+reapGrace,
		reservation.WithObserver(observer),
		reservation.WithLogger(logger),
	)

	grants := grant.NewService(gateway, table, logger, grant.WithExpiration(expiration))

	validator, err := auth.NewHTTPValidator(cfg.BackendAPI, auth.WithSecret(cfg.BackendSecret))
	if err != nil {
		return nil, fmt.Errorf("create credential validator: %w", err)
	}

	return &Dependencies{
		Gateway:      gateway,
		Reservations: table,
		Grants:       grants,
		Validator:    validator,
		Registry:     registry,
	}, nil
}

// initStorage creates the S3-compatible gateway from configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.S3Gateway, error) {
	gateway, err := storage.NewS3Gateway(ctx, storage.S3Config{
		Bucket:          cfg.BucketName,
		Region:          cfg.BucketRegion,
		Endpoint:        cfg.BucketEndpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		UsePathStyle:    cfg.BucketPathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 gateway: %w", err)
	}
	logger.Info("S3 storage configured",
		slog.String("bucket", cfg.BucketName),
		slog.String("region", cfg.BucketRegion),
		slog.String("endpoint", cfg.BucketEndpoint),
	)
	return gateway, nil
}
