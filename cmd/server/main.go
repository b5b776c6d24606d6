// Package main provides the entry point for the vehicle-tracking HTTP API server.
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

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/vehicle-tracking-service/internal/config"
	"github.com/helixir/vehicle-tracking-service/internal/database"
	"github.com/helixir/vehicle-tracking-service/internal/events"
	"github.com/helixir/vehicle-tracking-service/internal/observability"
	"github.com/helixir/vehicle-tracking-service/internal/ratelimit"
	"github.com/helixir/vehicle-tracking-service/internal/repository"
	httpserver "github.com/helixir/vehicle-tracking-service/internal/server/http"
	"github.com/helixir/vehicle-tracking-service/internal/temporal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = observability.WithComponent(logger, "server")
	logger.Info().Msg("vehicle-tracking server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("vehicle_tracking")

	cases, closeStore, err := openCaseStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	orchestrator := temporal.NewOrchestrator(temporal.ClientConfig{
		HostPort:          cfg.Temporal.HostPort,
		Namespace:         cfg.Temporal.Namespace,
		TaskQueue:         cfg.Temporal.TaskQueue,
		ConnectionTimeout: cfg.Temporal.ConnectionTimeout,
		TLS: &temporal.TLSConfig{
			Enabled:    cfg.Temporal.TLS.Enabled,
			CertPath:   cfg.Temporal.TLS.CertPath,
			KeyPath:    cfg.Temporal.TLS.KeyPath,
			CACertPath: cfg.Temporal.TLS.CACertPath,
			ServerName: cfg.Temporal.TLS.ServerName,
		},
	}, temporal.WithLogger(logger), temporal.WithMetrics(metrics))
	if err := orchestrator.Connect(ctx, cfg.Temporal.HostPort); err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer orchestrator.Disconnect()

	// Channel to collect server errors.
	errCh := make(chan error, 3)

	var sink events.ResultSink = events.NopSink{}
	if cfg.Kafka.Enabled {
		publisher := events.NewResultPublisher(events.PublisherConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.ResultTopic,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, metrics, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close result publisher")
			}
		}()
		sink = publisher

		listener := events.NewCancelListener(events.ListenerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.CancelTopic,
			GroupID: cfg.Kafka.GroupID,
		}, orchestrator, cases, logger)
		defer func() {
			if err := listener.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close cancel listener")
			}
		}()
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("cancel listener error: %w", err)
			}
		}()
		logger.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("result_topic", cfg.Kafka.ResultTopic).
			Str("cancel_topic", cfg.Kafka.CancelTopic).
			Msg("kafka events enabled")
	}

	httpCfg := httpserver.Config{
		Address:      cfg.Server.HTTPAddress(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  2 * time.Minute,
	}
	httpSrv := httpserver.NewServer(
		httpCfg,
		orchestrator,
		cases,
		sink,
		ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		metrics,
		logger,
	)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	go func() {
		logger.Info().
			Str("address", httpCfg.Address).
			Msg("HTTP API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().
		Str("http_address", httpCfg.Address).
		Str("case_store", cfg.CaseStore.Backend)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("vehicle-tracking server is ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down vehicle-tracking server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Waits for background jobs as well as open requests.
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("vehicle-tracking server shutdown complete")
	return nil
}

// openCaseStore builds the configured case repository along with whatever
// connection backs it. The returned func releases that connection.
func openCaseStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (repository.CaseRepository, func(), error) {
	var (
		backend repository.Backend
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.CaseStore.Backend {
	case config.BackendPostgres:
		db, err := database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		closers = append(closers, db.Close)
		logger.Info().Msg("database connection established")

		if cfg.Database.MigrationAutoRun {
			if err := migrateUp(ctx, db, cfg.Database.MigrationPath, logger); err != nil {
				cleanup()
				return nil, nil, err
			}
		}
		backend.DB = db

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.CaseStore.RedisAddr,
			Password: cfg.CaseStore.RedisPassword,
			DB:       cfg.CaseStore.RedisDB,
		})
		closers = append(closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close redis client")
			}
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("address", cfg.CaseStore.RedisAddr).Msg("redis connection established")
		backend.Redis = rdb
	}

	cases, err := repository.NewCaseRepository(cfg.CaseStore, backend)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create case repository: %w", err)
	}
	return cases, cleanup, nil
}

func migrateUp(ctx context.Context, db *database.DB, path string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
