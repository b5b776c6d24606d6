// Package main provides the entry point for the vehicle-tracking Temporal worker.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/vehicle-tracking-service/internal/config"
	"github.com/helixir/vehicle-tracking-service/internal/observability"
	"github.com/helixir/vehicle-tracking-service/internal/processor"
	"github.com/helixir/vehicle-tracking-service/internal/ratelimit"
	"github.com/helixir/vehicle-tracking-service/internal/temporal"
	"github.com/helixir/vehicle-tracking-service/internal/temporal/activities"
	"github.com/helixir/vehicle-tracking-service/internal/temporal/resilience"
	"github.com/helixir/vehicle-tracking-service/internal/temporal/workflows"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Run the vehicle-tracking Temporal worker",
		Long:          "Polls the task queue and executes video-tracking workflows and remote processing activities.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}

	flags := cmd.Flags()
	flags.String("server", "localhost:7233", "Temporal server address")
	flags.String("task-queue", temporal.DefaultTaskQueue, "task queue to poll")
	flags.Int("max-activities", temporal.DefaultMaxConcurrentActivities, "maximum concurrent activity executions")
	flags.Int("max-workflows", temporal.DefaultMaxConcurrentWorkflows, "maximum concurrent workflow tasks")

	return cmd
}

// flagBindings maps worker flags onto configuration keys.
func flagBindings(cmd *cobra.Command) []config.FlagBinding {
	flags := cmd.Flags()
	return []config.FlagBinding{
		{Key: "temporal.host_port", Flag: flags.Lookup("server")},
		{Key: "temporal.task_queue", Flag: flags.Lookup("task-queue")},
		{Key: "worker.max_concurrent_activities", Flag: flags.Lookup("max-activities")},
		{Key: "worker.max_concurrent_workflows", Flag: flags.Lookup("max-workflows")},
	}
}

func run(cmd *cobra.Command) error {
	cfg, err := config.Load(flagBindings(cmd)...)
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
	logger = observability.WithComponent(logger, "worker")
	logger.Info().Msg("vehicle-tracking worker starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("vehicle_tracking")

	limiter := ratelimit.New(cfg.Processor.RequestsPerSecond, cfg.Processor.Burst)
	dialer, err := processor.NewDialer(cfg.Processor.Transport, cfg.Processor.Address, cfg.Processor.DialTimeout, limiter)
	if err != nil {
		return fmt.Errorf("create processor dialer: %w", err)
	}
	logger.Info().
		Str("transport", dialer.Transport()).
		Str("address", cfg.Processor.Address).
		Msg("processor transport configured")

	temporalClient, err := temporal.NewClient(ctx, temporal.ClientConfig{
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
	}, logger)
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer temporalClient.Close()

	manager, err := temporal.NewWorkerManager(temporalClient, temporal.WorkerConfig{
		TaskQueue:               cfg.Temporal.TaskQueue,
		MaxConcurrentActivities: cfg.Worker.MaxConcurrentActivities,
		MaxConcurrentWorkflows:  cfg.Worker.MaxConcurrentWorkflows,
		ShutdownGracePeriod:     cfg.Worker.ShutdownGracePeriod,
	}, logger)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	manager.RegisterWorkflow(workflows.VideoTrackingWorkflow, temporal.WorkflowType)
	manager.RegisterActivity(activities.NewInvokerActivities(dialer, metrics,
		activities.WithHeartbeatInterval(cfg.Worker.HeartbeatInterval)))

	policy := resilience.DefaultProcessingPolicy()
	logger.Info().
		Int32("max_attempts", policy.MaximumAttempts).
		Durs("retry_waits", policy.Schedule()).
		Strs("non_retryable", policy.NonRetryableErrorTypes).
		Dur("start_to_close", resilience.StartToCloseTimeout).
		Dur("heartbeat_timeout", resilience.HeartbeatTimeout).
		Msg("processing retry policy")

	if cfg.Metrics.Enabled {
		metricsServer := startMetricsServer(cfg, logger)
		defer func() {
			if err := metricsServer.Close(); err != nil {
				logger.Error().Err(err).Msg("metrics server close error")
			}
		}()
	}

	if err := manager.Run(ctx); err != nil {
		return err
	}
	return nil
}

// startMetricsServer exposes Prometheus metrics on the metrics port.
func startMetricsServer(cfg *config.Config, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	srv := &http.Server{
		Addr:         cfg.Server.MetricsAddress(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("address", srv.Addr).Msg("metrics server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	return srv
}
