// Package main provides processor-stub, a stand-in for the remote video
// processor used for local end-to-end runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/helixir/vehicle-tracking-service/internal/observability"
	"github.com/helixir/vehicle-tracking-service/internal/processor"
)

const healthService = "vehicletracking.v1.Processor"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type stubOptions struct {
	transport  string
	listen     string
	delay      time.Duration
	checkInput bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var opts stubOptions

	cmd := &cobra.Command{
		Use:           "processor-stub",
		Short:         "Serve a simulated video processor over gRPC or HTTP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.transport, "transport", processor.TransportGRPC, "transport to serve (grpc or http)")
	flags.StringVar(&opts.listen, "listen", ":50051", "listen address")
	flags.DurationVar(&opts.delay, "delay", 2*time.Second, "simulated processing time per job")
	flags.BoolVar(&opts.checkInput, "check-input", false, "fail jobs whose input file does not exist")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level")

	return cmd
}

func run(parent context.Context, opts stubOptions) error {
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      opts.logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger = observability.WithComponent(logger, "processor-stub")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := &processor.Simulator{
		Delay:      opts.delay,
		CheckInput: opts.checkInput,
		Logger:     logger,
	}

	lis, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", opts.listen, err)
	}

	switch opts.transport {
	case processor.TransportGRPC:
		return serveGRPC(ctx, lis, sim, logger)
	case processor.TransportHTTP:
		return serveHTTP(ctx, lis, sim, logger)
	default:
		_ = lis.Close()
		return fmt.Errorf("unsupported transport %q", opts.transport)
	}
}

func serveGRPC(ctx context.Context, lis net.Listener, h processor.Handler, logger zerolog.Logger) error {
	srv := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 15 * time.Minute,
			Time:              5 * time.Minute,
			Timeout:           1 * time.Minute,
		}),
	)
	processor.RegisterServer(srv, h)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(srv)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", lis.Addr().String()).Msg("gRPC processor stub starting")
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("gRPC server error: %w", err)
	}

	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	srv.GracefulStop()
	logger.Info().Msg("processor stub stopped")
	return nil
}

func serveHTTP(ctx context.Context, lis net.Listener, h processor.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Handler:           processor.NewHTTPHandler(h, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", lis.Addr().String()).Msg("HTTP processor stub starting")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	logger.Info().Msg("processor stub stopped")
	return nil
}
