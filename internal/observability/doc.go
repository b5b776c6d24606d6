// Package observability provides logging and metrics support for the
// vehicle-tracking service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger = observability.WithComponent(logger, "worker")
//
// Temporal SDK logs are routed through the same logger:
//
//	client.Options{Logger: observability.NewTemporalLogger(logger)}
//
// # Metrics
//
//	metrics := observability.NewMetrics("vehicle_tracking")
//	metrics.RecordJobStarted()
//	metrics.RecordInvocation("grpc", "success", 12.5)
//
// # Standard Fields
//
//   - workflow_id, workflow_run_id: Temporal execution identifiers
//   - case_id: legal case whose video is processed
//   - input_path, output_path, model_path: job descriptor fields
//   - request_id: HTTP request correlation identifier
package observability
