// Package workflows defines the Temporal workflow that drives one video
// through the remote processor.
package workflows

import (
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
	vttemporal "github.com/helixir/vehicle-tracking-service/internal/temporal"
	"github.com/helixir/vehicle-tracking-service/internal/temporal/activities"
	"github.com/helixir/vehicle-tracking-service/internal/temporal/resilience"
)

// Re-export query and signal names from the parent temporal package.
const (
	QueryProcessingStatus = vttemporal.QueryProcessingStatus
	QueryCurrentPhase     = vttemporal.QueryCurrentPhase
	QueryPhaseHistory     = vttemporal.QueryPhaseHistory
	SignalCancel          = vttemporal.SignalCancel
)

// CancelSignal is the payload of SignalCancel.
type CancelSignal = vttemporal.CancelSignal

// defaultCancelReason is recorded when cancellation arrives through the
// runtime rather than the cancel signal.
const defaultCancelReason = "cancellation requested"

// VideoTrackingWorkflow drives job from initializing through processing to
// completed or failed.
//
// Every outcome of the remote call is reported as a JobResult: a remote
// success=false, a non-retryable invocation error, an exhausted retry
// budget, a timeout and a cancellation all end in phase failed with a
// success=false result and a nil workflow error. The workflow error is
// reserved for failures of the workflow machinery itself.
//
// The current status, phase and transition history are exposed through the
// getProcessingStatus, getCurrentPhase and getPhaseHistory queries.
func VideoTrackingWorkflow(ctx workflow.Context, job domain.JobDescriptor) (*domain.JobResult, error) {
	logger := workflow.GetLogger(ctx)
	info := workflow.GetInfo(ctx)

	tracker := newPhaseTracker(info.WorkflowExecution.ID, info.WorkflowExecution.RunID)
	if err := tracker.registerQueries(ctx); err != nil {
		logger.Error("failed to register query handlers", "error", err)
		return nil, fmt.Errorf("register query handlers: %w", err)
	}

	tracker.transition(ctx, domain.PhaseInitializing, "Initializing video tracking workflow")

	// Cancellation from either the cancel signal or the runtime stops the
	// in-flight activity through cancelCtx.
	cancelCtx, cancelFunc := workflow.WithCancel(ctx)
	var cancelReason string
	signalCh := workflow.GetSignalChannel(ctx, SignalCancel)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		var signal CancelSignal
		signalCh.Receive(gCtx, &signal)
		cancelReason = signal.Reason
		if cancelReason == "" {
			cancelReason = defaultCancelReason
		}
		logger.Info("received cancel signal", "reason", cancelReason)
		cancelFunc()
	})

	tracker.transition(ctx, domain.PhaseProcessing, fmt.Sprintf("Processing video: %s", job.InputPath))

	if err := job.Validate(); err != nil {
		return tracker.fail(ctx, fmt.Sprintf("Invalid job descriptor: %v", err)), nil
	}

	policy := resilience.DefaultProcessingPolicy()
	activityCtx := workflow.WithActivityOptions(cancelCtx, workflow.ActivityOptions{
		StartToCloseTimeout:    resilience.StartToCloseTimeout,
		ScheduleToCloseTimeout: resilience.ScheduleToCloseTimeout,
		HeartbeatTimeout:       resilience.HeartbeatTimeout,
		WaitForCancellation:    false,
		RetryPolicy:            policy.ToTemporal(),
	})

	var invoker *activities.InvokerActivities
	var result domain.JobResult
	err := workflow.ExecuteActivity(activityCtx, invoker.ProcessVideo, job).Get(activityCtx, &result)

	if activityCancelled(err, cancelCtx.Err() != nil) {
		reason := cancelReason
		if reason == "" {
			reason = defaultCancelReason
		}
		logger.Info("video tracking cancelled", "reason", reason)
		return tracker.fail(ctx, fmt.Sprintf("Workflow cancelled: %s", reason)), nil
	}

	if err != nil {
		logger.Error("video processing activity failed", "error", err)
		return tracker.fail(ctx, describeActivityError(err)), nil
	}

	result.Normalize()
	if !result.Success {
		logger.Warn("remote processor reported failure", "errorMessage", result.ErrorMessage)
		return tracker.failWith(ctx, &result, fmt.Sprintf("Video processing failed: %s", result.ErrorMessage)), nil
	}

	tracker.transition(ctx, domain.PhaseCompleted, fmt.Sprintf("Video processing completed: %s", result.OutputFile))
	logger.Info("video tracking completed", "outputFile", result.OutputFile)
	return &result, nil
}

// activityCancelled reports whether a failed activity was stopped by a
// cancellation. A result that arrived alongside a cancel request stands.
func activityCancelled(err error, cancelRequested bool) bool {
	if err == nil {
		return false
	}
	return cancelRequested || temporal.IsCanceledError(err)
}

// describeActivityError produces the failed-phase status message for an
// activity that did not return a result.
func describeActivityError(err error) string {
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return fmt.Sprintf("Video processing timed out: %s", timeoutKind(timeoutErr.TimeoutType()))
	}

	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		switch appErr.Type() {
		case domain.ErrTypeInvocation:
			return fmt.Sprintf("Video processing failed: invalid invocation: %s", appErr.Error())
		case domain.ErrTypeTimeout:
			return fmt.Sprintf("Video processing timed out: %s", timeoutKind(enumspb.TIMEOUT_TYPE_START_TO_CLOSE))
		case domain.ErrTypeRetryable:
			return fmt.Sprintf("Video processing failed after retries: %s", appErr.Error())
		}
		return fmt.Sprintf("Video processing failed: %s", appErr.Error())
	}

	return fmt.Sprintf("Video processing failed: %v", err)
}

func timeoutKind(t enumspb.TimeoutType) string {
	switch t {
	case enumspb.TIMEOUT_TYPE_HEARTBEAT:
		return "heartbeat timeout exceeded"
	case enumspb.TIMEOUT_TYPE_START_TO_CLOSE:
		return "start-to-close timeout exceeded"
	case enumspb.TIMEOUT_TYPE_SCHEDULE_TO_CLOSE:
		return "schedule-to-close timeout exceeded"
	case enumspb.TIMEOUT_TYPE_SCHEDULE_TO_START:
		return "schedule-to-start timeout exceeded"
	default:
		return "timeout exceeded"
	}
}
