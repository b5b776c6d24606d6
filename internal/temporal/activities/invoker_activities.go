package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
	"github.com/helixir/vehicle-tracking-service/internal/observability"
	"github.com/helixir/vehicle-tracking-service/internal/processor"
	"github.com/helixir/vehicle-tracking-service/internal/temporal/resilience"
)

// DefaultHeartbeatInterval keeps liveness signals well inside the 30s
// heartbeat timeout.
const DefaultHeartbeatInterval = 10 * time.Second

// DefaultDeadlineMargin is how long before the start-to-close deadline the
// remote call is abandoned and reported as a timeout.
const DefaultDeadlineMargin = 15 * time.Second

// InvokerActivities calls the remote video processor. Methods on this
// struct are registered as Temporal activities via the worker.
type InvokerActivities struct {
	dialer            processor.Dialer
	metrics           *observability.Metrics
	heartbeatInterval time.Duration
	deadlineMargin    time.Duration
	heartbeat         func(ctx context.Context, details ...interface{})
}

// InvokerOption configures optional InvokerActivities dependencies.
type InvokerOption func(*InvokerActivities)

// WithHeartbeatInterval sets how often liveness is reported while the
// remote call is in flight. Non-positive values are ignored.
func WithHeartbeatInterval(d time.Duration) InvokerOption {
	return func(a *InvokerActivities) {
		if d > 0 {
			a.heartbeatInterval = d
		}
	}
}

// WithDeadlineMargin sets how long before the attempt deadline the remote
// call is abandoned. Negative values are ignored.
func WithDeadlineMargin(d time.Duration) InvokerOption {
	return func(a *InvokerActivities) {
		if d >= 0 {
			a.deadlineMargin = d
		}
	}
}

// withHeartbeatFunc replaces activity.RecordHeartbeat in tests.
func withHeartbeatFunc(fn func(ctx context.Context, details ...interface{})) InvokerOption {
	return func(a *InvokerActivities) { a.heartbeat = fn }
}

// NewInvokerActivities creates the invoker. The metrics parameter may be nil.
func NewInvokerActivities(dialer processor.Dialer, metrics *observability.Metrics, opts ...InvokerOption) *InvokerActivities {
	a := &InvokerActivities{
		dialer:            dialer,
		metrics:           metrics,
		heartbeatInterval: DefaultHeartbeatInterval,
		deadlineMargin:    DefaultDeadlineMargin,
		heartbeat:         activity.RecordHeartbeat,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProcessVideo performs exactly one remote processing call.
//
// A fresh processor session is opened per attempt and closed on every exit
// path. Unreachable or overloaded processors yield a retryable
// ApplicationError. Malformed requests and undecodable responses yield a
// non-retryable InvocationError. A call still running when the attempt
// deadline approaches is abandoned with a non-retryable TimeoutError. A
// well-formed response with success=false is returned as a result, not an
// error, so the retry policy leaves it alone.
func (a *InvokerActivities) ProcessVideo(ctx context.Context, job domain.JobDescriptor) (*domain.JobResult, error) {
	logger := activity.GetLogger(ctx)
	info := activity.GetInfo(ctx)
	transport := a.dialer.Transport()

	logger.Info("invoking remote processor",
		"transport", transport,
		"attempt", info.Attempt,
		"inputPath", job.InputPath,
		"outputPath", job.OutputPath,
		"modelPath", job.ModelPath,
	)

	if err := job.Validate(); err != nil {
		a.metrics.RecordInvocation(transport, "invocation", 0)
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid job descriptor: %v", err),
			domain.ErrTypeInvocation,
			err,
		)
	}

	stop := a.startHeartbeat(ctx, job.InputPath)
	defer stop()

	callCtx, cancel := a.attemptContext(ctx, info)
	defer cancel()

	start := time.Now()
	raw, err := a.invoke(callCtx, job)
	duration := time.Since(start).Seconds()

	if err != nil {
		if ctx.Err() != nil {
			a.metrics.RecordInvocation(transport, "cancelled", duration)
			logger.Warn("remote processing interrupted", "error", err)
			return nil, ctx.Err()
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			a.metrics.RecordInvocation(transport, "timeout", duration)
			logger.Error("remote processing exceeded the attempt deadline", "deadline", info.Deadline, "error", err)
			timeoutErr := &domain.TimeoutError{Kind: domain.TimeoutStartToClose}
			return nil, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("processor call abandoned: %v", timeoutErr),
				domain.ErrTypeTimeout,
				timeoutErr,
			)
		}
		return nil, a.classifyFailure(logger, transport, duration, err)
	}

	result, err := processor.DecodeResult(raw)
	if err != nil {
		a.metrics.RecordInvocation(transport, "invocation", duration)
		logger.Error("remote response could not be decoded", "error", err)
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("decode processor response: %v", err),
			domain.ErrTypeInvocation,
			err,
		)
	}

	outcome := "success"
	if !result.Success {
		outcome = "job_failure"
		logger.Warn("remote processor reported failure", "errorMessage", result.ErrorMessage)
	} else {
		logger.Info("remote processing completed",
			"outputFile", result.OutputFile,
			"summaryKeys", result.ProcessingSummary.Len(),
			"duration", duration,
		)
	}
	a.metrics.RecordInvocation(transport, outcome, duration)

	return result, nil
}

// attemptContext bounds the remote call to end deadlineMargin before the
// attempt's start-to-close deadline.
func (a *InvokerActivities) attemptContext(ctx context.Context, info activity.Info) (context.Context, context.CancelFunc) {
	if info.Deadline.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, info.Deadline.Add(-a.deadlineMargin))
}

// invoke dials, calls and closes one processor session.
func (a *InvokerActivities) invoke(ctx context.Context, job domain.JobDescriptor) (raw []byte, err error) {
	conn, err := a.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			activity.GetLogger(ctx).Warn("failed to close processor session", "error", closeErr)
		}
	}()

	return conn.ProcessVideo(ctx, job)
}

func (a *InvokerActivities) classifyFailure(logger log.Logger, transport string, duration float64, err error) error {
	if !resilience.IsRetryable(err) {
		a.metrics.RecordInvocation(transport, "invocation", duration)
		logger.Error("remote processor rejected the job", "error", err)
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("processor invocation failed: %v", err),
			domain.ErrTypeInvocation,
			err,
		)
	}

	a.metrics.RecordInvocation(transport, "retryable", duration)
	logger.Warn("remote processor unavailable, attempt will be retried", "error", err)

	var connErr *domain.ConnectionError
	if errors.As(err, &connErr) {
		return temporal.NewApplicationError(connErr.Error(), domain.ErrTypeRetryable, err)
	}
	return temporal.NewApplicationError(
		fmt.Sprintf("processor invocation failed: %v", err),
		domain.ErrTypeRetryable,
		err,
	)
}

// startHeartbeat records liveness immediately and then on every tick until
// the returned stop function is called.
func (a *InvokerActivities) startHeartbeat(ctx context.Context, inputPath string) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})

	a.beat(ctx, inputPath)
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(a.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.beat(ctx, inputPath)
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

func (a *InvokerActivities) beat(ctx context.Context, inputPath string) {
	a.heartbeat(ctx, fmt.Sprintf("processing %s", inputPath))
	a.metrics.RecordHeartbeat()
}
