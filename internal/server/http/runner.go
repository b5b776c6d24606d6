package httpserver

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
	"github.com/helixir/vehicle-tracking-service/internal/events"
	"github.com/helixir/vehicle-tracking-service/internal/observability"
	"github.com/helixir/vehicle-tracking-service/internal/repository"
	"github.com/helixir/vehicle-tracking-service/internal/temporal"
)

// persistTimeout bounds writing a finished job back to the case store and
// publishing its event.
const persistTimeout = 15 * time.Second

// errSuperseded aborts a write-back for a case that has since moved on to
// a different workflow.
var errSuperseded = errors.New("case is tracking a different workflow")

// workflowExecutor runs a workflow to completion.
type workflowExecutor interface {
	ExecuteWorkflow(ctx context.Context, job domain.JobDescriptor, opts ...temporal.StartOption) (*domain.JobResult, error)
}

// BackgroundRunner executes workflows for HTTP triggers outside the
// request lifecycle and records each outcome on its case. Every job runs in
// its own goroutine behind a panic boundary.
type BackgroundRunner struct {
	workflows workflowExecutor
	cases     repository.CaseRepository
	sink      events.ResultSink
	metrics   *observability.Metrics
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBackgroundRunner creates a runner. Jobs keep running until they finish
// or Shutdown gives up on them.
func NewBackgroundRunner(
	workflows workflowExecutor,
	cases repository.CaseRepository,
	sink events.ResultSink,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *BackgroundRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundRunner{
		workflows: workflows,
		cases:     cases,
		sink:      sink,
		metrics:   metrics,
		logger:    observability.WithComponent(logger, "background_runner"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit starts job as workflowID for caseID and returns immediately.
func (r *BackgroundRunner) Submit(caseID, workflowID string, job domain.JobDescriptor) {
	r.wg.Add(1)
	go r.run(caseID, workflowID, job)
}

func (r *BackgroundRunner) run(caseID, workflowID string, job domain.JobDescriptor) {
	defer r.wg.Done()
	logger := observability.WithCaseContext(r.logger, caseID).With().Str("workflow_id", workflowID).Logger()

	defer func() {
		if p := recover(); p != nil {
			logger.Error().
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("background job panicked")
			r.finish(logger, caseID, workflowID, nil, fmt.Errorf("background execution panicked: %v", p))
		}
	}()

	result, err := r.workflows.ExecuteWorkflow(r.ctx, job, temporal.WithWorkflowID(workflowID))
	if err != nil && r.ctx.Err() != nil {
		// The workflow itself keeps running on the orchestration server.
		logger.Warn().Err(err).Msg("runner stopped before the workflow finished; case left in processing")
		return
	}
	if err == nil && result == nil {
		err = domain.NewInvocationError("execute workflow", errors.New("no result returned"))
	}
	r.finish(logger, caseID, workflowID, result, err)
}

// finish writes the outcome to the case and publishes it. A run error is
// stored as the case's processing error and reverts its step.
func (r *BackgroundRunner) finish(logger zerolog.Logger, caseID, workflowID string, result *domain.JobResult, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if runErr != nil {
		logger.Error().Err(runErr).Msg("workflow execution failed")
		result = domain.NewFailureResult(runErr.Error(), nil)
	}

	err := r.cases.Update(ctx, caseID, func(c *domain.CaseState) error {
		if c.WorkflowID != workflowID {
			return errSuperseded
		}
		if runErr != nil {
			return c.ApplyError(runErr)
		}
		return c.ApplyResult(result)
	})
	switch {
	case errors.Is(err, errSuperseded):
		logger.Warn().Msg("case was re-triggered; discarding stale result")
		return
	case err != nil:
		logger.Error().Err(err).Msg("failed to persist job outcome")
	default:
		logger.Info().
			Bool("success", result.Success).
			Str("output_file", result.OutputFile).
			Str("error_message", result.ErrorMessage).
			Msg("job outcome persisted")
	}

	if err := r.sink.PublishResult(ctx, caseID, workflowID, result); err != nil {
		logger.Error().Err(err).Msg("failed to publish job result")
	}
}

// Shutdown waits for in-flight jobs. When ctx expires first, pending
// executions are abandoned and their cases stay in processing.
func (r *BackgroundRunner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return fmt.Errorf("background jobs still running at shutdown: %w", ctx.Err())
	}
}
