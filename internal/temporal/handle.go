package temporal

import (
	"context"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
)

// WorkflowHandle refers to one workflow execution.
type WorkflowHandle struct {
	o          *Orchestrator
	workflowID string
	runID      string
	run        client.WorkflowRun
	startedAt  time.Time
}

// WorkflowID returns the workflow ID.
func (h *WorkflowHandle) WorkflowID() string { return h.workflowID }

// RunID returns the run ID, which may be empty for handles obtained before
// the run was known.
func (h *WorkflowHandle) RunID() string { return h.runID }

// Result blocks until the workflow closes. See Orchestrator.ExecuteWorkflow
// for the error contract.
func (h *WorkflowHandle) Result(ctx context.Context) (*domain.JobResult, error) {
	run := h.run
	startedAt := h.startedAt
	if run == nil {
		svc, err := h.o.service("GetWorkflowResult", h.workflowID)
		if err != nil {
			return nil, err
		}
		run = svc.GetWorkflow(ctx, h.workflowID, h.runID)
		startedAt = h.o.now()
	}
	return h.o.resultOf(ctx, run, startedAt)
}

// Status returns the current status message.
func (h *WorkflowHandle) Status(ctx context.Context) (string, error) {
	var status string
	err := h.o.query(ctx, "GetProcessingStatus", h.workflowID, h.runID, QueryProcessingStatus, &status)
	return status, err
}

// Phase returns the current phase.
func (h *WorkflowHandle) Phase(ctx context.Context) (domain.Phase, error) {
	var phase string
	err := h.o.query(ctx, "GetCurrentPhase", h.workflowID, h.runID, QueryCurrentPhase, &phase)
	return domain.Phase(phase), err
}

// History returns every phase transition so far.
func (h *WorkflowHandle) History(ctx context.Context) ([]domain.PhaseTransition, error) {
	var history []domain.PhaseTransition
	err := h.o.query(ctx, "GetPhaseHistory", h.workflowID, h.runID, QueryPhaseHistory, &history)
	return history, err
}

// Describe returns the runtime view of the execution.
func (h *WorkflowHandle) Describe(ctx context.Context) (*WorkflowDescription, error) {
	return h.o.describe(ctx, h.workflowID, h.runID)
}

// Cancel requests cooperative cancellation with reason.
func (h *WorkflowHandle) Cancel(ctx context.Context, reason string) error {
	return h.o.cancel(ctx, h.workflowID, h.runID, reason)
}

// Terminate forcefully closes the execution.
func (h *WorkflowHandle) Terminate(ctx context.Context, reason string) error {
	return h.o.terminate(ctx, h.workflowID, h.runID, reason)
}
