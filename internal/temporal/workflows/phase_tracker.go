package workflows

import (
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
)

// phaseTracker is the single writer of a workflow's phase. Query handlers
// read it between workflow tasks, so reads always observe the latest
// committed transition.
type phaseTracker struct {
	execution domain.WorkflowExecution
}

func newPhaseTracker(workflowID, runID string) *phaseTracker {
	return &phaseTracker{
		execution: domain.WorkflowExecution{
			WorkflowID: workflowID,
			RunID:      runID,
		},
	}
}

func (t *phaseTracker) registerQueries(ctx workflow.Context) error {
	if err := workflow.SetQueryHandler(ctx, QueryProcessingStatus, func() (string, error) {
		return t.execution.StatusMessage, nil
	}); err != nil {
		return err
	}
	if err := workflow.SetQueryHandler(ctx, QueryCurrentPhase, func() (string, error) {
		return string(t.execution.Phase), nil
	}); err != nil {
		return err
	}
	return workflow.SetQueryHandler(ctx, QueryPhaseHistory, func() ([]domain.PhaseTransition, error) {
		history := make([]domain.PhaseTransition, len(t.execution.History))
		copy(history, t.execution.History)
		return history, nil
	})
}

// transition moves to next. Moves the state machine does not allow are
// logged and ignored so a terminal phase is never left.
func (t *phaseTracker) transition(ctx workflow.Context, next domain.Phase, message string) {
	current := t.execution.Phase
	if !current.CanTransitionTo(next) {
		workflow.GetLogger(ctx).Warn("ignoring invalid phase transition",
			"error", &domain.InvalidTransitionError{From: current, To: next})
		return
	}

	t.execution.Phase = next
	t.execution.StatusMessage = message
	t.execution.History = append(t.execution.History, domain.PhaseTransition{
		Phase:         next,
		StatusMessage: message,
		At:            workflow.Now(ctx),
	})
	workflow.GetLogger(ctx).Info("phase transition", "phase", string(next), "status", message)
}

// fail enters the failed phase and builds the matching result.
func (t *phaseTracker) fail(ctx workflow.Context, message string) *domain.JobResult {
	return t.failWith(ctx, domain.NewFailureResult(message, nil), message)
}

func (t *phaseTracker) failWith(ctx workflow.Context, result *domain.JobResult, message string) *domain.JobResult {
	t.transition(ctx, domain.PhaseFailed, message)
	return result
}
