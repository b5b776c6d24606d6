package domain

import (
	"fmt"
	"time"
)

// Phase is the lifecycle stage of one workflow execution.
type Phase string

// Workflow phases in lifecycle order.
const (
	PhaseInitializing Phase = "initializing"
	PhaseProcessing   Phase = "processing"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
)

// phaseEdges lists the allowed successors of each phase. Failure is only
// reachable from processing, so every run's log is a prefix of
// initializing, processing, completed|failed.
var phaseEdges = map[Phase][]Phase{
	"":                {PhaseInitializing},
	PhaseInitializing: {PhaseProcessing},
	PhaseProcessing:   {PhaseCompleted, PhaseFailed},
}

// IsTerminal reports whether p ends the execution.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// CanTransitionTo reports whether next is an allowed successor of p. The
// empty phase may only move to initializing.
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, allowed := range phaseEdges[p] {
		if next == allowed {
			return true
		}
	}
	return false
}

// PhaseTransition is one entry of a workflow's append-only phase log.
type PhaseTransition struct {
	Phase         Phase     `json:"phase"`
	StatusMessage string    `json:"status_message"`
	At            time.Time `json:"at"`
}

// WorkflowExecution is a point-in-time view of one workflow run.
type WorkflowExecution struct {
	WorkflowID    string            `json:"workflow_id"`
	RunID         string            `json:"run_id,omitempty"`
	Phase         Phase             `json:"phase"`
	StatusMessage string            `json:"status_message"`
	History       []PhaseTransition `json:"history,omitempty"`
}

// InvalidTransitionError reports a rejected phase change.
type InvalidTransitionError struct {
	From Phase
	To   Phase
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid phase transition from %q to %q", e.From, e.To)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
