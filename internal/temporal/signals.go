package temporal

// Workflow type, task queue and ID conventions shared by the client, the
// worker and the workflow definitions.
const (
	// WorkflowType is the registered name of the video-tracking workflow.
	// The client starts it by name so this package need not import the
	// workflows package.
	WorkflowType = "VideoTrackingWorkflow"

	// DefaultTaskQueue is the task queue polled by video-tracking workers.
	DefaultTaskQueue = "vehicle-tracking"

	// WorkflowIDPrefix prefixes generated workflow IDs.
	WorkflowIDPrefix = "video-tracking"
)

// Query and signal names for external interaction with running workflows.
const (
	// QueryProcessingStatus returns the current human-readable status message.
	QueryProcessingStatus = "getProcessingStatus"

	// QueryCurrentPhase returns the current phase.
	QueryCurrentPhase = "getCurrentPhase"

	// QueryPhaseHistory returns every phase transition so far, oldest first.
	QueryPhaseHistory = "getPhaseHistory"

	// SignalCancel requests cooperative cancellation. Its payload is a
	// CancelSignal.
	SignalCancel = "cancel"
)

// CancelSignal carries the reason for a cooperative cancellation.
type CancelSignal struct {
	Reason string `json:"reason"`
}
