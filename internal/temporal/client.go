package temporal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
	"github.com/helixir/vehicle-tracking-service/internal/observability"
)

// Default timeouts of the orchestration client.
const (
	// DefaultConnectionTimeout bounds Connect.
	DefaultConnectionTimeout = 10 * time.Second

	// DefaultHealthCheckTimeout is the timeout for Temporal server health checks.
	DefaultHealthCheckTimeout = 5 * time.Second

	// DefaultWorkflowExecutionTimeout bounds a whole run. It leaves room above
	// the 35 minute schedule-to-close budget of the processing activity.
	DefaultWorkflowExecutionTimeout = 40 * time.Minute
)

// WorkflowService is the subset of client.Client used by the Orchestrator.
type WorkflowService interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	GetWorkflow(ctx context.Context, workflowID string, runID string) client.WorkflowRun
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
	SignalWorkflow(ctx context.Context, workflowID string, runID string, signalName string, arg interface{}) error
	CancelWorkflow(ctx context.Context, workflowID string, runID string) error
	TerminateWorkflow(ctx context.Context, workflowID string, runID string, reason string, details ...interface{}) error
	CheckHealth(ctx context.Context, request *client.CheckHealthRequest) (*client.CheckHealthResponse, error)
	Close()
}

// DialFunc opens a WorkflowService.
type DialFunc func(ctx context.Context, options client.Options) (WorkflowService, error)

func dialTemporal(ctx context.Context, options client.Options) (WorkflowService, error) {
	return client.DialContext(ctx, options)
}

// ClientConfig contains configuration for the orchestration client.
type ClientConfig struct {
	// HostPort is the Temporal server address (e.g., "localhost:7233").
	HostPort string

	// Namespace is the Temporal namespace to use.
	Namespace string

	// TaskQueue is the task queue new workflows are started on.
	TaskQueue string

	// TLS contains optional TLS configuration.
	TLS *TLSConfig

	// ConnectionTimeout is the timeout for establishing the connection.
	// Defaults to 10 seconds if not set.
	ConnectionTimeout time.Duration

	// HealthCheckTimeout is the timeout for health check operations.
	// Defaults to 5 seconds if not set.
	HealthCheckTimeout time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.HostPort == "" {
		c.HostPort = client.DefaultHostPort
	}
	if c.Namespace == "" {
		c.Namespace = client.DefaultNamespace
	}
	if c.TaskQueue == "" {
		c.TaskQueue = DefaultTaskQueue
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = DefaultHealthCheckTimeout
	}
	return c
}

// connState is either disconnected or connected.
type connState interface {
	isConnState()
}

type disconnected struct{}

type connected struct {
	svc     WorkflowService
	address string
}

func (disconnected) isConnState() {}
func (connected) isConnState()    {}

// Orchestrator is the caller-facing client of the video-tracking workflow.
// Every operation except Connect and Disconnect requires a prior successful
// Connect and fails with domain.ErrNotConnected otherwise. It is safe for
// concurrent use.
type Orchestrator struct {
	mu      sync.RWMutex
	state   connState
	cfg     ClientConfig
	dial    DialFunc
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithDialFunc replaces the Temporal dialer.
func WithDialFunc(dial DialFunc) OrchestratorOption {
	return func(o *Orchestrator) { o.dial = dial }
}

// WithLogger sets the logger used by the client and the Temporal SDK.
func WithLogger(logger zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics records job starts and outcomes.
func WithMetrics(m *observability.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates a disconnected Orchestrator.
func NewOrchestrator(cfg ClientConfig, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		state:  disconnected{},
		cfg:    cfg.withDefaults(),
		dial:   dialTemporal,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = observability.WithComponent(o.logger, "orchestrator")
	return o
}

// Connect dials the Temporal frontend at address, or at the configured
// HostPort when address is empty. Calling Connect while connected is a no-op.
func (o *Orchestrator) Connect(ctx context.Context, address string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if c, ok := o.state.(connected); ok {
		o.logger.Debug().Str("address", c.address).Msg("already connected")
		return nil
	}

	if address == "" {
		address = o.cfg.HostPort
	}

	options := client.Options{
		HostPort:  address,
		Namespace: o.cfg.Namespace,
		Logger:    observability.NewTemporalLogger(o.logger),
	}
	tlsConfig, err := o.cfg.TLS.buildTLSConfig()
	if err != nil {
		return &TemporalError{Op: "Connect", Kind: ErrInvalidArgument, Err: fmt.Errorf("configure TLS: %w", err)}
	}
	if tlsConfig != nil {
		options.ConnectionOptions = client.ConnectionOptions{TLS: tlsConfig}
	}

	dialCtx, cancel := context.WithTimeout(ctx, o.cfg.ConnectionTimeout)
	defer cancel()

	svc, err := o.dial(dialCtx, options)
	if err != nil {
		o.logger.Error().Err(err).Str("address", address).Msg("failed to connect to orchestration server")
		return &TemporalError{
			Op:   "Connect",
			Kind: ErrConnectionFailed,
			Err:  domain.NewConnectionError(address, err),
		}
	}

	o.state = connected{svc: svc, address: address}
	o.logger.Info().Str("address", address).Str("namespace", o.cfg.Namespace).Msg("connected to orchestration server")
	return nil
}

// Disconnect releases the connection. It is a no-op when not connected.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	defer o.mu.Unlock()

	c, ok := o.state.(connected)
	if !ok {
		return
	}
	c.svc.Close()
	o.state = disconnected{}
	o.logger.Info().Str("address", c.address).Msg("disconnected from orchestration server")
}

// IsConnected reports whether Connect has succeeded and Disconnect has not
// been called since.
func (o *Orchestrator) IsConnected() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.state.(connected)
	return ok
}

func (o *Orchestrator) service(op, workflowID string) (WorkflowService, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.state.(connected)
	if !ok {
		return nil, notConnected(op, workflowID)
	}
	return c.svc, nil
}

// Health checks the connection to the Temporal server.
func (o *Orchestrator) Health(ctx context.Context) error {
	svc, err := o.service("Health", "")
	if err != nil {
		return err
	}

	checkCtx, cancel := context.WithTimeout(ctx, o.cfg.HealthCheckTimeout)
	defer cancel()

	if _, err := svc.CheckHealth(checkCtx, &client.CheckHealthRequest{}); err != nil {
		return wrapTemporalError("Health", err, "", "")
	}
	return nil
}

// StartOptions customize StartWorkflow.
type StartOptions struct {
	// WorkflowID overrides the generated ID.
	WorkflowID string

	// TaskQueue overrides the configured task queue.
	TaskQueue string
}

// StartOption customizes StartWorkflow.
type StartOption func(*StartOptions)

// WithWorkflowID sets an explicit workflow ID.
func WithWorkflowID(id string) StartOption {
	return func(o *StartOptions) { o.WorkflowID = id }
}

// WithTaskQueue starts the workflow on a different task queue.
func WithTaskQueue(queue string) StartOption {
	return func(o *StartOptions) { o.TaskQueue = queue }
}

// NewWorkflowID generates a unique, timestamp-derived workflow ID.
func NewWorkflowID(now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", WorkflowIDPrefix, now.UnixMilli(), strings.SplitN(uuid.NewString(), "-", 2)[0])
}

// StartWorkflow validates job and begins a workflow execution without
// waiting for it to finish.
func (o *Orchestrator) StartWorkflow(ctx context.Context, job domain.JobDescriptor, opts ...StartOption) (*WorkflowHandle, error) {
	so := StartOptions{TaskQueue: o.cfg.TaskQueue}
	for _, opt := range opts {
		opt(&so)
	}
	if so.WorkflowID == "" {
		so.WorkflowID = NewWorkflowID(o.now())
	}

	svc, err := o.service("StartWorkflow", so.WorkflowID)
	if err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	options := client.StartWorkflowOptions{
		ID:                       so.WorkflowID,
		TaskQueue:                so.TaskQueue,
		WorkflowExecutionTimeout: DefaultWorkflowExecutionTimeout,
	}

	run, err := svc.ExecuteWorkflow(ctx, options, WorkflowType, job)
	if err != nil {
		return nil, wrapTemporalError("StartWorkflow", err, so.WorkflowID, "")
	}

	o.metrics.RecordJobStarted()
	o.logger.Info().
		Str("workflow_id", run.GetID()).
		Str("run_id", run.GetRunID()).
		Str("task_queue", so.TaskQueue).
		Str("input_path", job.InputPath).
		Msg("workflow started")

	return &WorkflowHandle{
		o:          o,
		workflowID: run.GetID(),
		runID:      run.GetRunID(),
		run:        run,
		startedAt:  o.now(),
	}, nil
}

// ExecuteWorkflow starts a workflow and blocks until it reaches a terminal
// phase. A job that runs but fails yields a success=false result and a nil
// error. An error is returned only when the orchestration server cannot
// be used.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, job domain.JobDescriptor, opts ...StartOption) (*domain.JobResult, error) {
	handle, err := o.StartWorkflow(ctx, job, opts...)
	if err != nil {
		return nil, err
	}
	return handle.Result(ctx)
}

// GetWorkflowHandle looks up an existing execution. Unknown IDs fail with
// an error matching domain.ErrNotFound.
func (o *Orchestrator) GetWorkflowHandle(ctx context.Context, workflowID string) (*WorkflowHandle, error) {
	svc, err := o.service("GetWorkflowHandle", workflowID)
	if err != nil {
		return nil, err
	}

	resp, err := svc.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return nil, wrapTemporalError("GetWorkflowHandle", err, workflowID, "")
	}

	runID := ""
	if info := resp.GetWorkflowExecutionInfo(); info != nil {
		runID = info.GetExecution().GetRunId()
	}
	return &WorkflowHandle{o: o, workflowID: workflowID, runID: runID}, nil
}

// GetProcessingStatus returns the status message of a workflow.
func (o *Orchestrator) GetProcessingStatus(ctx context.Context, workflowID string) (string, error) {
	var status string
	if err := o.query(ctx, "GetProcessingStatus", workflowID, "", QueryProcessingStatus, &status); err != nil {
		return "", err
	}
	return status, nil
}

// GetCurrentPhase returns the phase of a workflow.
func (o *Orchestrator) GetCurrentPhase(ctx context.Context, workflowID string) (domain.Phase, error) {
	var phase string
	if err := o.query(ctx, "GetCurrentPhase", workflowID, "", QueryCurrentPhase, &phase); err != nil {
		return "", err
	}
	return domain.Phase(phase), nil
}

// GetPhaseHistory returns every phase transition of a workflow, oldest first.
func (o *Orchestrator) GetPhaseHistory(ctx context.Context, workflowID string) ([]domain.PhaseTransition, error) {
	var history []domain.PhaseTransition
	if err := o.query(ctx, "GetPhaseHistory", workflowID, "", QueryPhaseHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// GetExecution returns the queried phase, status and history of a workflow.
func (o *Orchestrator) GetExecution(ctx context.Context, workflowID string) (*domain.WorkflowExecution, error) {
	handle, err := o.GetWorkflowHandle(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	history, err := handle.History(ctx)
	if err != nil {
		return nil, err
	}

	exec := &domain.WorkflowExecution{
		WorkflowID: workflowID,
		RunID:      handle.RunID(),
		History:    history,
	}
	if n := len(history); n > 0 {
		exec.Phase = history[n-1].Phase
		exec.StatusMessage = history[n-1].StatusMessage
	}
	return exec, nil
}

// CancelWorkflow requests cooperative cancellation. The workflow records
// reason in its failed status message.
func (o *Orchestrator) CancelWorkflow(ctx context.Context, workflowID, reason string) error {
	return o.cancel(ctx, workflowID, "", reason)
}

// TerminateWorkflow forcefully closes a workflow. The workflow code does not
// observe it and an in-flight remote call is abandoned.
func (o *Orchestrator) TerminateWorkflow(ctx context.Context, workflowID, reason string) error {
	return o.terminate(ctx, workflowID, "", reason)
}

func (o *Orchestrator) cancel(ctx context.Context, workflowID, runID, reason string) error {
	svc, err := o.service("CancelWorkflow", workflowID)
	if err != nil {
		return err
	}
	if err := svc.SignalWorkflow(ctx, workflowID, runID, SignalCancel, CancelSignal{Reason: reason}); err != nil {
		return wrapTemporalError("CancelWorkflow", err, workflowID, runID)
	}
	o.logger.Info().Str("workflow_id", workflowID).Str("reason", reason).Msg("cancellation requested")
	return nil
}

func (o *Orchestrator) terminate(ctx context.Context, workflowID, runID, reason string) error {
	svc, err := o.service("TerminateWorkflow", workflowID)
	if err != nil {
		return err
	}
	if err := svc.TerminateWorkflow(ctx, workflowID, runID, reason); err != nil {
		return wrapTemporalError("TerminateWorkflow", err, workflowID, runID)
	}
	o.logger.Warn().Str("workflow_id", workflowID).Str("reason", reason).Msg("workflow terminated")
	return nil
}

func (o *Orchestrator) query(ctx context.Context, op, workflowID, runID, queryType string, result interface{}) error {
	svc, err := o.service(op, workflowID)
	if err != nil {
		return err
	}

	resp, err := svc.QueryWorkflow(ctx, workflowID, runID, queryType)
	if err != nil {
		return wrapTemporalError(op, err, workflowID, runID)
	}
	if err := resp.Get(result); err != nil {
		return &TemporalError{
			Op:         op,
			Kind:       ErrQueryFailed,
			WorkflowID: workflowID,
			RunID:      runID,
			Err:        fmt.Errorf("decode query result: %w", err),
		}
	}
	return nil
}

// WorkflowDescription contains information about a workflow execution.
type WorkflowDescription struct {
	// WorkflowID is the workflow identifier.
	WorkflowID string
	// RunID is the workflow run identifier.
	RunID string
	// Status is the runtime execution status, e.g. "Running" or "Completed".
	Status string
	// StartTime is when the workflow started.
	StartTime time.Time
	// CloseTime is when the workflow completed (nil if still running).
	CloseTime *time.Time
}

func (o *Orchestrator) describe(ctx context.Context, workflowID, runID string) (*WorkflowDescription, error) {
	svc, err := o.service("DescribeWorkflow", workflowID)
	if err != nil {
		return nil, err
	}

	resp, err := svc.DescribeWorkflowExecution(ctx, workflowID, runID)
	if err != nil {
		return nil, wrapTemporalError("DescribeWorkflow", err, workflowID, runID)
	}

	info := resp.GetWorkflowExecutionInfo()
	desc := &WorkflowDescription{
		WorkflowID: workflowID,
		RunID:      info.GetExecution().GetRunId(),
		Status:     info.GetStatus().String(),
		StartTime:  info.GetStartTime().AsTime(),
	}
	if info.GetCloseTime() != nil {
		closeTime := info.GetCloseTime().AsTime()
		desc.CloseTime = &closeTime
	}
	return desc, nil
}

// resultOf waits for run and converts a closed-but-unsuccessful execution
// into a failure result.
func (o *Orchestrator) resultOf(ctx context.Context, run client.WorkflowRun, startedAt time.Time) (*domain.JobResult, error) {
	var result domain.JobResult
	err := run.Get(ctx, &result)
	elapsed := o.now().Sub(startedAt).Seconds()

	if err != nil {
		var execErr *temporal.WorkflowExecutionError
		if !errors.As(err, &execErr) {
			return nil, wrapTemporalError("GetWorkflowResult", err, run.GetID(), run.GetRunID())
		}
		reason, message := describeExecutionError(execErr)
		o.metrics.RecordJobFailed(reason, elapsed)
		o.logger.Warn().Err(err).Str("workflow_id", run.GetID()).Msg("workflow closed without a result")
		return domain.NewFailureResult(message, nil), nil
	}

	result.Normalize()
	if result.Success {
		o.metrics.RecordJobCompleted(elapsed)
	} else {
		o.metrics.RecordJobFailed("job_failure", elapsed)
	}
	return &result, nil
}

func describeExecutionError(execErr *temporal.WorkflowExecutionError) (reason, message string) {
	var terminated *temporal.TerminatedError
	var canceled *temporal.CanceledError
	var timeout *temporal.TimeoutError
	switch {
	case errors.As(execErr, &terminated):
		return "terminated", "Workflow terminated"
	case errors.As(execErr, &canceled):
		return "cancelled", "Workflow cancelled"
	case errors.As(execErr, &timeout):
		return "timeout", "Workflow timed out"
	default:
		return "runtime", fmt.Sprintf("Workflow failed: %v", errors.Unwrap(execErr))
	}
}
