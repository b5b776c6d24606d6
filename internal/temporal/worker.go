package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/vehicle-tracking-service/internal/observability"
)

// Worker defaults.
const (
	DefaultMaxConcurrentActivities = 5
	DefaultMaxConcurrentWorkflows  = 10
	DefaultShutdownGracePeriod     = 30 * time.Second
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// TaskQueue is the name of the task queue to poll.
	TaskQueue string

	// MaxConcurrentActivities bounds concurrent remote invocations.
	// Default: 5
	MaxConcurrentActivities int

	// MaxConcurrentWorkflows bounds concurrent workflow task executions.
	// Default: 10
	MaxConcurrentWorkflows int

	// ShutdownGracePeriod is how long in-flight activities may run after a
	// stop request. Default: 30s
	ShutdownGracePeriod time.Duration
}

// DefaultWorkerConfig returns a WorkerConfig with default values.
func DefaultWorkerConfig(taskQueue string) WorkerConfig {
	return WorkerConfig{
		TaskQueue:               taskQueue,
		MaxConcurrentActivities: DefaultMaxConcurrentActivities,
		MaxConcurrentWorkflows:  DefaultMaxConcurrentWorkflows,
		ShutdownGracePeriod:     DefaultShutdownGracePeriod,
	}
}

// WorkflowRegistry records the workflow names registered with the worker.
type WorkflowRegistry struct {
	workflows []string
}

// NewWorkflowRegistry creates a new empty workflow registry.
func NewWorkflowRegistry() *WorkflowRegistry {
	return &WorkflowRegistry{
		workflows: make([]string, 0),
	}
}

// Register records a workflow name.
func (r *WorkflowRegistry) Register(name string) {
	r.workflows = append(r.workflows, name)
}

// Names returns the registered workflow names.
func (r *WorkflowRegistry) Names() []string {
	return append([]string(nil), r.workflows...)
}

// ActivityRegistry holds activity functions or structs registered with the worker.
type ActivityRegistry struct {
	activities []interface{}
}

// NewActivityRegistry creates a new empty activity registry.
func NewActivityRegistry() *ActivityRegistry {
	return &ActivityRegistry{
		activities: make([]interface{}, 0),
	}
}

// Register adds an activity function or struct to the registry.
func (r *ActivityRegistry) Register(activity interface{}) {
	r.activities = append(r.activities, activity)
}

// Len returns the number of registered activity sets.
func (r *ActivityRegistry) Len() int {
	return len(r.activities)
}

// workerRunner is the subset of worker.Worker used by WorkerManager.
type workerRunner interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivity(a interface{})
	Run(interruptCh <-chan interface{}) error
	Stop()
}

// WorkerManager manages the lifecycle of a Temporal worker.
type WorkerManager struct {
	worker     workerRunner
	config     WorkerConfig
	workflows  *WorkflowRegistry
	activities *ActivityRegistry
	logger     zerolog.Logger
}

// workerOptionsFromConfig builds worker.Options from WorkerConfig, applying defaults
// for any zero-valued fields.
func workerOptionsFromConfig(config WorkerConfig) worker.Options {
	options := worker.Options{
		MaxConcurrentActivityExecutionSize:     config.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: config.MaxConcurrentWorkflows,
		WorkerStopTimeout:                      config.ShutdownGracePeriod,
	}

	if options.MaxConcurrentActivityExecutionSize <= 0 {
		options.MaxConcurrentActivityExecutionSize = DefaultMaxConcurrentActivities
	}
	if options.MaxConcurrentWorkflowTaskExecutionSize <= 0 {
		options.MaxConcurrentWorkflowTaskExecutionSize = DefaultMaxConcurrentWorkflows
	}
	if options.WorkerStopTimeout <= 0 {
		options.WorkerStopTimeout = DefaultShutdownGracePeriod
	}

	return options
}

// NewWorkerManager creates a new WorkerManager with the given configuration.
func NewWorkerManager(c client.Client, config WorkerConfig, logger zerolog.Logger) (*WorkerManager, error) {
	if config.TaskQueue == "" {
		return nil, fmt.Errorf("task queue is required")
	}
	if c == nil {
		return nil, fmt.Errorf("temporal client is required")
	}

	return newWorkerManager(worker.New(c, config.TaskQueue, workerOptionsFromConfig(config)), config, logger), nil
}

func newWorkerManager(w workerRunner, config WorkerConfig, logger zerolog.Logger) *WorkerManager {
	return &WorkerManager{
		worker:     w,
		config:     config,
		workflows:  NewWorkflowRegistry(),
		activities: NewActivityRegistry(),
		logger:     observability.WithComponent(logger, "worker"),
	}
}

// RegisterWorkflow registers a workflow function under name.
func (m *WorkerManager) RegisterWorkflow(wf interface{}, name string) {
	m.workflows.Register(name)
	m.worker.RegisterWorkflowWithOptions(wf, workflow.RegisterOptions{Name: name})
}

// RegisterActivity registers an activity function or struct.
func (m *WorkerManager) RegisterActivity(activity interface{}) {
	m.activities.Register(activity)
	m.worker.RegisterActivity(activity)
}

// TaskQueue returns the configured task queue name.
func (m *WorkerManager) TaskQueue() string {
	return m.config.TaskQueue
}

// Run polls the task queue until ctx is done, then stops accepting work and
// waits up to the shutdown grace period for in-flight activities. Startup
// failures are returned immediately.
func (m *WorkerManager) Run(ctx context.Context) error {
	interruptCh := make(chan interface{})
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			m.logger.Info().Dur("grace_period", workerOptionsFromConfig(m.config).WorkerStopTimeout).
				Msg("shutdown requested, draining in-flight activities")
			close(interruptCh)
		case <-done:
		}
	}()

	m.logger.Info().
		Str("task_queue", m.config.TaskQueue).
		Strs("workflows", m.workflows.Names()).
		Int("activity_sets", m.activities.Len()).
		Int("max_concurrent_activities", workerOptionsFromConfig(m.config).MaxConcurrentActivityExecutionSize).
		Int("max_concurrent_workflows", workerOptionsFromConfig(m.config).MaxConcurrentWorkflowTaskExecutionSize).
		Msg("worker ready, polling task queue")

	if err := m.worker.Run(interruptCh); err != nil {
		return fmt.Errorf("run worker: %w", err)
	}

	m.logger.Info().Msg("worker stopped")
	return nil
}

// Stop stops the worker.
func (m *WorkerManager) Stop() {
	m.worker.Stop()
}

// NewClient dials the Temporal frontend for the worker process.
func NewClient(ctx context.Context, cfg ClientConfig, logger zerolog.Logger) (client.Client, error) {
	cfg = cfg.withDefaults()

	options := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    observability.NewTemporalLogger(logger),
	}

	tlsConfig, err := cfg.TLS.buildTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("configure TLS: %w", err)
	}
	if tlsConfig != nil {
		options.ConnectionOptions = client.ConnectionOptions{TLS: tlsConfig}
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()

	c, err := client.DialContext(dialCtx, options)
	if err != nil {
		return nil, &TemporalError{Op: "Dial", Kind: ErrConnectionFailed, Err: err}
	}
	return c, nil
}
