// Package temporal integrates the vehicle-tracking service with Temporal.
//
// It holds the caller-facing Orchestrator, the worker lifecycle, and the
// names shared between them: the workflow type, task queue, query handlers
// and the cancel signal.
//
// # Orchestrator
//
// An Orchestrator starts disconnected. Every operation other than Connect
// and Disconnect fails with domain.ErrNotConnected until Connect succeeds:
//
//	o := temporal.NewOrchestrator(temporal.ClientConfig{
//	    HostPort:  "localhost:7233",
//	    TaskQueue: temporal.DefaultTaskQueue,
//	}, temporal.WithLogger(logger))
//	if err := o.Connect(ctx, ""); err != nil {
//	    return err
//	}
//	defer o.Disconnect()
//
//	job, _ := domain.NewDemoModeRequest("videos/demo.mov")
//	result, err := o.ExecuteWorkflow(ctx, job)
//
// ExecuteWorkflow returns an error only when the orchestration server cannot
// be used. A job that ran and failed yields result.Success == false.
//
// # Worker
//
// A WorkerManager polls one task queue. Workflows are registered by name so
// that clients can start them without importing the workflow package:
//
//	m, err := temporal.NewWorkerManager(c, temporal.DefaultWorkerConfig(queue), logger)
//	m.RegisterWorkflow(workflows.VideoTrackingWorkflow, temporal.WorkflowType)
//	m.RegisterActivity(activities.NewInvokerActivities(dialer, metrics))
//	err = m.Run(ctx)
//
// Run returns after ctx is done and in-flight activities have had the
// shutdown grace period to finish.
//
// # Errors
//
// Orchestration failures are *TemporalError values whose Kind wraps a domain
// sentinel, so both of these hold for an unknown workflow:
//
//	temporal.IsWorkflowNotFound(err)
//	errors.Is(err, domain.ErrNotFound)
package temporal
