// Package activities provides Temporal activity implementations for the
// vehicle-tracking service.
//
// Activities take a domain.JobDescriptor and return a *domain.JobResult. Both
// cross the Temporal serialization boundary as JSON via the SDK's default
// data converter.
package activities

// ProcessVideoActivity is the registered name of InvokerActivities.ProcessVideo.
const ProcessVideoActivity = "ProcessVideo"
