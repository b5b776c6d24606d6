package domain

import (
	"fmt"
	"time"
)

// CaseStep is the position of a legal case in the processing pipeline.
type CaseStep string

// Case steps relevant to video processing.
const (
	CaseStepVideoUploaded  CaseStep = "video_uploaded"
	CaseStepProcessing     CaseStep = "processing"
	CaseStepVideoProcessed CaseStep = "video_processed"
)

// validCaseStepTransitions defines the allowed step changes. A processing
// case reverts to video_uploaded on failure so it can be retried.
var validCaseStepTransitions = map[CaseStep][]CaseStep{
	CaseStepVideoUploaded:  {CaseStepProcessing},
	CaseStepProcessing:     {CaseStepVideoProcessed, CaseStepVideoUploaded},
	CaseStepVideoProcessed: {CaseStepProcessing},
}

// CanTransitionTo reports whether a case may move from s to next.
func (s CaseStep) CanTransitionTo(next CaseStep) bool {
	for _, allowed := range validCaseStepTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsRetryEligible reports whether processing may be (re)started from s.
func (s CaseStep) IsRetryEligible() bool {
	return s.CanTransitionTo(CaseStepProcessing)
}

// CaseState is the JSON document stored per case.
type CaseState struct {
	CaseID             string    `json:"case_id"`
	VideoPath          string    `json:"video_path"`
	ProcessedVideoPath string    `json:"processed_video_path,omitempty"`
	ProcessingSummary  *Summary  `json:"processing_summary,omitempty"`
	ProcessingError    string    `json:"processing_error,omitempty"`
	Step               CaseStep  `json:"step"`
	WorkflowID         string    `json:"workflow_id,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TransitionTo moves the case to next, rejecting disallowed changes.
func (c *CaseState) TransitionTo(next CaseStep) error {
	if !c.Step.CanTransitionTo(next) {
		return fmt.Errorf("case %s: %w: %s -> %s", c.CaseID, ErrInvalidTransition, c.Step, next)
	}
	c.Step = next
	return nil
}

// ApplyResult records a finished job. Success marks the case processed;
// failure stores the error and reverts to a retry-eligible step.
func (c *CaseState) ApplyResult(r *JobResult) error {
	c.ProcessingSummary = r.ProcessingSummary
	if r.Success {
		c.ProcessedVideoPath = r.OutputFile
		c.ProcessingError = ""
		return c.TransitionTo(CaseStepVideoProcessed)
	}
	c.ProcessingError = r.ErrorMessage
	return c.TransitionTo(CaseStepVideoUploaded)
}

// ApplyError records a failure to run the job at all.
func (c *CaseState) ApplyError(err error) error {
	c.ProcessingError = err.Error()
	return c.TransitionTo(CaseStepVideoUploaded)
}
