package domain

import (
	"errors"
	"strings"
)

// ErrEmptyFailureMessage is used when a remote worker reports failure
// without explaining why.
const ErrEmptyFailureMessage = "remote worker reported failure without an error message"

// JobResult is the outcome of one JobDescriptor's execution.
//
// Exactly one of OutputFile and ErrorMessage is set: a successful result has
// a usable output file and no error, a failed one has an error and no output.
type JobResult struct {
	Success           bool     `json:"success"`
	OutputFile        string   `json:"output_file"`
	ProcessingSummary *Summary `json:"processing_summary"`
	ErrorMessage      string   `json:"error_message,omitempty"`
}

// NewSuccessResult builds a successful result.
func NewSuccessResult(outputFile string, summary *Summary) *JobResult {
	if summary == nil {
		summary = NewSummary()
	}
	return &JobResult{
		Success:           true,
		OutputFile:        outputFile,
		ProcessingSummary: summary,
	}
}

// NewFailureResult builds a failed result carrying message.
func NewFailureResult(message string, summary *Summary) *JobResult {
	if summary == nil {
		summary = NewSummary()
	}
	if strings.TrimSpace(message) == "" {
		message = ErrEmptyFailureMessage
	}
	return &JobResult{
		Success:           false,
		ErrorMessage:      message,
		ProcessingSummary: summary,
	}
}

// Validate reports a ValidationError when the output/error exclusivity
// does not hold.
func (r *JobResult) Validate() error {
	if r == nil {
		return NewValidationError("result", "is nil")
	}
	if r.Success {
		var errs []error
		if r.OutputFile == "" {
			errs = append(errs, NewValidationError("output_file", "is required when success is true"))
		}
		if r.ErrorMessage != "" {
			errs = append(errs, NewValidationError("error_message", "must be empty when success is true"))
		}
		return errors.Join(errs...)
	}
	var errs []error
	if r.OutputFile != "" {
		errs = append(errs, NewValidationError("output_file", "must be empty when success is false"))
	}
	if r.ErrorMessage == "" {
		errs = append(errs, NewValidationError("error_message", "is required when success is false"))
	}
	return errors.Join(errs...)
}

// Normalize coerces a remotely reported failure into the exclusive form:
// the output file is dropped and a missing error message is filled in. A
// nil summary becomes empty. Successful results are left untouched so
// Validate can reject malformed ones.
func (r *JobResult) Normalize() *JobResult {
	if r.ProcessingSummary == nil {
		r.ProcessingSummary = NewSummary()
	}
	if !r.Success {
		r.OutputFile = ""
		if strings.TrimSpace(r.ErrorMessage) == "" {
			r.ErrorMessage = ErrEmptyFailureMessage
		}
	}
	return r
}
