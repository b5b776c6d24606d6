package domain

import (
	"errors"
	"fmt"
)

// Temporal application error types shared by the activity invoker and the
// workflow retry policy.
const (
	// ErrTypeRetryable marks a transient invocation failure that the retry
	// policy may re-attempt.
	ErrTypeRetryable = "RetryableError"

	// ErrTypeInvocation marks a malformed request or response. It is listed in
	// the retry policy's non-retryable error types.
	ErrTypeInvocation = "InvocationError"

	// ErrTypeTimeout marks an attempt that used up its start-to-close budget.
	// It is listed in the retry policy's non-retryable error types.
	ErrTypeTimeout = "TimeoutError"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotConnected indicates an orchestration client operation attempted
	// before Connect succeeded or after Disconnect.
	ErrNotConnected = errors.New("not connected to orchestration server")

	// ErrConnection indicates that the orchestration server or remote worker
	// could not be reached.
	ErrConnection = errors.New("connection failed")

	// ErrRetryable indicates a transient failure eligible for retry.
	ErrRetryable = errors.New("retryable failure")

	// ErrInvocation indicates a malformed request or response during activity
	// execution.
	ErrInvocation = errors.New("invocation failed")

	// ErrTimeout indicates an activity or workflow timeout budget was exceeded.
	ErrTimeout = errors.New("timed out")

	// ErrInvalidTransition indicates a disallowed phase or case step change.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ConnectionError reports that an address could not be reached.
type ConnectionError struct {
	Address string
	Cause   error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("cannot connect to %s", e.Address)
	}
	return fmt.Sprintf("cannot connect to %s: %v", e.Address, e.Cause)
}

// Unwrap exposes both the sentinel and the cause.
func (e *ConnectionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrConnection}
	}
	return []error{ErrConnection, e.Cause}
}

// RetryableError is a transient invocation failure.
type RetryableError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

// Unwrap exposes both the sentinel and the cause.
func (e *RetryableError) Unwrap() []error {
	return []error{ErrRetryable, e.Cause}
}

// InvocationError is a non-retryable failure caused by a malformed request
// or response.
type InvocationError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

// Unwrap exposes both the sentinel and the cause.
func (e *InvocationError) Unwrap() []error {
	return []error{ErrInvocation, e.Cause}
}

// Timeout budgets reported by TimeoutError.
const (
	TimeoutStartToClose = "start-to-close"
	TimeoutHeartbeat    = "heartbeat"
)

// TimeoutError reports which timeout budget was exhausted.
type TimeoutError struct {
	Kind string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout exceeded", e.Kind)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(address string, cause error) *ConnectionError {
	return &ConnectionError{Address: address, Cause: cause}
}

// NewRetryableError creates a new RetryableError.
func NewRetryableError(op string, cause error) *RetryableError {
	return &RetryableError{Op: op, Cause: cause}
}

// NewInvocationError creates a new InvocationError.
func NewInvocationError(op string, cause error) *InvocationError {
	return &InvocationError{Op: op, Cause: cause}
}
