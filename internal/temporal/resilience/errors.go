// Package resilience classifies remote processor failures and defines the
// retry envelope applied to each processing attempt.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"

	"go.temporal.io/sdk/temporal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
)

// ErrorCategory decides whether a failed attempt may be retried.
type ErrorCategory int

const (
	// Transient errors are temporary failures that the retry policy should
	// re-attempt (connection refused, unavailable, 5xx).
	Transient ErrorCategory = iota

	// Permanent errors are malformed requests or responses. Retrying them
	// cannot succeed.
	Permanent
)

// String returns a human-readable name for the category.
func (c ErrorCategory) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatusCode() int
}

var transientSubstrings = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"unavailable",
	"temporary",
	"deadline exceeded",
	"eof",
}

var permanentSubstrings = []string{
	"bad request",
	"invalid argument",
	"unimplemented",
	"cannot unmarshal",
	"malformed",
	"validation",
}

// Classify inspects err and returns its ErrorCategory.
//
// Classification priority:
//  1. Nil and context cancellation: Permanent
//  2. Temporal ApplicationError type and NonRetryable flag
//  3. Domain sentinels
//  4. gRPC status codes, then HTTP status codes, then net.Error
//  5. Message substrings (transient first)
//  6. Default: Transient
func Classify(err error) ErrorCategory {
	if err == nil || errors.Is(err, context.Canceled) {
		return Permanent
	}

	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		switch appErr.Type() {
		case domain.ErrTypeInvocation, domain.ErrTypeTimeout:
			return Permanent
		case domain.ErrTypeRetryable:
			return Transient
		}
		if appErr.NonRetryable() {
			return Permanent
		}
	}

	switch {
	case errors.Is(err, domain.ErrInvocation), errors.Is(err, domain.ErrInvalidInput):
		return Permanent
	case errors.Is(err, domain.ErrConnection), errors.Is(err, domain.ErrRetryable):
		return Transient
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		return classifyGRPCCode(st.Code())
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return classifyHTTPStatus(sc.HTTPStatusCode())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}

	msg := strings.ToLower(err.Error())
	for _, sub := range transientSubstrings {
		if strings.Contains(msg, sub) {
			return Transient
		}
	}
	for _, sub := range permanentSubstrings {
		if strings.Contains(msg, sub) {
			return Permanent
		}
	}

	return Transient
}

func classifyGRPCCode(code codes.Code) ErrorCategory {
	switch code {
	case codes.InvalidArgument, codes.Unimplemented, codes.NotFound,
		codes.PermissionDenied, codes.Unauthenticated, codes.FailedPrecondition,
		codes.OutOfRange, codes.DataLoss, codes.AlreadyExists:
		return Permanent
	default:
		return Transient
	}
}

func classifyHTTPStatus(code int) ErrorCategory {
	switch {
	case code == 408 || code == 429:
		return Transient
	case code >= 500:
		return Transient
	case code >= 400:
		return Permanent
	default:
		return Transient
	}
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	return err != nil && Classify(err) == Transient
}
