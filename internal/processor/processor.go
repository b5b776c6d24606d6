// Package processor connects activities to the remote video processor.
//
// Two transports are provided: gRPC, where JobDescriptor and JobResult travel
// as google.protobuf.Struct messages, and HTTP, where they travel as plain
// JSON. Both hand the raw response document back to the caller, which is
// responsible for decoding it with DecodeResult.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
	"github.com/helixir/vehicle-tracking-service/internal/ratelimit"
)

// Transport names used in logs and metrics.
const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"
)

// Dialer opens a fresh session with the remote processor. Each activity
// attempt dials once and closes the session on every exit path.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	Transport() string
}

// Conn is one session with the remote processor.
type Conn interface {
	// ProcessVideo submits job and returns the raw JSON response document.
	ProcessVideo(ctx context.Context, job domain.JobDescriptor) ([]byte, error)
	Close() error
}

// NewDialer returns the Dialer for transport. Both transports share the
// optional limiter; a nil limiter never throttles. connectTimeout bounds
// establishing a gRPC connection and is ignored for HTTP.
func NewDialer(transport, address string, connectTimeout time.Duration, limiter *ratelimit.Limiter) (Dialer, error) {
	if address == "" {
		return nil, domain.NewValidationError("processor.address", "is required")
	}
	switch transport {
	case TransportGRPC, "":
		return NewGRPCDialer(address, WithGRPCLimiter(limiter), WithConnectTimeout(connectTimeout)), nil
	case TransportHTTP:
		return NewHTTPDialer(address, 0, limiter), nil
	default:
		return nil, domain.NewValidationError("processor.transport", fmt.Sprintf("unsupported transport %q", transport))
	}
}

// Handler executes jobs on the serving side of either transport.
type Handler interface {
	ProcessVideo(ctx context.Context, job domain.JobDescriptor) (*domain.JobResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job domain.JobDescriptor) (*domain.JobResult, error)

// ProcessVideo calls f.
func (f HandlerFunc) ProcessVideo(ctx context.Context, job domain.JobDescriptor) (*domain.JobResult, error) {
	return f(ctx, job)
}

// DecodeResult parses a remote response document into a normalized
// JobResult. A document that is not a JSON object, or a successful result
// without an output file, is reported as an InvocationError.
func DecodeResult(raw []byte) (*domain.JobResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, domain.NewInvocationError("decode result", fmt.Errorf("expected JSON object, got %q", truncate(trimmed, 64)))
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var result domain.JobResult
	if err := dec.Decode(&result); err != nil {
		return nil, domain.NewInvocationError("decode result", err)
	}

	result.Normalize()
	if err := result.Validate(); err != nil {
		return nil, domain.NewInvocationError("decode result", err)
	}
	return &result, nil
}

// decodeJob parses and validates a request document on the serving side.
func decodeJob(raw []byte) (domain.JobDescriptor, error) {
	var job domain.JobDescriptor
	if err := json.Unmarshal(raw, &job); err != nil {
		return domain.JobDescriptor{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := job.Validate(); err != nil {
		return domain.JobDescriptor{}, err
	}
	return job, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
