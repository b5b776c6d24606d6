package resilience

import (
	"time"

	"go.temporal.io/sdk/temporal"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
)

// Activity timeouts of one processing attempt.
const (
	StartToCloseTimeout    = 30 * time.Minute
	ScheduleToCloseTimeout = 35 * time.Minute
	HeartbeatTimeout       = 30 * time.Second
)

// ServerStartToCloseTimeoutType is the failure type the server matches
// against NonRetryableErrorTypes when it enforces the start-to-close timeout
// itself. Heartbeat timeouts are left retryable.
const ServerStartToCloseTimeoutType = "TemporalTimeout:StartToClose"

// RetryPolicy is the retry envelope of the processing activity.
type RetryPolicy struct {
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration

	// BackoffCoefficient controls exponential growth of the interval.
	BackoffCoefficient float64

	// MaximumInterval caps the interval.
	MaximumInterval time.Duration

	// MaximumAttempts counts the first attempt too.
	MaximumAttempts int32

	// NonRetryableErrorTypes lists application error types that end the
	// activity on their first occurrence.
	NonRetryableErrorTypes []string
}

// DefaultProcessingPolicy returns the retry policy of the ProcessVideo
// activity: 1s initial, x2, capped at 30s, three attempts. Invocation errors
// and start-to-close timeouts end the activity on the first occurrence.
func DefaultProcessingPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    30 * time.Second,
		MaximumAttempts:    3,
		NonRetryableErrorTypes: []string{
			domain.ErrTypeInvocation,
			domain.ErrTypeTimeout,
			ServerStartToCloseTimeoutType,
		},
	}
}

// BackoffForAttempt computes the delay before retry number attempt
// (0-indexed: 0 is the wait after the first failure).
func (p RetryPolicy) BackoffForAttempt(attempt int) time.Duration {
	backoff := p.InitialInterval
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffCoefficient)
		if backoff > p.MaximumInterval {
			backoff = p.MaximumInterval
			break
		}
	}
	return backoff
}

// Schedule lists every wait between attempts.
func (p RetryPolicy) Schedule() []time.Duration {
	if p.MaximumAttempts <= 1 {
		return nil
	}
	waits := make([]time.Duration, 0, p.MaximumAttempts-1)
	for i := 0; i < int(p.MaximumAttempts)-1; i++ {
		waits = append(waits, p.BackoffForAttempt(i))
	}
	return waits
}

// ToTemporal converts p to the SDK retry policy.
func (p RetryPolicy) ToTemporal() *temporal.RetryPolicy {
	nonRetryable := make([]string, len(p.NonRetryableErrorTypes))
	copy(nonRetryable, p.NonRetryableErrorTypes)
	return &temporal.RetryPolicy{
		InitialInterval:        p.InitialInterval,
		BackoffCoefficient:     p.BackoffCoefficient,
		MaximumInterval:        p.MaximumInterval,
		MaximumAttempts:        p.MaximumAttempts,
		NonRetryableErrorTypes: nonRetryable,
	}
}
