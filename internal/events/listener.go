package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
	"github.com/helixir/vehicle-tracking-service/internal/observability"
)

// defaultCancelReason is used when a request does not carry a reason.
const defaultCancelReason = "cancel requested via event"

// fetchRetryWait is the pause after a failed fetch.
const fetchRetryWait = time.Second

// CancelRequest is the payload consumed from the cancel topic. Either
// WorkflowID or CaseID must be set; a case is resolved to the workflow
// recorded on it.
type CancelRequest struct {
	WorkflowID  string `json:"workflow_id,omitempty"`
	CaseID      string `json:"case_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// messageReader is the subset of *kafka.Reader used by the listener.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// workflowCanceller sends a cooperative cancel to a running workflow.
type workflowCanceller interface {
	CancelWorkflow(ctx context.Context, workflowID, reason string) error
}

// caseFinder resolves a case to its current workflow.
type caseFinder interface {
	Get(ctx context.Context, caseID string) (*domain.CaseState, error)
}

// ListenerConfig holds configuration for the cancel listener.
type ListenerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// CancelListener consumes cancel requests from Kafka and forwards them to
// the orchestration client.
type CancelListener struct {
	reader    messageReader
	canceller workflowCanceller
	cases     caseFinder
	logger    zerolog.Logger
	retryWait time.Duration
}

// NewCancelListener creates a listener reading from cfg.Topic as part of
// the cfg.GroupID consumer group. cases may be nil, in which case requests
// must carry a workflow ID.
func NewCancelListener(cfg ListenerConfig, canceller workflowCanceller, cases caseFinder, logger zerolog.Logger) *CancelListener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return newCancelListener(reader, canceller, cases, logger)
}

func newCancelListener(r messageReader, canceller workflowCanceller, cases caseFinder, logger zerolog.Logger) *CancelListener {
	return &CancelListener{
		reader:    r,
		canceller: canceller,
		cases:     cases,
		logger:    observability.WithComponent(logger, "cancel_listener"),
		retryWait: fetchRetryWait,
	}
}

// Run consumes messages until ctx is cancelled or the reader is closed.
// Malformed and unresolvable requests are logged and committed so they do
// not block the partition. Failed fetches are retried after a pause.
func (l *CancelListener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting cancel listener")

	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("cancel listener stopped via context cancellation")
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				l.logger.Info().Msg("cancel listener stopped, reader closed")
				return nil
			}
			l.logger.Error().Err(err).Dur("retry_in", l.retryWait).Msg("failed to fetch cancel request")
			select {
			case <-ctx.Done():
				l.logger.Info().Msg("cancel listener stopped via context cancellation")
				return ctx.Err()
			case <-time.After(l.retryWait):
			}
			continue
		}

		var req CancelRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			l.logger.Warn().Err(err).
				Int64("offset", msg.Offset).
				Int("partition", msg.Partition).
				Msg("skipping malformed cancel request")
		} else if err := l.handleCancelRequest(ctx, req); err != nil {
			l.logger.Error().Err(err).
				Str("workflow_id", req.WorkflowID).
				Str("case_id", req.CaseID).
				Msg("failed to handle cancel request")
		}

		if err := l.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			l.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit cancel request")
		}
	}
}

// handleCancelRequest resolves the target workflow and cancels it. A
// workflow that already finished is not an error.
func (l *CancelListener) handleCancelRequest(ctx context.Context, req CancelRequest) error {
	workflowID := req.WorkflowID
	if workflowID == "" {
		if req.CaseID == "" || l.cases == nil {
			return domain.NewValidationError("workflow_id", "is required when no case can be resolved")
		}
		c, err := l.cases.Get(ctx, req.CaseID)
		if err != nil {
			return err
		}
		if c.WorkflowID == "" {
			l.logger.Warn().Str("case_id", req.CaseID).Msg("case has no workflow ID, skipping")
			return nil
		}
		workflowID = c.WorkflowID
	}

	reason := req.Reason
	if reason == "" {
		reason = defaultCancelReason
	}

	err := l.canceller.CancelWorkflow(ctx, workflowID, reason)
	switch {
	case err == nil:
		l.logger.Info().
			Str("workflow_id", workflowID).
			Str("requested_by", req.RequestedBy).
			Str("reason", reason).
			Msg("sent cancel signal to workflow")
		return nil
	case errors.Is(err, domain.ErrNotFound):
		l.logger.Info().Str("workflow_id", workflowID).Msg("workflow already finished, nothing to cancel")
		return nil
	default:
		return err
	}
}

// Close closes the underlying reader.
func (l *CancelListener) Close() error {
	return l.reader.Close()
}
