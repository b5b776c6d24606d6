// Package events connects background job processing to Kafka: finished jobs
// are published as result events, and cancel requests arriving on a topic
// are forwarded to the orchestration client.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
	"github.com/helixir/vehicle-tracking-service/internal/observability"
)

// EventTypeJobCompleted is the type of the event emitted once per finished
// background job, successful or not.
const EventTypeJobCompleted = "job.completed"

// JobCompletedEvent is the payload written to the result topic.
type JobCompletedEvent struct {
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	CaseID            string          `json:"case_id"`
	WorkflowID        string          `json:"workflow_id"`
	Success           bool            `json:"success"`
	OutputFile        string          `json:"output_file,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	ProcessingSummary *domain.Summary `json:"processing_summary,omitempty"`
	OccurredAt        time.Time       `json:"occurred_at"`
}

// ResultSink receives the outcome of background jobs.
type ResultSink interface {
	PublishResult(ctx context.Context, caseID, workflowID string, result *domain.JobResult) error
}

// NopSink discards results. It is used when Kafka is disabled.
type NopSink struct{}

// PublishResult implements ResultSink.
func (NopSink) PublishResult(context.Context, string, string, *domain.JobResult) error { return nil }

// messageWriter is the subset of *kafka.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublisherConfig holds configuration for the result publisher.
type PublisherConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// ResultPublisher writes JobCompletedEvents to Kafka, keyed by case ID so
// that events for one case stay ordered within a partition.
type ResultPublisher struct {
	writer  messageWriter
	topic   string
	metrics *observability.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewResultPublisher creates a publisher backed by a kafka.Writer.
func NewResultPublisher(cfg PublisherConfig, metrics *observability.Metrics, logger zerolog.Logger) *ResultPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return newResultPublisher(w, cfg.Topic, metrics, logger)
}

func newResultPublisher(w messageWriter, topic string, metrics *observability.Metrics, logger zerolog.Logger) *ResultPublisher {
	return &ResultPublisher{
		writer:  w,
		topic:   topic,
		metrics: metrics,
		logger:  observability.WithComponent(logger, "result_publisher"),
		now:     time.Now,
	}
}

// PublishResult implements ResultSink.
func (p *ResultPublisher) PublishResult(ctx context.Context, caseID, workflowID string, result *domain.JobResult) error {
	if result == nil {
		return domain.NewValidationError("result", "must not be nil")
	}

	event := JobCompletedEvent{
		EventID:           uuid.NewString(),
		EventType:         EventTypeJobCompleted,
		CaseID:            caseID,
		WorkflowID:        workflowID,
		Success:           result.Success,
		OutputFile:        result.OutputFile,
		ErrorMessage:      result.ErrorMessage,
		ProcessingSummary: result.ProcessingSummary,
		OccurredAt:        p.now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", EventTypeJobCompleted, err)
	}

	msg := kafka.Message{
		Key:   []byte(caseID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeJobCompleted)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.RecordEventPublished(p.topic, "error")
		return fmt.Errorf("publish %s event for case %s: %w", EventTypeJobCompleted, caseID, err)
	}

	p.metrics.RecordEventPublished(p.topic, "success")
	p.logger.Debug().
		Str("event_id", event.EventID).
		Str("case_id", caseID).
		Str("workflow_id", workflowID).
		Bool("success", result.Success).
		Msg("published job result")
	return nil
}

// Close flushes pending messages and releases the writer.
func (p *ResultPublisher) Close() error {
	return p.writer.Close()
}
