package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/ramiqadoumi/quote-stream/internal/domain"
)

// TopicLifecycle receives one message per terminated workflow.
const TopicLifecycle = "workflows.lifecycle"

// Producer publishes workflow lifecycle events to Kafka.
type Producer interface {
	PublishResult(ctx context.Context, result *domain.Result) error
	Close() error
}

type producer struct {
	writer *kafka.Writer
}

// NewProducer creates a Kafka producer connected to the given brokers.
func NewProducer(brokers []string) Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{}, // route by workflow id → deterministic partition
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		// Auto-create topics if they don't exist
		AllowAutoTopicCreation: true,
	}
	return &producer{writer: w}
}

func (p *producer) PublishResult(ctx context.Context, result *domain.Result) error {
	value, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result for %s: %w", result.WorkflowID, err)
	}

	// Inject the active trace context into message headers so downstream
	// consumers can extract and continue the trace.
	headers := make(HeaderCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   TopicLifecycle,
		Key:     []byte(result.WorkflowID),
		Value:   value,
		Headers: []kafka.Header(headers),
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish result for %s: %w", result.WorkflowID, err)
	}
	return nil
}

func (p *producer) Close() error {
	return p.writer.Close()
}
