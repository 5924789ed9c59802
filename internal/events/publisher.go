// Package events publishes pipeline stage transitions to Kafka so other
// systems can follow project progress. Publishing is optional and best
// effort: a nil publisher drops events and broker errors are logged, never
// surfaced to the pipeline.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/config"
)

// StageEvent is one pipeline transition.
type StageEvent struct {
	ProjectID string    `json:"project_id"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher writes stage events to a Kafka topic.
type Publisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewPublisher creates a publisher, or nil when disabled.
func NewPublisher(cfg *config.KafkaConfig, log *zap.Logger) *Publisher {
	if !cfg.Enabled {
		return nil
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: cfg.BatchTimeout,
			Async:        true,
		},
		log: log,
	}
}

// Publish emits one stage event keyed by project id.
func (p *Publisher) Publish(ctx context.Context, ev StageEvent) {
	if p == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("encode stage event", zap.Error(err))
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ProjectID),
		Value: value,
	})
	if err != nil {
		p.log.Warn("publish stage event",
			zap.String("project_id", ev.ProjectID),
			zap.String("stage", ev.Stage),
			zap.Error(err))
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
