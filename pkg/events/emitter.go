// Package events publishes load lifecycle events so downstream consumers can
// react to warehouse refreshes.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Type identifies a load lifecycle event.
type Type string

const (
	LoadStarted   Type = "load.started"
	LoadSucceeded Type = "load.succeeded"
	LoadFailed    Type = "load.failed"
)

// LoadEvent is one lifecycle notification. Metrics carries whatever counts
// were known at emit time.
type LoadEvent struct {
	ID        uuid.UUID          `json:"id"`
	Type      Type               `json:"type"`
	LoadType  string             `json:"load_type"`
	Metrics   models.LoadMetrics `json:"metrics"`
	EmittedAt time.Time          `json:"emitted_at"`
}

// Config holds Kafka configuration for the emitter.
type Config struct {
	Brokers []string
	Topic   string
}

// ParseBrokers splits a comma-separated broker list.
func ParseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Emitter publishes load events to Kafka. Emission is best-effort: a broker
// failure is logged but never fails the run.
type Emitter struct {
	writer *kafka.Writer
	logger ectologger.Logger
}

// NewEmitter creates a Kafka-backed emitter.
func NewEmitter(cfg Config, logger ectologger.Logger) *Emitter {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Allow Kafka to auto-create the topic in dev environments when it
		// doesn't exist yet.
		AllowAutoTopicCreation: true,
	}

	return &Emitter{
		writer: writer,
		logger: logger,
	}
}

// Emit publishes one event, keyed by event type for partition affinity.
func (e *Emitter) Emit(ctx context.Context, event LoadEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to marshal load event")
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.Type),
		Value: value,
	}
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("event_type", string(event.Type)).Warnf("Failed to publish load event")
	}
}

// Close closes the underlying writer.
func (e *Emitter) Close() error {
	return e.writer.Close()
}
