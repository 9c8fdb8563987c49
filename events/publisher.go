// Package events publishes migration lifecycle notifications so downstream
// consumers (reporting, alerting) can react to tenant database changes
// without polling the bookkeeping store.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/tillworks/retail-lib/e"
	lkafka "github.com/tillworks/retail-lib/kafka"
)

const (
	ECode090101 = e.Code0901 + "01"
	ECode090102 = e.Code0901 + "02"
	ECode090103 = e.Code0901 + "03"
	ECode090104 = e.Code0901 + "04"
)

// Event types emitted by the migration orchestrator
const (
	TypeMigrationApplied    = "migration.applied"
	TypeMigrationFailed     = "migration.failed"
	TypeMigrationManual     = "migration.manual_intervention"
	TypeMigrationRolledBack = "migration.rolled_back"
	TypeMigrationForced     = "migration.force_removed"
)

// Event one migration lifecycle notification
type Event struct {
	Type       string    `json:"type"`
	TenantID   int       `json:"tenantId"`
	TenantCode string    `json:"tenantCode,omitempty"`
	Scripts    []string  `json:"scripts,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredOn time.Time `json:"occurredOn"`
}

// Publisher emits migration lifecycle events. Publishing is best effort for
// callers that treat events as advisory, but errors are surfaced so callers
// that need delivery can act on them.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// KafkaPublisher publishes events as JSON messages, keyed by tenant so a
// compacted topic keeps the latest state per tenant
type KafkaPublisher struct {
	writer *kafka.Writer
}

// KafkaPublisherConfig for NewKafkaPublisher
type KafkaPublisherConfig struct {
	Topic string

	// EnsureTopic creates the topic through the connection's controller
	// before the first write. Brokers with auto topic creation disabled
	// need this on first deploy.
	EnsureTopic       bool
	NumPartitions     int
	ReplicationFactor int
}

// NewKafkaPublisher returns a publisher writing to the configured topic over
// the connection
func NewKafkaPublisher(conn *lkafka.Connection, conf KafkaPublisherConfig) (p *KafkaPublisher, err error) {
	if conf.Topic == "" {
		return nil, e.N(ECode090103, "topic is required")
	}

	if conf.EnsureTopic {
		np := conf.NumPartitions
		if np <= 0 {
			np = 1
		}
		rf := conf.ReplicationFactor
		if rf <= 0 {
			rf = 1
		}

		if err := conn.CreateTopics(kafka.TopicConfig{
			Topic:             conf.Topic,
			NumPartitions:     np,
			ReplicationFactor: rf,
		}); err != nil {
			return nil, e.W(err, ECode090104, conf.Topic)
		}
	}

	return &KafkaPublisher{
		writer: conn.NewWriter(conf.Topic),
	}, nil
}

// Publish writes the event to the topic
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) (err error) {
	if ev.OccurredOn.IsZero() {
		ev.OccurredOn = time.Now().UTC()
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return e.W(err, ECode090101)
	}

	msg := kafka.Message{
		Key:   messageKey(ev),
		Value: b,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return e.W(err, ECode090102, ev.Type)
	}

	return nil
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() (err error) {
	return p.writer.Close()
}

// messageKey keys messages by type and tenant so a compacted topic keeps the
// latest event of each type per tenant
func messageKey(ev Event) []byte {
	return []byte(ev.Type + ":" + ev.TenantCode)
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

// Publish logs the event at debug and drops it
func (p *NopPublisher) Publish(ctx context.Context, ev Event) (err error) {
	log.Debug().Msgf("event dropped (no publisher configured): %s tenant %d",
		ev.Type, ev.TenantID)
	return nil
}
