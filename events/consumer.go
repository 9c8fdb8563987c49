package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"github.com/tillworks/retail-lib/e"
	lkafka "github.com/tillworks/retail-lib/kafka"
)

const (
	ECode090201 = e.Code0902 + "01"
	ECode090202 = e.Code0902 + "02"
	ECode090203 = e.Code0902 + "03"
	ECode090204 = e.Code0902 + "04"
)

// Consumer reads migration lifecycle events from a topic. Consumers in the
// same group share the topic's partitions.
type Consumer struct {
	conn   *lkafka.Connection
	reader *kafka.Reader
}

// NewConsumer returns a consumer reading the topic as part of the group
func NewConsumer(conn *lkafka.Connection, topic, groupID string) (c *Consumer, err error) {
	if topic == "" {
		return nil, e.N(ECode090201, "topic is required")
	}

	return &Consumer{
		conn: conn,
		reader: conn.NewReader(kafka.ReaderConfig{
			Topic:   topic,
			GroupID: groupID,
		}),
	}, nil
}

// Next blocks until the next event arrives, the context is cancelled or the
// reader is closed
func (c *Consumer) Next(ctx context.Context) (ev Event, err error) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return ev, e.W(err, ECode090202)
	}

	return decodeEvent(msg.Value)
}

// Close closes the reader and the underlying connection
func (c *Consumer) Close() (err error) {
	if err := c.reader.Close(); err != nil {
		return e.W(err, ECode090203)
	}

	return c.conn.Close()
}

func decodeEvent(b []byte) (ev Event, err error) {
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, e.W(err, ECode090204)
	}

	return ev, nil
}
