// Package kafka publishes snapshot announcements so downstream consumers
// can react to new forecast data without polling the cache.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftline/windcache/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Announcer produces snapshot announcements to a Kafka topic.
// It implements scheduler.Announcer.
type Announcer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewAnnouncer creates a Kafka producer for the announcement topic.
func NewAnnouncer(brokers []string, topic string, logger *slog.Logger) *Announcer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Announcer{writer: w, logger: logger}
}

// Announce publishes one snapshot announcement, keyed by data kind so a
// partitioned topic keeps per-kind ordering.
func (a *Announcer) Announce(ctx context.Context, ann domain.Announcement) error {
	msg, err := serializeToMessage(ann)
	if err != nil {
		return err
	}
	return a.writer.WriteMessages(ctx, msg)
}

func (a *Announcer) Close() error {
	return a.writer.Close()
}

// serializeToMessage marshals an Announcement into a Kafka message.
func serializeToMessage(ann domain.Announcement) (kafkago.Message, error) {
	data, err := json.Marshal(ann)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize announcement: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ann.Kind),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_name", Value: []byte(ann.RunName)},
			{Key: "stored_at", Value: []byte(ann.StoredAt.Format(time.RFC3339))},
		},
	}, nil
}
