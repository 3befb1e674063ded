package kafka

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/duel-lords/internal/domain"
	"github.com/google/uuid"
)

// Producer publishes stats events
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewProducer connects a synchronous producer to the brokers
func NewProducer(brokers []string, topic string, logger *slog.Logger) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return &Producer{producer: p, topic: topic, logger: logger}, nil
}

// Publish sends one event keyed by the player's Discord id. Missing event
// ids and timestamps are filled in.
func (p *Producer) Publish(event domain.StatsEvent) (domain.StatsEvent, error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := EncodeEvent(event)
	if err != nil {
		return event, err
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.DiscordID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return event, fmt.Errorf("publishing stats event: %w", err)
	}

	p.logger.Info("stats event published",
		"event_id", event.EventID,
		"discord_id", event.DiscordID,
		"partition", partition,
		"offset", offset,
	)
	return event, nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
