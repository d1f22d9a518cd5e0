package internal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"sync"

	"github.com/IBM/sarama"
)

type (
	// EventStats counts consumed story events by kind.
	EventStats struct {
		mu     sync.Mutex
		counts map[string]int
	}

	Consumer struct {
		config KafkaConfig
		stats  *EventStats
	}
)

func NewEventStats() *EventStats {
	return &EventStats{counts: make(map[string]int)}
}

func (s *EventStats) Add(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[kind]++
}

func (s *EventStats) Snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.counts)
}

func NewConsumer(config KafkaConfig, stats *EventStats) *Consumer {
	return &Consumer{
		config: config,
		stats:  stats,
	}
}

func (consumer *Consumer) Run(ctx context.Context, consumerGroup sarama.ConsumerGroup) error {
	for {
		if err := consumerGroup.Consume(ctx, []string{consumer.config.EventTopic}, consumer); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			slog.Error("Error from consumer", slog.String("error", err.Error()))
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (consumer *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				slog.Info("message channel was closed")
				return nil
			}
			if message.Topic != consumer.config.EventTopic {
				slog.Error("Unknown topic", slog.String("topic", message.Topic))
				session.MarkMessage(message, "")
				continue
			}
			// A malformed event is logged and skipped; it would never decode on redelivery.
			if err := consumer.ProcessEvent(message.Value); err != nil {
				slog.Error("Error processing message", slog.String("error", err.Error()))
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (consumer *Consumer) ProcessEvent(value []byte) error {
	var event StoryEvent

	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}

	attrs := []any{
		slog.String("session", event.Session),
		slog.String("kind", event.Kind),
		slog.String("state", event.State),
		slog.Time("at", event.At),
	}
	if event.StoryID != "" {
		attrs = append(attrs, slog.String("story_id", event.StoryID))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	slog.Info("Story event", attrs...)

	consumer.stats.Add(event.Kind)
	return nil
}
