package internal

import (
	"encoding/json"

	"github.com/IBM/sarama"
)

type (
	EventSink interface {
		SendStoryEvent(event *StoryEvent) error
		Close() error
	}

	// NopSink is used when no brokers are configured.
	NopSink struct{}

	Producer struct {
		config   KafkaConfig
		producer sarama.SyncProducer
	}
)

func (NopSink) SendStoryEvent(*StoryEvent) error { return nil }
func (NopSink) Close() error                     { return nil }

func NewProducer(config KafkaConfig) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, err
	}

	return newProducer(config, producer), nil
}

func newProducer(config KafkaConfig, producer sarama.SyncProducer) *Producer {
	return &Producer{
		config:   config,
		producer: producer,
	}
}

// SendStoryEvent keys messages by session so one session's events stay ordered.
func (producer *Producer) SendStoryEvent(event *StoryEvent) error {
	jsonEvent, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, _, err = producer.producer.SendMessage(&sarama.ProducerMessage{
		Topic: producer.config.EventTopic,
		Key:   sarama.StringEncoder(event.Session),
		Value: sarama.StringEncoder(jsonEvent),
	})
	return err
}

func (producer *Producer) Close() error {
	return producer.producer.Close()
}
