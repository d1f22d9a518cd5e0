package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"

	"storyfront/internal"
)

func readConfig() (*internal.WorkerConfig, error) {
	var cfg internal.WorkerConfig

	configPath := flag.String("config", "config.yaml", "Path to config")

	flag.Parse()

	err := internal.ReadConfig(*configPath, &cfg)

	return &cfg, err
}

func main() {
	cfg, err := readConfig()
	if err != nil {
		slog.Error("Failed to read config", slog.String("error", err.Error()))
		return
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerGroup, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.Group, saramaConfig)
	if err != nil {
		slog.Error("Failed to create consumer group", slog.String("error", err.Error()))
		return
	}
	defer consumerGroup.Close()

	stats := internal.NewEventStats()
	consumer := internal.NewConsumer(cfg.Kafka, stats)
	reporter := internal.NewReporter(stats, cfg.ReportPeriod)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reporter.Run(ctx)

	slog.Info("Starting consumer", slog.String("topic", cfg.Kafka.EventTopic))
	err = consumer.Run(ctx, consumerGroup)
	if err != nil {
		slog.Error("Failed to run consumer", slog.String("error", err.Error()))
		return
	}
}
