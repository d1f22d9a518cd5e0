package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumer_ProcessEvent(t *testing.T) {
	stats := NewEventStats()
	consumer := NewConsumer(KafkaConfig{EventTopic: "story_events"}, stats)

	for _, kind := range []string{"story_generated", "failed", "story_generated"} {
		value, err := json.Marshal(StoryEvent{Session: "s1", Kind: kind, At: time.Now()})
		require.NoError(t, err)
		require.NoError(t, consumer.ProcessEvent(value))
	}

	assert.Equal(t, map[string]int{"story_generated": 2, "failed": 1}, stats.Snapshot())
}

func TestConsumer_ProcessEventMalformed(t *testing.T) {
	stats := NewEventStats()
	consumer := NewConsumer(KafkaConfig{EventTopic: "story_events"}, stats)

	assert.Error(t, consumer.ProcessEvent([]byte("{not json")))
	assert.Empty(t, stats.Snapshot())
}

func TestEventStats_SnapshotIsCopy(t *testing.T) {
	stats := NewEventStats()
	stats.Add("reset")

	snapshot := stats.Snapshot()
	snapshot["reset"] = 10

	assert.Equal(t, 1, stats.Snapshot()["reset"])
}

func TestReporter_ReportsOnShutdown(t *testing.T) {
	var logs bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	stats := NewEventStats()
	stats.Add("story_generated")
	stats.Add("narration_ready")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewReporter(stats, time.Hour).Run(ctx)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reporter did not stop")
	}

	assert.Contains(t, logs.String(), "narration_ready=1 story_generated=1")
}
