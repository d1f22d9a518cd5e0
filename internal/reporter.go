package internal

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"
)

// Reporter periodically logs the event counters collected by the consumer.
type Reporter struct {
	stats  *EventStats
	period time.Duration
}

func NewReporter(stats *EventStats, period time.Duration) *Reporter {
	return &Reporter{
		stats:  stats,
		period: period,
	}
}

func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.report()

		case <-ctx.Done():
			r.report()
			return
		}
	}
}

func (r *Reporter) report() {
	counts := r.stats.Snapshot()

	attrs := make([]any, 0, len(counts))
	for _, kind := range slices.Sorted(maps.Keys(counts)) {
		attrs = append(attrs, slog.Int(kind, counts[kind]))
	}
	slog.Info("Story events so far", attrs...)
}
