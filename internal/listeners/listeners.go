// Package listeners holds the statistics listeners the gateway can register
// besides in-process callbacks: websocket clients, webhooks, a zap log sink,
// Prometheus gauges, the Postgres history table and a Pub/Sub topic.
//
// Every type here satisfies gateway.Listener. A Deliver error makes the
// gateway drop the listener.
package listeners

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/metrics"
)

// Log writes every snapshot to a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a Log listener.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("statistics")}
}

// Name implements gateway.Listener.
func (*Log) Name() string { return "log" }

// Deliver implements gateway.Listener.
func (l *Log) Deliver(_ context.Context, stats crawler.Statistics) error {
	l.logger.Info("statistics updated",
		zap.Any("top_searches", stats.TopSearches),
		zap.Any("doc_counts", stats.DocCounts),
		zap.Any("avg_response_ms", stats.AvgResponseMs),
		zap.Time("updated_at", stats.UpdatedAt),
	)
	return nil
}

// Prometheus mirrors snapshots into the websearch_replica_* and
// websearch_top_search_hits gauges.
type Prometheus struct{}

// Name implements gateway.Listener.
func (Prometheus) Name() string { return "prometheus" }

// Deliver implements gateway.Listener.
func (Prometheus) Deliver(_ context.Context, stats crawler.Statistics) error {
	top := make(map[string]int64, len(stats.TopSearches))
	for _, wc := range stats.TopSearches {
		top[wc.Word] = wc.Count
	}
	metrics.SetStatistics(stats.DocCounts, stats.AvgResponseMs, top)
	return nil
}

// Recorder persists snapshots. storage/postgres.StatsStore implements it.
type Recorder interface {
	Record(ctx context.Context, stats crawler.Statistics) error
}

// History appends every snapshot to a Recorder.
type History struct {
	rec Recorder
}

// NewHistory returns a History listener.
func NewHistory(rec Recorder) *History {
	return &History{rec: rec}
}

// Name implements gateway.Listener.
func (*History) Name() string { return "history" }

// Deliver implements gateway.Listener.
func (h *History) Deliver(ctx context.Context, stats crawler.Statistics) error {
	if err := h.rec.Record(ctx, stats); err != nil {
		return fmt.Errorf("record statistics: %w", err)
	}
	return nil
}

// Publish sends every snapshot to a message topic.
type Publish struct {
	pub  crawler.Publisher
	kind string
}

// NewPublish returns a Publish listener. kind is passed to the publisher as
// the message topic or type attribute.
func NewPublish(pub crawler.Publisher, kind string) *Publish {
	if kind == "" {
		kind = "statistics"
	}
	return &Publish{pub: pub, kind: kind}
}

// Name implements gateway.Listener.
func (*Publish) Name() string { return "pubsub" }

// Deliver implements gateway.Listener.
func (p *Publish) Deliver(ctx context.Context, stats crawler.Statistics) error {
	if _, err := p.pub.Publish(ctx, p.kind, stats); err != nil {
		return fmt.Errorf("publish statistics: %w", err)
	}
	return nil
}
