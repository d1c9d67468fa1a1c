package gateway

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/websearch/internal/crawler"
)

type latency struct {
	total time.Duration
	calls int64
}

// Aggregator owns the mutable statistics state and produces immutable
// snapshots from it.
type Aggregator struct {
	mu        sync.Mutex
	latencies map[string]*latency
	current   crawler.Statistics
	clock     crawler.Clock
	timeout   time.Duration
	logger    *zap.Logger
}

// NewAggregator returns an Aggregator whose per-replica calls are bounded by
// timeout.
func NewAggregator(clock crawler.Clock, timeout time.Duration, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		latencies: make(map[string]*latency),
		current: crawler.Statistics{
			TopSearches:   []crawler.WordCount{},
			DocCounts:     map[string]int64{},
			AvgResponseMs: map[string]float64{},
			UpdatedAt:     clock.Now(),
		},
		clock:   clock,
		timeout: timeout,
		logger:  logger.Named("stats"),
	}
}

// RecordLatency adds one successful call against address.
func (a *Aggregator) RecordLatency(address string, d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.latencies[address]
	if !ok {
		l = &latency{}
		a.latencies[address] = l
	}
	l.total += d
	l.calls++
}

// Forget drops the latency history of a removed replica.
func (a *Aggregator) Forget(address string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.latencies, address)
}

// Current returns a copy of the last published snapshot.
func (a *Aggregator) Current() crawler.Statistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.Clone()
}

// Refresh pulls top searches from current (nil keeps the previous list) and
// document counts from every replica in all, then publishes a new snapshot.
// Replicas that fail to answer are left out of the counts.
func (a *Aggregator) Refresh(ctx context.Context, current crawler.Replica, all []crawler.Replica) crawler.Statistics {
	var top []crawler.WordCount
	if current != nil {
		callCtx, cancel := a.withTimeout(ctx)
		got, err := current.TopSearches(callCtx)
		cancel()
		if err != nil {
			a.logger.Debug("top searches unavailable", zap.String("address", current.Address()), zap.Error(err))
		} else {
			top = got
		}
	}

	counts := make([]int64, len(all))
	ok := make([]bool, len(all))
	g, gctx := errgroup.WithContext(ctx)
	for i, rep := range all {
		g.Go(func() error {
			callCtx, cancel := a.withTimeout(gctx)
			defer cancel()
			n, err := rep.Size(callCtx)
			if err != nil {
				a.logger.Debug("size unavailable", zap.String("address", rep.Address()), zap.Error(err))
				return nil
			}
			counts[i], ok[i] = n, true
			return nil
		})
	}
	_ = g.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	next := crawler.Statistics{
		TopSearches:   a.current.TopSearches,
		DocCounts:     make(map[string]int64, len(all)),
		AvgResponseMs: make(map[string]float64, len(a.latencies)),
		UpdatedAt:     a.clock.Now(),
	}
	if top != nil {
		next.TopSearches = top
	}
	for i, rep := range all {
		if ok[i] {
			next.DocCounts[rep.Address()] = counts[i]
		}
	}
	for addr, l := range a.latencies {
		if l.calls > 0 {
			next.AvgResponseMs[addr] = roundMillis(l.total, l.calls)
		}
	}
	a.current = next
	return next.Clone()
}

func (a *Aggregator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// roundMillis is the mean call time in milliseconds, rounded to 2 decimals.
func roundMillis(total time.Duration, calls int64) float64 {
	ms := float64(total) / float64(time.Millisecond) / float64(calls)
	return math.Round(ms*100) / 100
}
