// Package dispatcher runs a pool of crawl workers and the stopword learner.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/worker"
)

// Dispatcher fans frontier work out to a pool of workers.
type Dispatcher struct {
	frontier crawler.Frontier
	workers  []*worker.Worker
	learner  *worker.Learner
	logger   *zap.Logger
}

// New creates a Dispatcher. learner may be nil.
func New(frontier crawler.Frontier, workers []*worker.Worker, learner *worker.Learner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{frontier: frontier, workers: workers, learner: learner, logger: logger}
}

// Run starts all workers and the learner and blocks until the context
// finishes and every in-flight iteration has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	if d.learner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.learner.Run(ctx)
		}()
	}
	d.logger.Info("crawl dispatcher started", zap.Int("workers", len(d.workers)))
	<-ctx.Done()
	wg.Wait()
	d.logger.Info("crawl dispatcher stopped")
}

// Seed normalizes urls and appends them to the frontier. Every URL is
// attempted; the failures are joined.
func (d *Dispatcher) Seed(ctx context.Context, urls []string) error {
	var errs []error
	for _, raw := range urls {
		u, err := crawler.NormalizeURL(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := d.frontier.Add(ctx, u); err != nil {
			errs = append(errs, fmt.Errorf("seed %s: %w", u, err))
		}
	}
	return errors.Join(errs...)
}
