package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/tokenizer"
)

const defaultLearnInterval = time.Minute

// Learner converges the shared stopword set. Each round it asks a random
// replica for its most frequent words, merges them into the frontier and
// reloads the merged set into the tokenizer.
type Learner struct {
	frontier    crawler.Frontier
	coordinator crawler.Coordinator
	dialer      crawler.ReplicaDialer
	tokenizer   *tokenizer.Tokenizer
	interval    time.Duration
	logger      *zap.Logger
	pick        func(n int) int
}

// NewLearner constructs a Learner. interval <= 0 uses one minute.
func NewLearner(
	frontier crawler.Frontier,
	coordinator crawler.Coordinator,
	dialer crawler.ReplicaDialer,
	tok *tokenizer.Tokenizer,
	interval time.Duration,
	logger *zap.Logger,
) (*Learner, error) {
	if frontier == nil || coordinator == nil || dialer == nil || tok == nil {
		return nil, errors.New("learner requires frontier, coordinator, dialer and tokenizer")
	}
	if interval <= 0 {
		interval = defaultLearnInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Learner{
		frontier:    frontier,
		coordinator: coordinator,
		dialer:      dialer,
		tokenizer:   tok,
		interval:    interval,
		logger:      logger,
		pick:        rand.IntN,
	}, nil
}

// Run performs a round immediately and then once per interval until ctx ends.
func (l *Learner) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		if err := l.Learn(ctx); err != nil && ctx.Err() == nil {
			l.logger.Warn("stopword round failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Learn runs one round. With no replica registered it only reloads the
// frontier's set.
func (l *Learner) Learn(ctx context.Context) error {
	replicas, err := l.coordinator.Replicas(ctx)
	if err != nil {
		return fmt.Errorf("list replicas: %w", err)
	}
	if len(replicas) > 0 {
		address := replicas[l.pick(len(replicas))]
		replica, err := l.dialer.Dial(ctx, address)
		if err != nil {
			return fmt.Errorf("dial %s: %w", address, err)
		}
		frequent, err := replica.FrequentWords(ctx)
		if err != nil {
			return fmt.Errorf("frequent words from %s: %w", address, err)
		}
		if len(frequent) > 0 {
			if err := l.frontier.AddStopWords(ctx, frequent); err != nil {
				return fmt.Errorf("merge stopwords: %w", err)
			}
		}
	}
	merged, err := l.frontier.Stopwords(ctx)
	if err != nil {
		return fmt.Errorf("load stopwords: %w", err)
	}
	l.tokenizer.SetStopwords(merged)
	l.logger.Debug("stopwords refreshed", zap.Int("count", len(merged)))
	return nil
}
