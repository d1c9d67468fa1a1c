package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/control"
	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/metrics"
	"github.com/JakeFAU/websearch/internal/tokenizer"
)

// SearchCache is an optional result cache keyed by the query's term set.
type SearchCache interface {
	Get(ctx context.Context, terms []string) ([]crawler.SearchResult, bool)
	Set(ctx context.Context, terms []string, results []crawler.SearchResult)
}

// Options wires a Service.
type Options struct {
	Registry    *Registry
	Policy      CandidatePolicy
	Aggregator  *Aggregator
	Broadcaster *Broadcaster
	Frontier    crawler.Frontier
	State       *control.State
	Cache       SearchCache
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// Service is the gateway's public surface.
type Service struct {
	registry    *Registry
	policy      CandidatePolicy
	stats       *Aggregator
	broadcaster *Broadcaster
	frontier    crawler.Frontier
	state       *control.State
	cache       SearchCache
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewService validates opts and returns a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Registry == nil || opts.Aggregator == nil || opts.Broadcaster == nil {
		return nil, apperr.E(apperr.ErrConfiguration, "new gateway", errors.New("registry, aggregator and broadcaster are required"))
	}
	if opts.Policy == nil {
		opts.Policy = RandomFallback{}
	}
	if opts.State == nil {
		opts.State = control.NewState()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		registry:    opts.Registry,
		policy:      opts.Policy,
		stats:       opts.Aggregator,
		broadcaster: opts.Broadcaster,
		frontier:    opts.Frontier,
		state:       opts.State,
		cache:       opts.Cache,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger.Named("gateway"),
	}, nil
}

// Search normalizes the query words the way pages are tokenized and returns
// the documents containing all of them, read from the first replica in
// policy order that answers.
func (s *Service) Search(ctx context.Context, words []string) ([]crawler.SearchResult, error) {
	terms := queryTerms(words)
	if len(terms) == 0 {
		return []crawler.SearchResult{}, nil
	}
	if s.cache != nil {
		if results, ok := s.cache.Get(ctx, terms); ok {
			s.countHits(ctx, terms)
			s.refreshStats(ctx, nil)
			return results, nil
		}
	}

	var results []crawler.SearchResult
	served, err := s.failover(ctx, "search", func(ctx context.Context, rep crawler.Replica) error {
		got, err := rep.Search(ctx, terms)
		if err != nil {
			return err
		}
		results = got
		return nil
	})
	if err != nil {
		return []crawler.SearchResult{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, terms, results)
	}
	s.countHits(ctx, terms)
	s.refreshStats(ctx, served)
	return results, nil
}

// Connections returns the outbound links of url from the first replica that
// answers.
func (s *Service) Connections(ctx context.Context, url string) (crawler.Connections, error) {
	if strings.TrimSpace(url) == "" {
		return crawler.Connections{}, apperr.Validationf("connections", "url is required")
	}
	var out crawler.Connections
	served, err := s.failover(ctx, "connections", func(ctx context.Context, rep crawler.Replica) error {
		got, err := rep.Connections(ctx, url)
		if err != nil {
			return err
		}
		out = got
		return nil
	})
	if err != nil {
		return crawler.Connections{URL: url, Links: []string{}}, err
	}
	s.refreshStats(ctx, served)
	return out, nil
}

// failover tries each registered replica once in policy order. Unreachable
// replicas are dropped from the registry; a validation failure is the
// caller's fault and ends the loop.
func (s *Service) failover(ctx context.Context, op string, call func(context.Context, crawler.Replica) error) (crawler.Replica, error) {
	s.registry.Refresh(ctx)
	var errs error
	for _, addr := range s.policy.Order(s.registry.Addresses()) {
		rep, ok := s.registry.Get(addr)
		if !ok {
			continue
		}
		callCtx, cancel := s.withTimeout(ctx)
		start := time.Now()
		err := call(callCtx, rep)
		elapsed := time.Since(start)
		cancel()
		metrics.ObserveReplicaCall(op, err)
		if err == nil {
			s.stats.RecordLatency(addr, elapsed)
			return rep, nil
		}
		if errors.Is(err, apperr.ErrValidation) {
			return nil, err
		}
		s.logger.Warn("replica read failed", zap.String("op", op), zap.String("address", addr), zap.Error(err))
		if apperr.IsConnectivity(err) && !apperr.IsLocked(err) {
			s.drop(addr)
		}
		errs = errors.Join(errs, err)
	}
	if ctx.Err() != nil {
		return nil, apperr.E(apperr.ErrConnectivity, op, ctx.Err())
	}
	return nil, apperr.E(apperr.ErrNoReplica, op, errs)
}

// countHits bumps hit counters for terms on every replica concurrently so
// top-search counters stay aligned across replicas. Failures are logged.
func (s *Service) countHits(ctx context.Context, terms []string) {
	var wg sync.WaitGroup
	for _, rep := range s.registry.Replicas() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := s.withTimeout(ctx)
			defer cancel()
			err := rep.UpdateTopWords(callCtx, terms)
			metrics.ObserveReplicaCall("update_top_words", err)
			if err != nil {
				s.logger.Debug("update top words failed", zap.String("address", rep.Address()), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

// refreshStats rebuilds the statistics snapshot and pushes it to listeners.
// current is the replica that served the request; nil picks the first one.
func (s *Service) refreshStats(ctx context.Context, current crawler.Replica) {
	all := s.registry.Replicas()
	if current == nil && len(all) > 0 {
		current = all[0]
	}
	stats := s.stats.Refresh(ctx, current, all)
	metrics.IncStatisticsRefresh()
	s.broadcaster.Publish(stats)
}

// Statistics returns the last published snapshot.
func (s *Service) Statistics() crawler.Statistics {
	return s.stats.Current()
}

// RefreshStatistics forces a refresh and broadcast.
func (s *Service) RefreshStatistics(ctx context.Context) crawler.Statistics {
	s.refreshStats(ctx, nil)
	return s.stats.Current()
}

// AddListener subscribes l to statistics pushes and returns its id.
func (s *Service) AddListener(l Listener) string {
	return s.broadcaster.Add(l)
}

// RemoveListener unsubscribes a listener.
func (s *Service) RemoveListener(id string) bool {
	return s.broadcaster.Remove(id)
}

// Replicas lists the live replica addresses after probing static candidates.
func (s *Service) Replicas(ctx context.Context) []string {
	s.registry.Refresh(ctx)
	return s.registry.Addresses()
}

// RegisterReplica admits address through the join protocol.
func (s *Service) RegisterReplica(ctx context.Context, address string) error {
	address = strings.TrimSpace(address)
	s.stats.Forget(address)
	if err := s.registry.Join(ctx, address); err != nil {
		return err
	}
	s.refreshStats(ctx, nil)
	return nil
}

// UnregisterReplica drops address. Unknown addresses are a no-op.
func (s *Service) UnregisterReplica(ctx context.Context, address string) error {
	if strings.TrimSpace(address) == "" {
		return apperr.Validationf("unregister replica", "address is required")
	}
	if s.drop(address) {
		s.refreshStats(ctx, nil)
	}
	return nil
}

func (s *Service) drop(address string) bool {
	removed := s.registry.Remove(address)
	if removed {
		s.stats.Forget(address)
		s.logger.Info("replica unregistered", zap.String("address", address))
	}
	return removed
}

// InsertURL validates url and enqueues it, at the head when priority is set.
func (s *Service) InsertURL(ctx context.Context, url string, priority bool) error {
	const op = "insert url"
	normalized, err := crawler.NormalizeURL(url)
	if err != nil {
		return err
	}
	if s.frontier == nil {
		return apperr.E(apperr.ErrConfiguration, op, errors.New("no frontier configured"))
	}
	if priority {
		err = s.frontier.AddFirst(ctx, normalized)
	} else {
		err = s.frontier.Add(ctx, normalized)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Stopwords returns the frontier's merged stopword set.
func (s *Service) Stopwords(ctx context.Context) ([]string, error) {
	if s.frontier == nil {
		return nil, apperr.E(apperr.ErrConfiguration, "stopwords", errors.New("no frontier configured"))
	}
	return s.frontier.Stopwords(ctx)
}

// Paused reports the pause flag.
func (s *Service) Paused() bool { return s.state.Paused() }

// SetPaused sets the pause flag.
func (s *Service) SetPaused(paused bool) {
	if s.state.SetPaused(paused) {
		s.logger.Info("pause flag changed", zap.Bool("paused", paused))
	}
}

// Ready reports whether at least one replica is registered.
func (s *Service) Ready() bool { return s.registry.Len() > 0 }

func queryTerms(words []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, term := range tokenizer.Terms(strings.Join(words, " ")) {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.callTimeout)
}
