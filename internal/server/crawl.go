package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/api"
	"github.com/JakeFAU/websearch/internal/client"
	"github.com/JakeFAU/websearch/internal/clock/system"
	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/dispatcher"
	"github.com/JakeFAU/websearch/internal/fetcher"
	collyfetcher "github.com/JakeFAU/websearch/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/websearch/internal/fetcher/headless"
	"github.com/JakeFAU/websearch/internal/hash/sha256"
	"github.com/JakeFAU/websearch/internal/headless/detector"
	"github.com/JakeFAU/websearch/internal/policy/ratelimit"
	"github.com/JakeFAU/websearch/internal/policy/simple"
	"github.com/JakeFAU/websearch/internal/tokenizer"
	"github.com/JakeFAU/websearch/internal/worker"
)

func (a *App) buildCrawler(ctx context.Context) error {
	cfg := a.cfg.Crawler
	opts := []client.Option{client.WithAPIKey(a.cfg.APIKey())}
	front := client.NewFrontier(cfg.Frontier, opts...)
	gw := client.NewGateway(cfg.Gateway, opts...)
	dialer := client.NewDialer(opts...)

	pageFetcher, err := a.setupFetcher()
	if err != nil {
		return err
	}
	deps := worker.Deps{
		Frontier:    front,
		Coordinator: gw,
		Dialer:      dialer,
		Fetcher:     pageFetcher,
		Tokenizer:   tokenizer.New(nil),
		Scope:       simple.New(simple.Config{AllowHosts: cfg.AllowHosts, DenyHosts: cfg.DenyHosts}),
	}
	if a.cfg.RateLimit.Enabled {
		deps.Limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   a.cfg.RateLimit.DefaultRPS,
			DefaultBurst: a.cfg.RateLimit.DefaultBurst,
			PerHost:      a.cfg.RateLimit.PerHost(),
		})
		a.logger.Info("rate limiter enabled",
			zap.Float64("default_rps", a.cfg.RateLimit.DefaultRPS),
			zap.Int("default_burst", a.cfg.RateLimit.DefaultBurst),
		)
	}
	if cfg.ArchivePages {
		if deps.Blobs, err = a.setupBlobStore(ctx); err != nil {
			return err
		}
		deps.Hasher = sha256.New()
		deps.Clock = system.New()
	}
	if cfg.PublishEvents {
		if deps.Publisher, err = a.setupPublisher(ctx); err != nil {
			return err
		}
	}

	workerCfg := worker.Config{
		LeaseWait:      cfg.LeaseWait,
		ReplicaTimeout: cfg.ReplicaTimeout,
		ArchivePrefix:  "pages",
	}
	workers := make([]*worker.Worker, 0, cfg.Workers)
	for i := range cfg.Workers {
		w, err := worker.New(deps, workerCfg, a.logger.Named("worker").With(zap.Int("index", i)))
		if err != nil {
			return err
		}
		workers = append(workers, w)
	}
	learner, err := worker.NewLearner(front, gw, dialer, deps.Tokenizer, cfg.LearnInterval, a.logger.Named("learner"))
	if err != nil {
		return err
	}
	dispatch := dispatcher.New(front, workers, learner, a.logger.Named("dispatcher"))
	a.loops = append(a.loops, dispatch.Run)

	if len(cfg.Seeds) > 0 {
		a.start = func(ctx context.Context) error {
			if err := dispatch.Seed(ctx, cfg.Seeds); err != nil {
				a.logger.Warn("some seeds were not enqueued", zap.Error(err))
			}
			return nil
		}
	}
	if cfg.MetricsPort > 0 {
		a.httpServer(cfg.MetricsPort, api.NewProbeServer(a.apiOptions("api")).Handler())
	}
	a.logger.Info("crawler configured",
		zap.Int("workers", cfg.Workers),
		zap.String("frontier", cfg.Frontier),
		zap.String("gateway", cfg.Gateway),
	)
	return nil
}

func (a *App) setupFetcher() (crawler.Fetcher, error) {
	primary := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Crawler.UserAgent,
		RespectRobots: !a.cfg.Crawler.IgnoreRobots,
		Timeout:       a.cfg.HTTP.Timeout,
		MaxBodyBytes:  a.cfg.HTTP.MaxBodyBytes,
	})
	a.logger.Info("using colly fetcher", zap.String("user_agent", a.cfg.Crawler.UserAgent))
	if !a.cfg.Headless.Enabled {
		return primary, nil
	}
	headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.Crawler.UserAgent,
		NavigationTimeout: a.cfg.Headless.NavigationTimeout,
		SettleDelay:       a.cfg.Headless.SettleDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	a.onClose("chromedp", func() error {
		headless.Close()
		return nil
	})
	a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	return fetcher.NewPromoting(primary, headless, detector.NewHeuristic(a.cfg.Headless.MinWords), a.logger.Named("fetcher"))
}
