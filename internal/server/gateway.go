package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/api"
	"github.com/JakeFAU/websearch/internal/client"
	"github.com/JakeFAU/websearch/internal/clock/system"
	"github.com/JakeFAU/websearch/internal/control"
	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/gateway"
	"github.com/JakeFAU/websearch/internal/gateway/cache"
	"github.com/JakeFAU/websearch/internal/id/uuid"
	"github.com/JakeFAU/websearch/internal/listeners"
	pgstore "github.com/JakeFAU/websearch/internal/storage/postgres"
)

// StatisticsKind is the publish kind of statistics snapshots.
const StatisticsKind = "statistics"

func (a *App) buildGateway(ctx context.Context) error {
	cfg := a.cfg.Gateway
	opts := []client.Option{client.WithAPIKey(a.cfg.APIKey())}

	registry := gateway.NewRegistry(client.NewDialer(opts...), cfg.Replicas, cfg.CallTimeout, a.logger)
	aggregator := gateway.NewAggregator(system.New(), cfg.CallTimeout, a.logger)
	broadcaster := gateway.NewBroadcaster(uuid.New(), cfg.ListenerTimeout, a.logger)
	a.onClose("broadcaster", func() error {
		broadcaster.Close()
		return nil
	})
	if err := a.standingListeners(ctx, broadcaster); err != nil {
		return err
	}

	var front crawler.Frontier
	if cfg.Frontier != "" {
		front = client.NewFrontier(cfg.Frontier, opts...)
	} else {
		a.logger.Warn("no frontier configured, url inserts are disabled")
	}

	var searchCache gateway.SearchCache
	if a.cfg.Redis.Addr != "" {
		qc, closeFn, err := cache.Dial(ctx, cache.Config{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			PoolSize: a.cfg.Redis.PoolSize,
			TTL:      a.cfg.Redis.TTL,
		}, a.logger)
		if err != nil {
			return err
		}
		a.onClose("redis", closeFn)
		searchCache = qc
		a.logger.Info("search cache enabled", zap.String("addr", a.cfg.Redis.Addr))
	}

	svc, err := gateway.NewService(gateway.Options{
		Registry:    registry,
		Policy:      gateway.PolicyByName(cfg.Policy),
		Aggregator:  aggregator,
		Broadcaster: broadcaster,
		Frontier:    front,
		State:       control.NewState(),
		Cache:       searchCache,
		CallTimeout: cfg.CallTimeout,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}

	a.httpServer(cfg.Port, api.NewGatewayServer(svc, api.GatewayOptions{
		Options:       a.apiOptions("api"),
		WebhookClient: &http.Client{Timeout: cfg.ListenerTimeout},
	}).Handler())

	a.start = func(ctx context.Context) error {
		addrs := svc.Replicas(ctx)
		a.logger.Info("gateway ready", zap.Strings("replicas", addrs), zap.String("policy", cfg.Policy))
		svc.RefreshStatistics(ctx)
		return nil
	}
	a.loops = append(a.loops, every(cfg.RefreshInterval, func(ctx context.Context) {
		svc.Replicas(ctx)
		svc.RefreshStatistics(ctx)
	}))
	return nil
}

// standingListeners subscribes the process-lifetime statistics listeners.
func (a *App) standingListeners(ctx context.Context, b *gateway.Broadcaster) error {
	b.Add(listeners.NewLog(a.logger.Named("statistics")))
	b.Add(listeners.Prometheus{})

	if a.cfg.Gateway.History {
		store, err := pgstore.NewStatsStore(ctx, pgstore.StatsStoreConfig{
			DSN:             a.cfg.DB.DSN,
			Table:           a.cfg.DB.Table,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return err
		}
		a.onClose("postgres", func() error {
			store.Close()
			return nil
		})
		b.Add(listeners.NewHistory(store))
		a.logger.Info("statistics history enabled", zap.String("table", a.cfg.DB.Table))
	}
	if a.cfg.Gateway.PublishStats {
		pub, err := a.setupPublisher(ctx)
		if err != nil {
			return err
		}
		b.Add(listeners.NewPublish(pub, StatisticsKind))
	}
	return nil
}
