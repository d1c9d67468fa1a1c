package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/api"
	"github.com/JakeFAU/websearch/internal/client"
	"github.com/JakeFAU/websearch/internal/clock/system"
	"github.com/JakeFAU/websearch/internal/hash/sha256"
	"github.com/JakeFAU/websearch/internal/index"
	"github.com/JakeFAU/websearch/internal/replica"
)

func (a *App) buildReplica(ctx context.Context) error {
	cfg := a.cfg.Replica
	ix, err := index.Open(ctx, cfg.Path, a.logger.Named("index"))
	if err != nil {
		return err
	}
	a.onClose("index", ix.Close)

	archive, err := a.setupBlobStore(ctx)
	if err != nil {
		return err
	}
	advertise := a.cfg.ReplicaAdvertise()
	opts := []client.Option{client.WithAPIKey(a.cfg.APIKey())}
	node := replica.New(ix, replica.Options{
		Advertise: advertise,
		Peers:     func(address string) replica.Peer { return client.NewReplica(address, opts...) },
		Archive:   archive,
		Hasher:    sha256.New(),
		Clock:     system.New(),
		Logger:    a.logger,
	})
	a.httpServer(cfg.Port, api.NewReplicaServer(node, a.apiOptions("api")).Handler())

	if cfg.Gateway == "" {
		a.start = func(ctx context.Context) error {
			a.logger.Info("no gateway configured, serving standalone", zap.String("advertise", advertise))
			return node.Connect(ctx)
		}
	} else {
		gw := client.NewGateway(cfg.Gateway, opts...)
		a.start = func(ctx context.Context) error {
			registerCtx, cancel := context.WithTimeout(ctx, cfg.RegisterTimeout)
			defer cancel()
			if err := gw.RegisterReplica(registerCtx, advertise); err != nil {
				return fmt.Errorf("register with gateway %s: %w", cfg.Gateway, err)
			}
			a.logger.Info("registered with gateway", zap.String("gateway", cfg.Gateway), zap.String("advertise", advertise))
			return nil
		}
		a.stop = func(ctx context.Context) {
			if err := gw.UnregisterReplica(ctx, advertise); err != nil {
				a.logger.Warn("unregister from gateway failed", zap.Error(err))
			}
		}
	}
	if cfg.ArchiveOnExit {
		leave := a.stop
		a.stop = func(ctx context.Context) {
			if leave != nil {
				leave(ctx)
			}
			uri, err := node.Archive(ctx)
			if err != nil {
				a.logger.Warn("archive on exit failed", zap.Error(err))
				return
			}
			a.logger.Info("index archived", zap.String("uri", uri))
		}
	}
	return nil
}
