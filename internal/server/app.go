// Package server assembles and runs one websearch process per role.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/websearch/internal/api"
	"github.com/JakeFAU/websearch/internal/config"
	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/id/uuid"
	memorypublisher "github.com/JakeFAU/websearch/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/websearch/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/websearch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/websearch/internal/storage/local"
	memorystorage "github.com/JakeFAU/websearch/internal/storage/memory"
)

type closer struct {
	name string
	fn   func() error
}

// App contains one process's dependencies.
type App struct {
	cfg    config.Config
	role   config.Role
	logger *zap.Logger

	server *http.Server
	// loops run until the run context ends.
	loops []func(ctx context.Context)
	// start runs once the listener is bound; an error stops the process.
	start func(ctx context.Context) error
	// stop runs after the loops and the server have drained.
	stop    func(ctx context.Context)
	closers []closer
}

// Build validates cfg for role and wires that role's dependencies.
func Build(ctx context.Context, cfg config.Config, role config.Role, logger *zap.Logger) (*App, error) {
	if err := cfg.ValidateFor(role); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, role: role, logger: logger.With(zap.String("role", string(role)))}
	app.logger.Info("building application dependencies")

	var err error
	switch role {
	case config.RoleFrontier:
		err = app.buildFrontier()
	case config.RoleReplica:
		err = app.buildReplica(ctx)
	case config.RoleGateway:
		err = app.buildGateway(ctx)
	case config.RoleCrawler:
		err = app.buildCrawler(ctx)
	}
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// Addr is the HTTP listen address, or "" when the role serves nothing.
func (a *App) Addr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr
}

// Run starts the application and blocks until ctx is canceled or a
// component fails. Dependencies are closed before it returns.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	var ln net.Listener
	if a.server != nil {
		var err error
		ln, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", a.server.Addr, err)
		}
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	if a.server != nil {
		g.Go(func() error {
			a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
			if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			a.logger.Info("shutdown initiated")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("server shutdown error", zap.Error(err))
			}
			return nil
		})
	}
	for _, loop := range a.loops {
		g.Go(func() error {
			loop(gctx)
			return nil
		})
	}
	if a.start != nil {
		g.Go(func() error {
			return a.start(gctx)
		})
	}
	err := g.Wait()

	if a.stop != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		a.stop(stopCtx)
		cancel()
	}
	return err
}

// Close releases every dependency in reverse build order. It is safe to
// call more than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) httpServer(port int, handler http.Handler) {
	a.server = &http.Server{
		Addr:              a.cfg.Listen(port),
		Handler:           handler,
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}
}

func (a *App) apiOptions(name string) api.Options {
	return api.Options{
		APIKey:         a.cfg.APIKey(),
		RequestTimeout: a.cfg.Server.RequestTimeout,
		IDs:            uuid.New(),
		Logger:         a.logger.Named(name),
	}
}

// every calls fn once per interval until ctx ends.
func every(interval time.Duration, fn func(ctx context.Context)) func(ctx context.Context) {
	return func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}
}

func (a *App) setupBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	cfg := a.cfg.Storage
	switch cfg.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.onClose("gcs", client.Close)
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS storage backend", zap.String("bucket", cfg.Bucket))
		return store, nil
	case "local":
		store, err := localstorage.New(cfg.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", cfg.Local.BaseDir))
		return store, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	cfg := a.cfg.PubSub
	if cfg.ProjectID == "" || cfg.Topic == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, closeFn, err := gcppublisher.Dial(ctx, gcppublisher.Config{ProjectID: cfg.ProjectID, Topic: cfg.Topic})
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.onClose("pubsub", closeFn)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.Topic),
	)
	return pub, nil
}
