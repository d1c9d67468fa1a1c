// Package gateway mediates between query clients, crawl workers and the index
// replicas: it owns the replica registry, routes failover reads, aggregates
// statistics and pushes them to listeners.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/crawler"
)

const defaultRefreshTimeout = 5 * time.Second

// Registry tracks live replicas. There is at most one entry per address;
// re-registration replaces the old handle.
type Registry struct {
	mu             sync.RWMutex
	entries        map[string]crawler.Replica
	order          []string
	joining        map[string]struct{}
	candidates     []string
	dialer         crawler.ReplicaDialer
	joinMu         sync.Mutex
	refresh        singleflight.Group
	refreshTimeout time.Duration
	logger         *zap.Logger
}

// NewRegistry returns an empty registry that dials candidates on Refresh.
// refreshTimeout bounds one Refresh round; zero selects a default.
func NewRegistry(dialer crawler.ReplicaDialer, candidates []string, refreshTimeout time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if refreshTimeout <= 0 {
		refreshTimeout = defaultRefreshTimeout
	}
	return &Registry{
		entries:        make(map[string]crawler.Replica),
		joining:        make(map[string]struct{}),
		candidates:     append([]string(nil), candidates...),
		dialer:         dialer,
		refreshTimeout: refreshTimeout,
		logger:         logger.Named("registry"),
	}
}

// Refresh dials every static candidate that is neither registered nor in the
// middle of a join and adds the reachable ones. Concurrent callers share one
// round, which runs detached from any single caller's cancellation and
// is bounded by the refresh timeout instead.
func (r *Registry) Refresh(ctx context.Context) {
	_, _, _ = r.refresh.Do("refresh", func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.refreshTimeout)
		defer cancel()
		for _, addr := range r.candidates {
			if !r.idle(addr) {
				continue
			}
			rep, err := r.dialer.Dial(refreshCtx, addr)
			if err != nil {
				r.logger.Debug("candidate unreachable", zap.String("address", addr), zap.Error(err))
				continue
			}
			if err := rep.Connect(refreshCtx); err != nil {
				r.logger.Warn("candidate connect failed", zap.String("address", addr), zap.Error(err))
				continue
			}
			if !r.admit(addr, rep) {
				r.logger.Debug("candidate claimed by a join", zap.String("address", addr))
				continue
			}
			r.logger.Info("candidate registered", zap.String("address", addr))
		}
		return nil, nil
	})
}

// idle reports whether address is neither registered nor joining.
func (r *Registry) idle(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, registered := r.entries[address]
	_, joining := r.joining[address]
	return !registered && !joining
}

// admit registers rep unless address was registered or began joining since
// the caller last checked.
func (r *Registry) admit(address string, rep crawler.Replica) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[address]; ok {
		return false
	}
	if _, ok := r.joining[address]; ok {
		return false
	}
	r.order = append(r.order, address)
	r.entries[address] = rep
	return true
}

// Join runs the join protocol for address: drop any stale entry, dial the
// new replica, copy a full snapshot into it from an existing replica when
// one exists, call its connect hook, then register it. Joins are serialized.
func (r *Registry) Join(ctx context.Context, address string) error {
	const op = "register replica"
	if address == "" {
		return apperr.Validationf(op, "address is required")
	}
	r.joinMu.Lock()
	defer r.joinMu.Unlock()

	r.beginJoin(address)
	defer r.endJoin(address)
	rep, err := r.dialer.Dial(ctx, address)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, address, err)
	}

	sources := r.Replicas()
	rand.Shuffle(len(sources), func(i, j int) { sources[i], sources[j] = sources[j], sources[i] })
	if len(sources) > 0 {
		var syncErr error
		for _, src := range sources {
			err := src.Sync(ctx, address)
			if err == nil {
				syncErr = nil
				r.logger.Info("replica bootstrapped",
					zap.String("address", address), zap.String("source", src.Address()))
				break
			}
			r.logger.Warn("bootstrap sync failed",
				zap.String("address", address), zap.String("source", src.Address()), zap.Error(err))
			syncErr = errors.Join(syncErr, err)
		}
		if syncErr != nil {
			return fmt.Errorf("%s %s: %w", op, address, syncErr)
		}
	}

	if err := rep.Connect(ctx); err != nil {
		return fmt.Errorf("%s %s: connect: %w", op, address, err)
	}
	r.put(address, rep)
	r.logger.Info("replica registered", zap.String("address", address), zap.Int("replicas", r.Len()))
	return nil
}

// beginJoin drops any stale entry for address and hides it from Refresh
// until endJoin.
func (r *Registry) beginJoin(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(address)
	r.joining[address] = struct{}{}
}

func (r *Registry) endJoin(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.joining, address)
}

func (r *Registry) put(address string, rep crawler.Replica) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[address]; !ok {
		r.order = append(r.order, address)
	}
	r.entries[address] = rep
}

// Remove drops address and reports whether it was registered.
func (r *Registry) Remove(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(address)
}

func (r *Registry) removeLocked(address string) bool {
	if _, ok := r.entries[address]; !ok {
		return false
	}
	delete(r.entries, address)
	for i, a := range r.order {
		if a == address {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the handle registered for address.
func (r *Registry) Get(address string) (crawler.Replica, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.entries[address]
	return rep, ok
}

// Addresses lists registered addresses in registration order.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Replicas lists registered handles in registration order.
func (r *Registry) Replicas() []crawler.Replica {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]crawler.Replica, 0, len(r.order))
	for _, a := range r.order {
		out = append(out, r.entries[a])
	}
	return out
}

// Len is the number of registered replicas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
