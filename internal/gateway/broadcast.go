package gateway

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/metrics"
)

// Listener receives statistics snapshots. A Deliver error removes the
// listener for good.
type Listener interface {
	Name() string
	Deliver(ctx context.Context, stats crawler.Statistics) error
}

// ListenerFunc adapts a function into an in-process Listener.
type ListenerFunc func(ctx context.Context, stats crawler.Statistics) error

// Name implements Listener.
func (ListenerFunc) Name() string { return "callback" }

// Deliver implements Listener.
func (f ListenerFunc) Deliver(ctx context.Context, stats crawler.Statistics) error { return f(ctx, stats) }

type subscription struct {
	id       string
	listener Listener
	mailbox  chan crawler.Statistics
	done     chan struct{}
}

// Broadcaster fans snapshots out to listeners. Each listener has its own
// goroutine and a one-slot mailbox holding only the newest snapshot, so a
// slow listener never delays the publisher or the others.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[string]*subscription
	ids     crawler.IDGenerator
	seq     atomic.Uint64
	timeout time.Duration
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// NewBroadcaster returns a Broadcaster; timeout bounds each delivery.
func NewBroadcaster(ids crawler.IDGenerator, timeout time.Duration, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:    make(map[string]*subscription),
		ids:     ids,
		timeout: timeout,
		logger:  logger.Named("broadcast"),
	}
}

// Add registers l and returns its id.
func (b *Broadcaster) Add(l Listener) string {
	sub := &subscription{
		id:       b.newID(),
		listener: l,
		mailbox:  make(chan crawler.Statistics, 1),
		done:     make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	n := len(b.subs)
	b.mu.Unlock()
	metrics.SetStatisticsListeners(n)

	b.wg.Add(1)
	go b.run(sub)
	b.logger.Info("listener added", zap.String("id", sub.id), zap.String("kind", l.Name()))
	return sub.id
}

// Remove unregisters a listener; it reports whether id was present.
func (b *Broadcaster) Remove(id string) bool {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(sub.done)
	}
	n := len(b.subs)
	b.mu.Unlock()
	if ok {
		metrics.SetStatisticsListeners(n)
	}
	return ok
}

// Len is the number of live listeners.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish hands stats to every listener without blocking. An undelivered
// older snapshot in a mailbox is replaced.
func (b *Broadcaster) Publish(stats crawler.Statistics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		snapshot := stats.Clone()
		select {
		case sub.mailbox <- snapshot:
		default:
			select {
			case <-sub.mailbox:
			default:
			}
			sub.mailbox <- snapshot
		}
	}
}

// Close removes every listener and waits for their goroutines.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.done)
	}
	b.mu.Unlock()
	metrics.SetStatisticsListeners(0)
	b.wg.Wait()
}

func (b *Broadcaster) run(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case stats := <-sub.mailbox:
			err := b.deliver(sub, stats)
			if err != nil {
				b.logger.Warn("listener failed, removing",
					zap.String("id", sub.id), zap.String("kind", sub.listener.Name()), zap.Error(err))
				b.Remove(sub.id)
				return
			}
		}
	}
}

func (b *Broadcaster) deliver(sub *subscription, stats crawler.Statistics) error {
	ctx := context.Background()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return sub.listener.Deliver(ctx, stats)
}

func (b *Broadcaster) newID() string {
	if b.ids != nil {
		if id, err := b.ids.NewID(); err == nil {
			return id
		}
	}
	return "listener-" + strconv.FormatUint(b.seq.Add(1), 10)
}
