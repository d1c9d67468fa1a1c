// Package worker implements the crawl loop: lease a URL, fetch and parse it,
// write it to every index replica and feed discovered links back.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/metrics"
	"github.com/JakeFAU/websearch/internal/parser"
	"github.com/JakeFAU/websearch/internal/tokenizer"
)

const (
	defaultLeaseWait      = 30 * time.Second
	defaultReplicaTimeout = 10 * time.Second
	defaultErrorBackoff   = time.Second
	defaultContentType    = "text/html; charset=utf-8"

	// PageIndexedKind is the publish kind of crawl events.
	PageIndexedKind = "page_indexed"
)

// Outcome is what one iteration did with its URL.
type Outcome string

// Iteration outcomes, also used as the crawl metric label.
const (
	OutcomeIndexed     Outcome = "indexed"
	OutcomeKnown       Outcome = "known"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomePaused      Outcome = "paused"
	OutcomeRejected    Outcome = "rejected"
	OutcomeNoReplicas  Outcome = "no_replicas"
)

// Config controls Worker behavior.
type Config struct {
	// LeaseWait bounds one Frontier.Next call.
	LeaseWait time.Duration
	// ReplicaTimeout bounds each replica write in the fan-out.
	ReplicaTimeout time.Duration
	// CallTimeout bounds every other remote call of an iteration: replica
	// discovery, pause checks, existence checks and frontier adds. Defaults
	// to ReplicaTimeout.
	CallTimeout time.Duration
	// ErrorBackoff is slept after a failed lease or an empty registry.
	ErrorBackoff time.Duration
	// ArchivePrefix roots raw page copies in the blob store.
	ArchivePrefix string
}

// Scope filters discovered links before they are enqueued.
type Scope interface {
	Allow(url string) bool
}

// Deps are the collaborators of a Worker. Frontier, Coordinator, Dialer,
// Fetcher and Tokenizer are required.
type Deps struct {
	Frontier    crawler.Frontier
	Coordinator crawler.Coordinator
	Dialer      crawler.ReplicaDialer
	Fetcher     crawler.Fetcher
	Tokenizer   *tokenizer.Tokenizer

	Limiter crawler.RateLimiter
	Scope   Scope

	// Blobs, Hasher and Clock enable raw page archiving when all are set.
	Blobs  crawler.BlobStore
	Hasher crawler.Hasher
	Clock  crawler.Clock
	// Publisher receives one event per indexed page when set.
	Publisher crawler.Publisher
}

// Worker runs crawl iterations until its context ends.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	pick   func(n int) int
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Worker, error) {
	switch {
	case deps.Frontier == nil:
		return nil, errors.New("worker requires a frontier")
	case deps.Coordinator == nil:
		return nil, errors.New("worker requires a coordinator")
	case deps.Dialer == nil:
		return nil, errors.New("worker requires a replica dialer")
	case deps.Fetcher == nil:
		return nil, errors.New("worker requires a fetcher")
	case deps.Tokenizer == nil:
		return nil, errors.New("worker requires a tokenizer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LeaseWait <= 0 {
		cfg.LeaseWait = defaultLeaseWait
	}
	if cfg.ReplicaTimeout <= 0 {
		cfg.ReplicaTimeout = defaultReplicaTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = cfg.ReplicaTimeout
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger, pick: rand.IntN}, nil
}

// Run blocks, leasing and processing URLs until ctx finishes. An iteration
// in flight when ctx ends runs to completion on a detached context so its
// URL is either written or requeued.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		url, err := w.lease(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				w.logger.Warn("frontier lease failed", zap.Error(err))
				w.sleep(ctx)
			}
			continue
		}
		metrics.IncActiveWorkers()
		outcome := w.Process(context.WithoutCancel(ctx), url)
		metrics.DecActiveWorkers()
		if outcome == OutcomeNoReplicas {
			w.sleep(ctx)
		}
	}
}

func (w *Worker) lease(ctx context.Context) (string, error) {
	leaseCtx, cancel := context.WithTimeout(ctx, w.cfg.LeaseWait)
	defer cancel()
	url, err := w.deps.Frontier.Next(leaseCtx)
	if err != nil {
		return "", fmt.Errorf("lease url: %w", err)
	}
	return url, nil
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.cfg.ErrorBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Process runs one iteration for a leased URL.
func (w *Worker) Process(ctx context.Context, url string) Outcome {
	log := w.logger.With(zap.String("url", url))
	outcome := w.process(ctx, url, log)
	metrics.ObserveCrawl(crawler.Hostname(url), string(outcome))
	log.Debug("crawl iteration finished", zap.String("outcome", string(outcome)))
	return outcome
}

// call derives the deadline of one remote call.
func (w *Worker) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.cfg.CallTimeout)
}

func (w *Worker) replicas(ctx context.Context) ([]string, error) {
	callCtx, cancel := w.call(ctx)
	defer cancel()
	return w.deps.Coordinator.Replicas(callCtx)
}

func (w *Worker) paused(ctx context.Context) (bool, error) {
	callCtx, cancel := w.call(ctx)
	defer cancel()
	return w.deps.Coordinator.Paused(callCtx)
}

func (w *Worker) process(ctx context.Context, url string, log *zap.Logger) Outcome {
	replicas, err := w.replicas(ctx)
	if err != nil || len(replicas) == 0 {
		if err != nil {
			log.Warn("replica discovery failed", zap.Error(err))
		}
		w.requeue(ctx, url, log)
		return OutcomeNoReplicas
	}

	if w.indexed(ctx, replicas, url, log) {
		return OutcomeKnown
	}

	page, body, err := w.fetch(ctx, url)
	if err != nil {
		log.Info("fetch failed", zap.Error(err))
		return OutcomeFetchFailed
	}
	req := crawler.IndexRequest{
		URL:     url,
		Title:   page.Title,
		Snippet: page.Snippet,
		Words:   w.deps.Tokenizer.Frequencies(page.Title + " " + page.Text),
		Links:   w.inScope(page.Links),
	}

	paused, err := w.paused(ctx)
	if err != nil {
		log.Warn("pause check failed, requeueing", zap.Error(err))
		paused = true
	}
	if paused {
		w.requeue(ctx, url, log)
		return OutcomePaused
	}

	accepted := w.fanOut(ctx, replicas, req, log)
	if len(accepted) == 0 {
		w.requeue(ctx, url, log)
		return OutcomeRejected
	}
	w.enqueueLinks(ctx, accepted, req.Links, log)
	w.archive(ctx, url, body, log)
	w.publish(ctx, req, len(accepted), log)
	return OutcomeIndexed
}

// indexed asks one random replica. A failed check counts as not indexed.
func (w *Worker) indexed(ctx context.Context, replicas []string, url string, log *zap.Logger) bool {
	address := replicas[w.pick(len(replicas))]
	callCtx, cancel := w.call(ctx)
	defer cancel()
	replica, err := w.deps.Dialer.Dial(callCtx, address)
	if err != nil {
		log.Debug("existence check dial failed", zap.String("replica", address), zap.Error(err))
		return false
	}
	ok, err := replica.ContainsURL(callCtx, url)
	if err != nil {
		log.Debug("existence check failed", zap.String("replica", address), zap.Error(err))
		return false
	}
	return ok
}

func (w *Worker) fetch(ctx context.Context, url string) (crawler.Page, []byte, error) {
	if w.deps.Limiter != nil {
		if err := w.deps.Limiter.Wait(ctx, url); err != nil {
			return crawler.Page{}, nil, err
		}
	}
	resp, err := w.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{URL: url})
	if err != nil {
		return crawler.Page{}, nil, fmt.Errorf("fetch: %w", err)
	}
	page, err := parser.Parse(url, resp.Body)
	if err != nil {
		return crawler.Page{}, nil, err
	}
	return page, resp.Body, nil
}

func (w *Worker) inScope(links []string) []string {
	if w.deps.Scope == nil {
		return links
	}
	out := make([]string, 0, len(links))
	for _, l := range links {
		if w.deps.Scope.Allow(l) {
			out = append(out, l)
		}
	}
	return out
}

type writeResult struct {
	address string
	err     error
}

// fanOut writes req to every replica concurrently and returns the addresses
// that accepted it. Replicas failing with anything but a lock conflict are
// unregistered.
func (w *Worker) fanOut(ctx context.Context, replicas []string, req crawler.IndexRequest, log *zap.Logger) []string {
	results := make([]writeResult, len(replicas))
	var wg sync.WaitGroup
	for i, address := range replicas {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = writeResult{address: address, err: w.write(ctx, address, req)}
		}()
	}
	wg.Wait()

	accepted := make([]string, 0, len(results))
	for _, r := range results {
		switch {
		case r.err == nil:
			metrics.ObserveIndexWrite("ok")
			accepted = append(accepted, r.address)
		case apperr.IsLocked(r.err):
			metrics.ObserveIndexWrite("locked")
			log.Info("replica locked, keeping it registered", zap.String("replica", r.address), zap.Error(r.err))
		default:
			metrics.ObserveIndexWrite("failed")
			log.Warn("replica write failed, unregistering", zap.String("replica", r.address), zap.Error(r.err))
			if err := w.unregister(ctx, r.address); err != nil {
				log.Warn("unregister replica failed", zap.String("replica", r.address), zap.Error(err))
			}
		}
	}
	return accepted
}

func (w *Worker) unregister(ctx context.Context, address string) error {
	callCtx, cancel := w.call(ctx)
	defer cancel()
	return w.deps.Coordinator.UnregisterReplica(callCtx, address)
}

func (w *Worker) write(ctx context.Context, address string, req crawler.IndexRequest) error {
	writeCtx, cancel := context.WithTimeout(ctx, w.cfg.ReplicaTimeout)
	defer cancel()
	replica, err := w.deps.Dialer.Dial(writeCtx, address)
	if err != nil {
		return err
	}
	return replica.AddToIndex(writeCtx, req)
}

// enqueueLinks adds every link the checked replica does not already hold. The
// checked replica is drawn from those that just accepted the write.
func (w *Worker) enqueueLinks(ctx context.Context, accepted, links []string, log *zap.Logger) {
	if len(links) == 0 {
		return
	}
	address := accepted[w.pick(len(accepted))]
	dialCtx, cancel := w.call(ctx)
	replica, err := w.deps.Dialer.Dial(dialCtx, address)
	cancel()
	if err != nil {
		log.Debug("link check dial failed", zap.String("replica", address), zap.Error(err))
		replica = nil
	}
	added := 0
	for _, link := range links {
		if replica != nil && w.holds(ctx, replica, link) {
			continue
		}
		if err := w.add(ctx, link); err != nil {
			log.Debug("enqueue link failed", zap.String("link", link), zap.Error(err))
			continue
		}
		added++
	}
	log.Debug("links enqueued", zap.Int("found", len(links)), zap.Int("added", added))
}

func (w *Worker) holds(ctx context.Context, replica crawler.Replica, link string) bool {
	callCtx, cancel := w.call(ctx)
	defer cancel()
	known, err := replica.ContainsURL(callCtx, link)
	return err == nil && known
}

func (w *Worker) add(ctx context.Context, url string) error {
	callCtx, cancel := w.call(ctx)
	defer cancel()
	return w.deps.Frontier.Add(callCtx, url)
}

func (w *Worker) requeue(ctx context.Context, url string, log *zap.Logger) {
	if err := w.add(ctx, url); err != nil {
		log.Error("requeue failed, url dropped", zap.Error(err))
	}
}

func (w *Worker) archive(ctx context.Context, url string, body []byte, log *zap.Logger) {
	if w.deps.Blobs == nil || w.deps.Hasher == nil || w.deps.Clock == nil {
		return
	}
	digest, err := w.deps.Hasher.Hash(body)
	if err != nil {
		log.Warn("hash page failed", zap.Error(err))
		return
	}
	path := archivePath(w.cfg.ArchivePrefix, crawler.Hostname(url), w.deps.Clock.Now(), digest)
	callCtx, cancel := w.call(ctx)
	defer cancel()
	uri, err := w.deps.Blobs.PutObject(callCtx, path, defaultContentType, bytes.NewReader(body))
	if err != nil {
		log.Warn("archive page failed", zap.Error(err))
		return
	}
	log.Debug("page archived", zap.String("uri", uri))
}

func archivePath(prefix, host string, at time.Time, digest string) string {
	name := fmt.Sprintf("%s/%s/%s.html", host, at.UTC().Format("2006/01/02"), digest)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		return prefix + "/" + name
	}
	return name
}

func (w *Worker) publish(ctx context.Context, req crawler.IndexRequest, replicas int, log *zap.Logger) {
	if w.deps.Publisher == nil {
		return
	}
	payload := map[string]any{
		"url":      req.URL,
		"title":    req.Title,
		"words":    len(req.Words),
		"links":    len(req.Links),
		"replicas": replicas,
	}
	callCtx, cancel := w.call(ctx)
	defer cancel()
	if _, err := w.deps.Publisher.Publish(callCtx, PageIndexedKind, payload); err != nil {
		log.Warn("publish crawl event failed", zap.Error(err))
	}
}
