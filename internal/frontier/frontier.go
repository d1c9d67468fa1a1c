// Package frontier implements the durable, bounded and deduplicated URL
// worklist shared by all crawl workers, along with the global stopword set.
//
// The backing files are the source of truth: every operation reloads them
// and every mutation rewrites them before returning, so an operator may edit
// the files while the process runs. A single mutex serializes all operations.
package frontier

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/metrics"
)

const (
	defaultMaxSize      = 100000
	defaultPollInterval = time.Second
)

// Config controls where the frontier persists and how large it may grow.
type Config struct {
	Path          string
	StopwordsPath string
	MaxSize       int
	// PollInterval bounds how long a waiting Next goes without rereading the
	// file, so entries added by hand are picked up too.
	PollInterval time.Duration
}

// Frontier is safe for concurrent use.
type Frontier struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	queue  []string
	notify chan struct{}
}

var _ crawler.Frontier = (*Frontier)(nil)

// New opens (or creates) the frontier files described by cfg.
func New(cfg Config, logger *zap.Logger) (*Frontier, error) {
	if cfg.Path == "" {
		return nil, apperr.E(apperr.ErrConfiguration, "new frontier", fmt.Errorf("frontier.path is required"))
	}
	if cfg.StopwordsPath == "" {
		return nil, apperr.E(apperr.ErrConfiguration, "new frontier", fmt.Errorf("frontier.stopwords_path is required"))
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Frontier{
		cfg:    cfg,
		logger: logger,
		notify: make(chan struct{}),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reload(); err != nil {
		return nil, err
	}
	if err := f.persist(); err != nil {
		return nil, err
	}
	logger.Info("frontier opened",
		zap.String("path", cfg.Path),
		zap.Int("size", len(f.queue)),
		zap.Int("max_size", cfg.MaxSize),
	)
	return f, nil
}

// Next leases the URL at the head of the queue, waiting for one to arrive if
// the frontier is empty. It returns ctx's error if ctx ends first.
func (f *Frontier) Next(ctx context.Context) (string, error) {
	timer := time.NewTimer(f.cfg.PollInterval)
	defer timer.Stop()
	for {
		f.mu.Lock()
		if err := f.reload(); err != nil {
			f.mu.Unlock()
			return "", err
		}
		if len(f.queue) > 0 {
			head := f.queue[0]
			rest := f.queue[1:]
			prev := f.queue
			f.queue = rest
			if err := f.persist(); err != nil {
				f.queue = prev
				f.mu.Unlock()
				return "", err
			}
			f.mu.Unlock()
			return head, nil
		}
		wake := f.notify
		f.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(f.cfg.PollInterval)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("frontier next: %w", ctx.Err())
		case <-wake:
		case <-timer.C:
		}
	}
}

// Add appends url at the back. It is a no-op when url is already queued.
// At capacity the entry at the back is evicted first.
func (f *Frontier) Add(_ context.Context, rawURL string) error {
	return f.insert(rawURL, false)
}

// AddFirst is Add, but the URL goes to the head of the queue.
func (f *Frontier) AddFirst(_ context.Context, rawURL string) error {
	return f.insert(rawURL, true)
}

func (f *Frontier) insert(rawURL string, first bool) error {
	u, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reload(); err != nil {
		return err
	}
	for _, existing := range f.queue {
		if existing == u {
			return nil
		}
	}

	next := make([]string, 0, len(f.queue)+1)
	kept := f.queue
	if len(kept) >= f.cfg.MaxSize {
		evicted := kept[len(kept)-1]
		kept = kept[:len(kept)-1]
		f.logger.Debug("frontier full, evicting", zap.String("url", evicted))
	}
	if first {
		next = append(next, u)
		next = append(next, kept...)
	} else {
		next = append(next, kept...)
		next = append(next, u)
	}

	prev := f.queue
	f.queue = next
	if err := f.persist(); err != nil {
		f.queue = prev
		return err
	}
	close(f.notify)
	f.notify = make(chan struct{})
	return nil
}

// Len reports how many URLs are currently queued.
func (f *Frontier) Len(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reload(); err != nil {
		return 0, err
	}
	return len(f.queue), nil
}

// AddStopWords unions words into the persisted stopword set.
func (f *Frontier) AddStopWords(_ context.Context, words []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.loadStopwords()
	if err != nil {
		return err
	}
	set := make(map[string]struct{}, len(current)+len(words))
	for _, w := range current {
		set[w] = struct{}{}
	}
	added := 0
	for _, w := range words {
		if w == "" {
			continue
		}
		if _, ok := set[w]; !ok {
			set[w] = struct{}{}
			added++
		}
	}
	if added == 0 {
		return nil
	}
	merged := make([]string, 0, len(set))
	for w := range set {
		merged = append(merged, w)
	}
	sort.Strings(merged)
	if err := writeLines(f.cfg.StopwordsPath, merged); err != nil {
		return apperr.E(apperr.ErrStorage, "write stopwords", err)
	}
	f.logger.Info("stopwords extended", zap.Int("added", added), zap.Int("total", len(merged)))
	return nil
}

// Stopwords rereads and returns the persisted stopword set.
func (f *Frontier) Stopwords(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadStopwords()
}

func (f *Frontier) loadStopwords() ([]string, error) {
	words, err := readLines(f.cfg.StopwordsPath)
	if err != nil {
		return nil, apperr.E(apperr.ErrStorage, "read stopwords", err)
	}
	sort.Strings(words)
	return dedupe(words), nil
}

// reload replaces the in-memory queue with the file contents. Callers hold mu.
func (f *Frontier) reload() error {
	lines, err := readLines(f.cfg.Path)
	if err != nil {
		return apperr.E(apperr.ErrStorage, "read frontier", err)
	}
	queue := dedupe(lines)
	if len(queue) > f.cfg.MaxSize {
		queue = queue[:f.cfg.MaxSize]
	}
	f.queue = queue
	metrics.SetFrontierSize(len(queue))
	return nil
}

// persist writes the in-memory queue back to disk. Callers hold mu.
func (f *Frontier) persist() error {
	if err := writeLines(f.cfg.Path, f.queue); err != nil {
		return apperr.E(apperr.ErrStorage, "write frontier", err)
	}
	metrics.SetFrontierSize(len(f.queue))
	return nil
}

// dedupe keeps the first occurrence of every line.
func dedupe(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
