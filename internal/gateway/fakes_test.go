package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/crawler"
)

type fakeReplica struct {
	mu          sync.Mutex
	addr        string
	results     []crawler.SearchResult
	searchErr   error
	searchCalls int
	hits        map[string]int64
	size        int64
	syncErr     error
	syncedTo    []string
	connected   bool
	hangConnect bool
	delay       time.Duration
	syncStarted chan struct{}
	syncGate    chan struct{}
}

func newFakeReplica(addr string, results ...crawler.SearchResult) *fakeReplica {
	return &fakeReplica{addr: addr, results: results, hits: map[string]int64{}, size: int64(len(results))}
}

func (f *fakeReplica) Address() string { return f.addr }

func (f *fakeReplica) AddToIndex(context.Context, crawler.IndexRequest) error { return nil }

func (f *fakeReplica) Search(ctx context.Context, _ []string) ([]crawler.SearchResult, error) {
	f.mu.Lock()
	f.searchCalls++
	err, delay := f.searchErr, f.delay
	out := append([]crawler.SearchResult(nil), f.results...)
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, apperr.E(apperr.ErrConnectivity, "search", ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeReplica) Connections(_ context.Context, url string) (crawler.Connections, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return crawler.Connections{}, f.searchErr
	}
	return crawler.Connections{URL: url, Links: []string{"http://linked/"}}, nil
}

func (f *fakeReplica) ContainsURL(context.Context, string) (bool, error) { return false, nil }

func (f *fakeReplica) UpdateTopWords(_ context.Context, words []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range words {
		f.hits[w]++
	}
	return nil
}

func (f *fakeReplica) TopSearches(context.Context) ([]crawler.WordCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]crawler.WordCount, 0, len(f.hits))
	for w, n := range f.hits {
		out = append(out, crawler.WordCount{Word: w, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	return out, nil
}

func (f *fakeReplica) FrequentWords(context.Context) ([]string, error) { return nil, nil }

func (f *fakeReplica) Size(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size, nil
}

func (f *fakeReplica) Sync(ctx context.Context, target string) error {
	if f.syncGate != nil {
		f.syncStarted <- struct{}{}
		select {
		case <-f.syncGate:
		case <-ctx.Done():
			return apperr.E(apperr.ErrConnectivity, "sync", ctx.Err())
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncErr != nil {
		return f.syncErr
	}
	f.syncedTo = append(f.syncedTo, target)
	return nil
}

func (f *fakeReplica) Connect(ctx context.Context) error {
	if f.hangConnect {
		<-ctx.Done()
		return apperr.E(apperr.ErrConnectivity, "connect", ctx.Err())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeReplica) isConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeReplica) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls
}

func (f *fakeReplica) hitCount(word string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[word]
}

type fakeDialer struct {
	mu       sync.Mutex
	replicas map[string]*fakeReplica
	dials    map[string]int
}

func newFakeDialer(reps ...*fakeReplica) *fakeDialer {
	d := &fakeDialer{replicas: map[string]*fakeReplica{}, dials: map[string]int{}}
	for _, r := range reps {
		d.replicas[r.addr] = r
	}
	return d
}

func (d *fakeDialer) Dial(ctx context.Context, address string) (crawler.Replica, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[address]++
	if err := ctx.Err(); err != nil {
		return nil, apperr.E(apperr.ErrConnectivity, "dial", err)
	}
	r, ok := d.replicas[address]
	if !ok {
		return nil, apperr.E(apperr.ErrConnectivity, "dial", nil)
	}
	return r, nil
}

func (d *fakeDialer) dialCount(address string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[address]
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeFrontier struct {
	mu    sync.Mutex
	added []string
	first []string
	stop  []string
}

func (f *fakeFrontier) Next(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (f *fakeFrontier) Add(_ context.Context, u string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, u)
	return nil
}

func (f *fakeFrontier) AddFirst(_ context.Context, u string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.first = append(f.first, u)
	return nil
}

func (f *fakeFrontier) AddStopWords(_ context.Context, words []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stop = append(f.stop, words...)
	return nil
}

func (f *fakeFrontier) Stopwords(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stop...), nil
}
