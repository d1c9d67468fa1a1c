package worker

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/crawler"
)

type fakeFrontier struct {
	mu        sync.Mutex
	queue     []string
	added     []string
	stopwords []string
	ready     chan struct{}
}

func newFakeFrontier(urls ...string) *fakeFrontier {
	return &fakeFrontier{queue: append([]string(nil), urls...), ready: make(chan struct{}, 1)}
}

func (f *fakeFrontier) Next(ctx context.Context) (string, error) {
	for {
		f.mu.Lock()
		if len(f.queue) > 0 {
			u := f.queue[0]
			f.queue = f.queue[1:]
			f.mu.Unlock()
			return u, nil
		}
		f.mu.Unlock()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-f.ready:
		}
	}
}

func (f *fakeFrontier) Add(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, url)
	return nil
}

func (f *fakeFrontier) AddFirst(ctx context.Context, url string) error {
	return f.Add(ctx, url)
}

func (f *fakeFrontier) AddStopWords(_ context.Context, words []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopwords = append(f.stopwords, words...)
	return nil
}

func (f *fakeFrontier) Stopwords(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stopwords...), nil
}

func (f *fakeFrontier) addedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...)
}

type fakeCoordinator struct {
	mu           sync.Mutex
	replicas     []string
	paused       bool
	pausedErr    error
	replicasErr  error
	hangPaused   bool
	unregistered []string
}

func (c *fakeCoordinator) Replicas(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.replicas...), c.replicasErr
}

func (c *fakeCoordinator) UnregisterReplica(_ context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unregistered = append(c.unregistered, address)
	return nil
}

func (c *fakeCoordinator) Paused(ctx context.Context) (bool, error) {
	if c.hangPaused {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return c.paused, c.pausedErr
}

func (c *fakeCoordinator) unregisteredAddrs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unregistered...)
}

type fakeReplica struct {
	address  string
	mu       sync.Mutex
	known    map[string]bool
	writeErr error
	block    bool
	// hang makes ContainsURL wait for its context.
	hang     bool
	requests []crawler.IndexRequest
	frequent []string
}

func newFakeReplica(address string, known ...string) *fakeReplica {
	r := &fakeReplica{address: address, known: map[string]bool{}}
	for _, k := range known {
		r.known[k] = true
	}
	return r
}

func (r *fakeReplica) Address() string { return r.address }

func (r *fakeReplica) AddToIndex(ctx context.Context, req crawler.IndexRequest) error {
	if r.block {
		<-ctx.Done()
		return apperr.E(apperr.ErrConnectivity, "add to index", ctx.Err())
	}
	if r.writeErr != nil {
		return r.writeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	r.known[req.URL] = true
	return nil
}

func (r *fakeReplica) writes() []crawler.IndexRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]crawler.IndexRequest(nil), r.requests...)
}

func (r *fakeReplica) ContainsURL(ctx context.Context, url string) (bool, error) {
	if r.hang {
		<-ctx.Done()
		return false, apperr.E(apperr.ErrConnectivity, "contains url", ctx.Err())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.known[url], nil
}

func (r *fakeReplica) FrequentWords(context.Context) ([]string, error) {
	return r.frequent, nil
}

func (r *fakeReplica) Search(context.Context, []string) ([]crawler.SearchResult, error) {
	return nil, nil
}

func (r *fakeReplica) Connections(_ context.Context, url string) (crawler.Connections, error) {
	return crawler.Connections{URL: url}, nil
}

func (r *fakeReplica) UpdateTopWords(context.Context, []string) error { return nil }

func (r *fakeReplica) TopSearches(context.Context) ([]crawler.WordCount, error) { return nil, nil }

func (r *fakeReplica) Size(context.Context) (int64, error) { return 0, nil }

func (r *fakeReplica) Sync(context.Context, string) error { return nil }

func (r *fakeReplica) Connect(context.Context) error { return nil }

type fakeDialer map[string]*fakeReplica

func (d fakeDialer) Dial(_ context.Context, address string) (crawler.Replica, error) {
	r, ok := d[address]
	if !ok {
		return nil, apperr.E(apperr.ErrConnectivity, "dial replica", errors.New("connection refused"))
	}
	return r, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	body, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{}, errors.New("status 404: Not Found")
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
