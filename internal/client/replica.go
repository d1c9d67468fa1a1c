package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/crawler"
)

// SnapshotContentType is the media type of replica snapshots on the wire.
const SnapshotContentType = "application/octet-stream"

// Replica is a handle to one remote index replica.
type Replica struct {
	rpc
	address string
}

var _ crawler.Replica = (*Replica)(nil)

// NewReplica returns a client for the replica at address. No request is made.
func NewReplica(address string, opts ...Option) *Replica {
	return &Replica{rpc: newRPC(address, opts...), address: address}
}

// Address is the replica's registry key.
func (r *Replica) Address() string { return r.address }

type searchBody struct {
	Words []string `json:"words"`
}

type resultsBody struct {
	Results []crawler.SearchResult `json:"results"`
}

type containsBody struct {
	Contains bool `json:"contains"`
}

type topSearchesBody struct {
	TopSearches []crawler.WordCount `json:"top_searches"`
}

type targetBody struct {
	Target string `json:"target"`
}

type uriBody struct {
	URI string `json:"uri"`
}

func (r *Replica) op(name string) string {
	return fmt.Sprintf("replica %s %s", r.address, name)
}

// Ping checks the replica's liveness endpoint.
func (r *Replica) Ping(ctx context.Context) error {
	_, err := r.call(ctx, r.op("ping"), http.MethodGet, "/healthz", nil, nil, nil)
	return err
}

func (r *Replica) AddToIndex(ctx context.Context, req crawler.IndexRequest) error {
	_, err := r.call(ctx, r.op("add to index"), http.MethodPost, "/v1/index", nil, req, nil)
	return err
}

func (r *Replica) Search(ctx context.Context, words []string) ([]crawler.SearchResult, error) {
	var out resultsBody
	if _, err := r.call(ctx, r.op("search"), http.MethodPost, "/v1/search", nil, searchBody{Words: words}, &out); err != nil {
		return nil, err
	}
	if out.Results == nil {
		out.Results = []crawler.SearchResult{}
	}
	return out.Results, nil
}

func (r *Replica) Connections(ctx context.Context, u string) (crawler.Connections, error) {
	var out crawler.Connections
	if _, err := r.call(ctx, r.op("connections"), http.MethodGet, "/v1/connections",
		url.Values{"url": {u}}, nil, &out); err != nil {
		return crawler.Connections{}, err
	}
	if out.Links == nil {
		out.Links = []string{}
	}
	return out, nil
}

func (r *Replica) ContainsURL(ctx context.Context, u string) (bool, error) {
	var out containsBody
	if _, err := r.call(ctx, r.op("contains"), http.MethodGet, "/v1/contains",
		url.Values{"url": {u}}, nil, &out); err != nil {
		return false, err
	}
	return out.Contains, nil
}

func (r *Replica) UpdateTopWords(ctx context.Context, words []string) error {
	_, err := r.call(ctx, r.op("update top words"), http.MethodPost, "/v1/top-words", nil, wordsBody{Words: words}, nil)
	return err
}

func (r *Replica) TopSearches(ctx context.Context) ([]crawler.WordCount, error) {
	var out topSearchesBody
	if _, err := r.call(ctx, r.op("top searches"), http.MethodGet, "/v1/top-searches", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.TopSearches, nil
}

func (r *Replica) FrequentWords(ctx context.Context) ([]string, error) {
	var out wordsBody
	if _, err := r.call(ctx, r.op("frequent words"), http.MethodGet, "/v1/frequent-words", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Words, nil
}

func (r *Replica) Size(ctx context.Context) (int64, error) {
	var out sizeBody
	if _, err := r.call(ctx, r.op("size"), http.MethodGet, "/v1/size", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Size, nil
}

// Snapshot streams the replica's full store into w.
func (r *Replica) Snapshot(ctx context.Context, w io.Writer) (int64, error) {
	op := r.op("snapshot")
	resp, err := r.send(ctx, op, http.MethodGet, "/v1/snapshot", nil, "", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck // streamed below
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, apperr.E(apperr.ErrConnectivity, op, err)
	}
	return n, nil
}

// Restore replaces the replica's store with the snapshot read from src.
func (r *Replica) Restore(ctx context.Context, src io.Reader) error {
	resp, err := r.send(ctx, r.op("restore"), http.MethodPut, "/v1/snapshot", nil, SnapshotContentType, src)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// Sync asks this replica to push its snapshot to target.
func (r *Replica) Sync(ctx context.Context, target string) error {
	_, err := r.call(ctx, r.op("sync"), http.MethodPost, "/v1/sync", nil, targetBody{Target: target}, nil)
	return err
}

// Connect tells the replica it has been admitted and may serve.
func (r *Replica) Connect(ctx context.Context) error {
	_, err := r.call(ctx, r.op("connect"), http.MethodPost, "/v1/connect", nil, nil, nil)
	return err
}

// Archive asks the replica to write a snapshot to its blob store.
func (r *Replica) Archive(ctx context.Context) (string, error) {
	var out uriBody
	if _, err := r.call(ctx, r.op("archive"), http.MethodPost, "/v1/archive", nil, nil, &out); err != nil {
		return "", err
	}
	return out.URI, nil
}

// Dialer resolves replica addresses into handles, probing liveness first.
type Dialer struct {
	opts []Option
}

var _ crawler.ReplicaDialer = (*Dialer)(nil)

// NewDialer returns a Dialer whose handles share opts.
func NewDialer(opts ...Option) *Dialer {
	return &Dialer{opts: opts}
}

// Dial returns a handle to address once its /healthz answers.
func (d *Dialer) Dial(ctx context.Context, address string) (crawler.Replica, error) {
	if address == "" {
		return nil, apperr.Validationf("dial replica", "address is required")
	}
	r := NewReplica(address, d.opts...)
	if err := r.Ping(ctx); err != nil {
		return nil, err
	}
	return r, nil
}
