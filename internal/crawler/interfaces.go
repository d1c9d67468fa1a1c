package crawler

import (
	"context"
	"io"
	"time"
)

// Frontier is the shared URL worklist and stopword store.
type Frontier interface {
	// Next blocks until a URL can be leased or ctx ends.
	Next(ctx context.Context) (string, error)
	Add(ctx context.Context, url string) error
	AddFirst(ctx context.Context, url string) error
	AddStopWords(ctx context.Context, words []string) error
	Stopwords(ctx context.Context) ([]string, error)
}

// Index is the read/write surface of one index replica.
type Index interface {
	AddToIndex(ctx context.Context, req IndexRequest) error
	Search(ctx context.Context, words []string) ([]SearchResult, error)
	Connections(ctx context.Context, url string) (Connections, error)
	ContainsURL(ctx context.Context, url string) (bool, error)
	UpdateTopWords(ctx context.Context, words []string) error
	TopSearches(ctx context.Context) ([]WordCount, error)
	FrequentWords(ctx context.Context) ([]string, error)
	Size(ctx context.Context) (int64, error)
}

// Replica is a handle to a remote index replica.
type Replica interface {
	Index
	Address() string
	// Sync pushes a full snapshot of this replica to target.
	Sync(ctx context.Context, target string) error
	// Connect is called once a freshly bootstrapped replica may serve.
	Connect(ctx context.Context) error
}

// ReplicaDialer resolves an address to a reachable replica handle.
type ReplicaDialer interface {
	Dial(ctx context.Context, address string) (Replica, error)
}

// Coordinator is the part of the gateway crawl workers talk to.
type Coordinator interface {
	Replicas(ctx context.Context) ([]string, error)
	UnregisterReplica(ctx context.Context, address string) error
	Paused(ctx context.Context) (bool, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// RateLimiter delays fetches to keep per-host politeness.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes payloads to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for integrity checks.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces opaque identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
