package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/JakeFAU/websearch/internal/crawler"
)

// DefaultLongPoll bounds a single /v1/next request when ctx has no deadline.
const DefaultLongPoll = 30 * time.Second

// Frontier talks to the frontier process.
type Frontier struct {
	rpc
	longPoll time.Duration
}

var _ crawler.Frontier = (*Frontier)(nil)

// NewFrontier returns a client for the frontier at address.
func NewFrontier(address string, opts ...Option) *Frontier {
	return &Frontier{rpc: newRPC(address, opts...), longPoll: DefaultLongPoll}
}

type urlBody struct {
	URL string `json:"url"`
}

type wordsBody struct {
	Words []string `json:"words"`
}

type stopwordsBody struct {
	Stopwords []string `json:"stopwords"`
}

type sizeBody struct {
	Size int64 `json:"size"`
}

// Next long-polls the frontier until a URL is leased or ctx ends. Each request
// asks the server to wait at most until ctx's deadline.
func (f *Frontier) Next(ctx context.Context) (string, error) {
	for {
		wait := f.longPoll
		if dl, ok := ctx.Deadline(); ok {
			if remaining := time.Until(dl); remaining < wait {
				wait = remaining
			}
		}
		if wait <= 0 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		var out urlBody
		status, err := f.call(ctx, "frontier next", http.MethodGet, "/v1/next",
			url.Values{"wait": {wait.String()}}, nil, &out)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", err
		}
		if status == http.StatusOK && out.URL != "" {
			return out.URL, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
}

// Add appends url at the back of the queue.
func (f *Frontier) Add(ctx context.Context, u string) error {
	_, err := f.call(ctx, "frontier add", http.MethodPost, "/v1/urls", nil, urlBody{URL: u}, nil)
	return err
}

// AddFirst puts url at the head of the queue.
func (f *Frontier) AddFirst(ctx context.Context, u string) error {
	_, err := f.call(ctx, "frontier add first", http.MethodPost, "/v1/urls/first", nil, urlBody{URL: u}, nil)
	return err
}

// AddStopWords merges words into the shared stopword set.
func (f *Frontier) AddStopWords(ctx context.Context, words []string) error {
	_, err := f.call(ctx, "frontier add stopwords", http.MethodPost, "/v1/stopwords", nil, wordsBody{Words: words}, nil)
	return err
}

// Stopwords returns the shared stopword set.
func (f *Frontier) Stopwords(ctx context.Context) ([]string, error) {
	var out stopwordsBody
	if _, err := f.call(ctx, "frontier stopwords", http.MethodGet, "/v1/stopwords", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Stopwords, nil
}

// Len returns how many URLs are queued.
func (f *Frontier) Len(ctx context.Context) (int64, error) {
	var out sizeBody
	if _, err := f.call(ctx, "frontier size", http.MethodGet, "/v1/size", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Size, nil
}
