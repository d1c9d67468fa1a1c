// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/websearch/internal/crawler"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 10 << 20
)

// ErrUnsupportedContent is returned for responses the parser cannot index.
var ErrUnsupportedContent = errors.New("unsupported content type")

// ErrRobotsDisallowed is returned when robots.txt forbids the URL.
var ErrRobotsDisallowed = colly.ErrRobotsTxtBlocked

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodyBytes truncates larger pages. Zero means 10 MiB.
	MaxBodyBytes int
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	base *colly.Collector
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher. Every fetch runs on a clone of one base collector
// so the pooled transport and robots.txt cache are shared.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	c := colly.NewCollector(
		colly.MaxBodySize(cfg.MaxBodyBytes),
		// The frontier decides what gets visited; revisits are legitimate.
		colly.AllowURLRevisit(),
	)
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	})
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{base: c}
}

// Fetch performs one GET of request.URL. Non-2xx answers, robots disallows,
// non-HTML bodies and transport failures are returned as errors.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	c := f.base.Clone()
	c.Context = ctx
	v := &visit{start: time.Now()}
	c.OnResponse(v.onResponse)
	c.OnError(v.onError)

	err := c.Request(http.MethodGet, request.URL, nil, nil, request.Headers.Clone())
	switch {
	case ctx.Err() != nil:
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, ctx.Err())
	case v.err != nil:
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, v.err)
	case err != nil:
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, err)
	case v.resp == nil:
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: no response", request.URL)
	}
	if !indexable(v.resp.Headers.Get("Content-Type")) {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w %q", request.URL, ErrUnsupportedContent, v.resp.Headers.Get("Content-Type"))
	}
	return *v.resp, nil
}

// visit collects the callbacks of a single request.
type visit struct {
	start time.Time
	resp  *crawler.FetchResponse
	err   error
}

func (v *visit) onResponse(r *colly.Response) {
	headers := http.Header{}
	if r.Headers != nil {
		headers = r.Headers.Clone()
	}
	v.resp = &crawler.FetchResponse{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Headers:    headers,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(v.start),
	}
}

func (v *visit) onError(r *colly.Response, err error) {
	if r != nil && r.StatusCode != 0 {
		v.err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		return
	}
	v.err = err
}

// indexable accepts HTML and plain text. A missing header is given the
// benefit of the doubt.
func indexable(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml", "text/plain":
		return true
	}
	return false
}
