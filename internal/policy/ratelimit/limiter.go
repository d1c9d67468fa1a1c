// Package ratelimit keeps crawl workers polite with one token bucket per
// host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/metrics"
)

const unknownHost = "unknown"

// Config holds rate limiter configuration.
type Config struct {
	// DefaultRPS applies to every host without an override. Zero or less
	// disables limiting.
	DefaultRPS   float64
	DefaultBurst int
	// PerHost overrides DefaultRPS for specific hosts.
	PerHost map[string]float64
}

// Limiter manages per-host rate limits. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cfg      Config
}

var _ crawler.RateLimiter = (*Limiter)(nil)

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	if cfg.DefaultBurst <= 0 {
		cfg.DefaultBurst = 1
	}
	overrides := make(map[string]float64, len(cfg.PerHost))
	for host, rps := range cfg.PerHost {
		overrides[strings.ToLower(host)] = rps
	}
	cfg.PerHost = overrides
	return &Limiter{limiters: make(map[string]*rate.Limiter), cfg: cfg}
}

// Wait blocks until rawURL's host may be fetched or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	limiter := l.limiterFor(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Hosts is the number of hosts with a bucket.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	rps, ok := l.cfg.PerHost[host]
	if !ok {
		rps = l.cfg.DefaultRPS
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, l.cfg.DefaultBurst)
	l.limiters[host] = limiter
	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return unknownHost
	}
	return strings.ToLower(u.Hostname())
}
