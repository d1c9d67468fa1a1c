// Package fetcher composes the plain and headless fetchers a crawl worker
// uses.
package fetcher

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/crawler"
)

// Promoting fetches with a plain HTTP fetcher first and re-fetches through a
// headless browser when the detector says the result is an unrendered shell.
type Promoting struct {
	primary  crawler.Fetcher
	headless crawler.Fetcher
	detector crawler.HeadlessDetector
	logger   *zap.Logger
}

var _ crawler.Fetcher = (*Promoting)(nil)

// NewPromoting wires the fetchers. headless and detector may be nil, in which
// case every fetch is served by primary.
func NewPromoting(primary, headless crawler.Fetcher, detector crawler.HeadlessDetector, logger *zap.Logger) (*Promoting, error) {
	if primary == nil {
		return nil, errors.New("primary fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{primary: primary, headless: headless, detector: detector, logger: logger}, nil
}

// Fetch returns the primary response unless promotion applies. A failed
// headless fetch falls back to the primary response.
func (p *Promoting) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := p.primary.Fetch(ctx, req)
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	if p.headless == nil || p.detector == nil || !p.detector.ShouldPromote(resp) {
		return resp, nil
	}
	rendered, err := p.headless.Fetch(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, ctx.Err()
		}
		p.logger.Warn("headless fetch failed, using plain response",
			zap.String("url", req.URL), zap.Error(err))
		return resp, nil
	}
	p.logger.Debug("page rendered headless", zap.String("url", req.URL),
		zap.Duration("duration", rendered.Duration))
	return rendered, nil
}
