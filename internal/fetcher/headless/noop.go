package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/websearch/internal/crawler"
)

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("headless fetching is disabled")

// Noop stands in for the headless fetcher when headless.enabled is false.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrDisabled.
func (Noop) Fetch(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
	return crawler.FetchResponse{}, ErrDisabled
}
