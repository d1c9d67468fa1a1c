package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/JakeFAU/websearch/internal/crawler"
)

// Gateway is the client crawl workers and replicas use to reach the gateway.
type Gateway struct {
	rpc
}

var _ crawler.Coordinator = (*Gateway)(nil)

// NewGateway returns a client for the gateway at address.
func NewGateway(address string, opts ...Option) *Gateway {
	return &Gateway{rpc: newRPC(address, opts...)}
}

type replicasBody struct {
	Replicas []string `json:"replicas"`
}

type addressBody struct {
	Address string `json:"address"`
}

type pauseBody struct {
	Paused bool `json:"paused"`
}

type insertBody struct {
	URL      string `json:"url"`
	Priority bool   `json:"priority"`
}

// Replicas lists the registered replica addresses in registry order.
func (g *Gateway) Replicas(ctx context.Context) ([]string, error) {
	var out replicasBody
	if _, err := g.call(ctx, "gateway replicas", http.MethodGet, "/v1/replicas", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Replicas, nil
}

// RegisterReplica runs the join protocol for address.
func (g *Gateway) RegisterReplica(ctx context.Context, address string) error {
	_, err := g.call(ctx, "gateway register replica", http.MethodPost, "/v1/replicas", nil, addressBody{Address: address}, nil)
	return err
}

// UnregisterReplica drops address from the registry.
func (g *Gateway) UnregisterReplica(ctx context.Context, address string) error {
	_, err := g.call(ctx, "gateway unregister replica", http.MethodDelete, "/v1/replicas",
		url.Values{"address": {address}}, nil, nil)
	return err
}

// Paused reports whether indexing is paused.
func (g *Gateway) Paused(ctx context.Context) (bool, error) {
	var out pauseBody
	if _, err := g.call(ctx, "gateway paused", http.MethodGet, "/v1/pause", nil, nil, &out); err != nil {
		return false, err
	}
	return out.Paused, nil
}

// SetPaused flips the pause flag.
func (g *Gateway) SetPaused(ctx context.Context, paused bool) error {
	_, err := g.call(ctx, "gateway set paused", http.MethodPut, "/v1/pause", nil, pauseBody{Paused: paused}, nil)
	return err
}

// InsertURL seeds the frontier through the gateway.
func (g *Gateway) InsertURL(ctx context.Context, u string, priority bool) error {
	_, err := g.call(ctx, "gateway insert url", http.MethodPost, "/v1/urls", nil, insertBody{URL: u, Priority: priority}, nil)
	return err
}

// Search runs a query through the gateway.
func (g *Gateway) Search(ctx context.Context, words []string) ([]crawler.SearchResult, error) {
	var out resultsBody
	if _, err := g.call(ctx, "gateway search", http.MethodGet, "/v1/search", url.Values{"q": words}, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Statistics returns the last published snapshot.
func (g *Gateway) Statistics(ctx context.Context) (crawler.Statistics, error) {
	var out crawler.Statistics
	if _, err := g.call(ctx, "gateway statistics", http.MethodGet, "/v1/statistics", nil, nil, &out); err != nil {
		return crawler.Statistics{}, err
	}
	return out, nil
}
