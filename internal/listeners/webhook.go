package listeners

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/crawler"
)

// Webhook POSTs each snapshot as JSON to a callback URL. Any transport error
// or non-2xx answer fails the delivery.
type Webhook struct {
	target string
	client *http.Client
}

// NewWebhook validates callbackURL and returns a Webhook.
func NewWebhook(callbackURL string, client *http.Client) (*Webhook, error) {
	const op = "new webhook"
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, apperr.E(apperr.ErrValidation, op, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Validationf(op, "callback_url must be an absolute http(s) URL, got %q", callbackURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{target: u.String(), client: client}, nil
}

// Name implements gateway.Listener.
func (*Webhook) Name() string { return "webhook" }

// Target is the callback URL.
func (w *Webhook) Target() string { return w.target }

// Deliver implements gateway.Listener.
func (w *Webhook) Deliver(ctx context.Context, stats crawler.Statistics) error {
	body, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode statistics: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // drained below
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s answered %d", w.target, resp.StatusCode)
	}
	return nil
}
