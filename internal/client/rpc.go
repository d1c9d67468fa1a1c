// Package client holds the typed HTTP clients each process uses to reach the
// frontier, index replicas and the gateway. Transport failures surface as
// apperr.ErrConnectivity; non-2xx answers are mapped with apperr.FromStatus.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/JakeFAU/websearch/internal/apperr"
)

// APIKeyHeader carries the optional static key checked by the servers.
const APIKeyHeader = "X-API-Key"

// Option tweaks a client.
type Option func(*rpc)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *rpc) {
		if hc != nil {
			r.http = hc
		}
	}
}

// WithAPIKey sends key on every request.
func WithAPIKey(key string) Option {
	return func(r *rpc) { r.apiKey = key }
}

type rpc struct {
	baseURL string
	http    *http.Client
	apiKey  string
}

func newRPC(address string, opts ...Option) rpc {
	r := rpc{baseURL: BaseURL(address), http: &http.Client{}}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// BaseURL turns "host:port" into "http://host:port" and trims a trailing slash.
func BaseURL(address string) string {
	address = strings.TrimRight(strings.TrimSpace(address), "/")
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return address
}

type errorBody struct {
	Error string `json:"error"`
}

// call sends a JSON request and decodes a JSON answer into out (when non-nil).
// It reports the status code so callers can special-case 204.
func (r rpc) call(ctx context.Context, op, method, path string, query url.Values, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, apperr.E(apperr.ErrValidation, op, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(buf)
	}
	resp, err := r.send(ctx, op, method, path, query, "application/json", body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck // body fully consumed below

	if resp.StatusCode == http.StatusNoContent || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, apperr.E(apperr.ErrConnectivity, op, fmt.Errorf("decode response: %w", err))
	}
	return resp.StatusCode, nil
}

// send issues the request and returns the response for any 2xx status. Any
// other status is drained and turned into an error.
func (r rpc) send(ctx context.Context, op, method, path string, query url.Values, contentType string, body io.Reader) (*http.Response, error) {
	target := r.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, apperr.E(apperr.ErrValidation, op, fmt.Errorf("build request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set(APIKeyHeader, r.apiKey)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, apperr.E(apperr.ErrConnectivity, op, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close() //nolint:errcheck // error path
	var eb errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if jsonErr := json.Unmarshal(raw, &eb); jsonErr != nil || eb.Error == "" {
		eb.Error = strings.TrimSpace(string(raw))
	}
	return nil, apperr.FromStatus(op, resp.StatusCode, eb.Error)
}
