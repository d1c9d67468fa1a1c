package crawler

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/websearch/internal/apperr"
)

// NormalizeURL validates an absolute http(s) URL and puts it in canonical
// form: lowercase scheme and host, no default port, no fragment, sorted query.
// The path is kept as given, so "https://a" and "https://a/" stay distinct.
// Frontier dedup is exact-string, so every URL entering the system goes
// through here first.
func NormalizeURL(rawURL string) (string, error) {
	const op = "normalize url"
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", apperr.Validationf(op, "url is empty")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", apperr.E(apperr.ErrValidation, op, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", apperr.Validationf(op, "unsupported scheme %q in %q", u.Scheme, trimmed)
	}
	if u.Hostname() == "" {
		return "", apperr.Validationf(op, "missing host in %q", trimmed)
	}
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	return u.String(), nil
}

// Hostname returns the lowercase host of a URL, or "unknown".
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
