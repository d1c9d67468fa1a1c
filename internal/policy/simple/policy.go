// Package simple decides which discovered links a crawl worker may enqueue,
// using host allow and deny patterns.
package simple

import (
	"net/url"
	"strings"
)

// Config lists host patterns. "example.com" matches that host exactly,
// "*.example.com" matches only its subdomains and ".example.com" matches the
// domain itself as well as its subdomains.
type Config struct {
	AllowHosts []string
	DenyHosts  []string
}

// Policy is a host scope filter. An empty allow list admits every host not
// denied.
type Policy struct {
	allow *patterns
	deny  *patterns
}

// New creates a new Policy.
func New(cfg Config) *Policy {
	return &Policy{allow: compile(cfg.AllowHosts), deny: compile(cfg.DenyHosts)}
}

// Allow reports whether rawURL is in scope.
func (p *Policy) Allow(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || p.deny.match(host) {
		return false
	}
	return p.allow == nil || p.allow.match(host)
}

type patterns struct {
	exact map[string]struct{}
	// subdomains match strictly below the suffix; domains also match the apex.
	subdomains []string
	domains    []string
}

func compile(raw []string) *patterns {
	p := &patterns{exact: make(map[string]struct{})}
	for _, r := range raw {
		value := strings.TrimSpace(strings.ToLower(r))
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			if suffix := strings.TrimPrefix(value, "*."); suffix != "" {
				p.subdomains = append(p.subdomains, suffix)
			}
		case strings.HasPrefix(value, "."):
			if suffix := strings.TrimPrefix(value, "."); suffix != "" {
				p.domains = append(p.domains, suffix)
			}
		default:
			p.exact[value] = struct{}{}
		}
	}
	if len(p.exact) == 0 && len(p.subdomains) == 0 && len(p.domains) == 0 {
		return nil
	}
	return p
}

func (p *patterns) match(host string) bool {
	if p == nil {
		return false
	}
	if _, ok := p.exact[host]; ok {
		return true
	}
	for _, suffix := range p.domains {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	for _, suffix := range p.subdomains {
		if strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
