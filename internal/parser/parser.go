// Package parser extracts what the index stores from an HTML document.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/websearch/internal/crawler"
)

// MaxSnippetRunes bounds Page.Snippet.
const MaxSnippetRunes = 200

// Parse reads body as HTML served from pageURL. Links are resolved against
// the document base, normalized, deduplicated and limited to http(s).
func Parse(pageURL string, body []byte) (crawler.Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Page{}, fmt.Errorf("parse html: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	page := crawler.Page{
		URL:   pageURL,
		Title: collapse(doc.Find("title").First().Text()),
		Links: links(doc, base, pageURL),
	}

	doc.Find("script, style, noscript, template, svg").Remove()
	page.Text = collapse(doc.Find("body").Text())
	if page.Text == "" {
		page.Text = collapse(doc.Text())
	}

	description, _ := doc.Find(`meta[name="description"], meta[property="og:description"]`).First().Attr("content")
	page.Snippet = truncate(collapse(description), MaxSnippetRunes)
	if page.Snippet == "" {
		page.Snippet = truncate(page.Text, MaxSnippetRunes)
	}
	if page.Title == "" {
		page.Title = collapse(doc.Find("h1").First().Text())
	}
	return page, nil
}

func links(doc *goquery.Document, base *url.URL, self string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if rel, _ := s.Attr("rel"); strings.Contains(strings.ToLower(rel), "nofollow") {
			return
		}
		href, _ := s.Attr("href")
		ref, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		normalized, err := crawler.NormalizeURL(ref.String())
		if err != nil || normalized == self {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	})
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n runes, preferring a word boundary.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)[:n]
	cut := string(runes)
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}
