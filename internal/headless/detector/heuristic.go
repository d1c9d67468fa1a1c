// Package detector decides when a plain HTTP fetch returned a script shell
// and the page should be rendered headless before indexing.
package detector

import (
	"bytes"
	"mime"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/websearch/internal/crawler"
)

const defaultMinWords = 30

// mountPoints are the empty root elements client-rendered frameworks fill in.
var mountPoints = []string{"#__next", "#root", "#app", "[data-reactroot]", "[ng-app]", "#__nuxt"}

// Heuristic promotes HTML pages whose visible text is too thin to index.
type Heuristic struct {
	// MinWords is the visible word count under which a page counts as thin.
	MinWords int
}

var _ crawler.HeadlessDetector = (*Heuristic)(nil)

// NewHeuristic creates a detector. minWords <= 0 uses the default.
func NewHeuristic(minWords int) *Heuristic {
	if minWords <= 0 {
		minWords = defaultMinWords
	}
	return &Heuristic{MinWords: minWords}
}

// ShouldPromote reports whether resp looks like an unrendered application
// shell. Only successful HTML responses are considered.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK || resp.UsedHeadless || !isHTML(resp.Headers) {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return false
	}
	scripts := doc.Find("script")
	scriptBytes := 0
	scripts.Each(func(_ int, s *goquery.Selection) {
		scriptBytes += len(s.Text())
	})
	scripts.Remove()
	doc.Find("style, noscript, template").Remove()

	words := len(strings.Fields(doc.Find("body").Text()))
	if words >= h.MinWords {
		return false
	}
	for _, sel := range mountPoints {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	// Thin text with scripts making up most of the payload.
	return scripts.Length() > 0 && scriptBytes*2 >= len(resp.Body)
}

// isHTML treats a missing content type as HTML.
func isHTML(h http.Header) bool {
	ct := h.Get("Content-Type")
	if ct == "" {
		return true
	}
	media, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return media == "text/html" || media == "application/xhtml+xml"
}
