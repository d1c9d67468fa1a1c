package crawler

import (
	"net/http"
	"time"
)

// IndexRequest is one crawled page as written to every replica.
type IndexRequest struct {
	URL     string         `json:"url"`
	Title   string         `json:"title"`
	Snippet string         `json:"snippet"`
	Words   map[string]int `json:"words"`
	Links   []string       `json:"links"`
}

// SearchResult is a document matching every query term.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Connections lists the outbound links recorded for a URL.
type Connections struct {
	URL   string   `json:"url"`
	Links []string `json:"links"`
}

// WordCount pairs a word with a counter (search hits or summed frequency).
type WordCount struct {
	Word  string `json:"word"`
	Count int64  `json:"count"`
}

// Statistics is an immutable snapshot published by the gateway.
type Statistics struct {
	TopSearches   []WordCount        `json:"top_searches"`
	DocCounts     map[string]int64   `json:"doc_counts"`
	AvgResponseMs map[string]float64 `json:"avg_response_ms"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Clone returns a deep copy so callers can never mutate a published snapshot.
func (s Statistics) Clone() Statistics {
	out := Statistics{
		TopSearches:   append([]WordCount(nil), s.TopSearches...),
		DocCounts:     make(map[string]int64, len(s.DocCounts)),
		AvgResponseMs: make(map[string]float64, len(s.AvgResponseMs)),
		UpdatedAt:     s.UpdatedAt,
	}
	for k, v := range s.DocCounts {
		out.DocCounts[k] = v
	}
	for k, v := range s.AvgResponseMs {
		out.AvgResponseMs[k] = v
	}
	return out
}

// FetchRequest describes a single page fetch.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse captures what a fetcher retrieved.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Page is the parsed content of a fetched document.
type Page struct {
	URL     string
	Title   string
	Snippet string
	Text    string
	Links   []string
}
