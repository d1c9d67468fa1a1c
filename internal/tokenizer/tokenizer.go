// Package tokenizer turns page text into word frequencies. It lower-cases
// input, strips diacritics and punctuation, and drops stopwords. The stopword
// filter can be swapped at runtime and is shared by every crawl worker.
package tokenizer

import (
	"sort"
	"strings"
	"sync/atomic"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const minTermLength = 2

// Tokenizer splits text into terms and filters them against a stopword set.
type Tokenizer struct {
	stop atomic.Pointer[map[string]struct{}]
}

// New returns a Tokenizer seeded with the given stopwords.
func New(stopwords []string) *Tokenizer {
	t := &Tokenizer{}
	t.SetStopwords(stopwords)
	return t
}

// SetStopwords atomically replaces the stopword filter.
func (t *Tokenizer) SetStopwords(words []string) {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		for _, term := range Terms(w) {
			set[term] = struct{}{}
		}
	}
	t.stop.Store(&set)
}

// Stopwords returns the current filter, sorted.
func (t *Tokenizer) Stopwords() []string {
	set := *t.stop.Load()
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// IsStopword reports whether term is filtered.
func (t *Tokenizer) IsStopword(term string) bool {
	_, ok := (*t.stop.Load())[term]
	return ok
}

// Frequencies counts each non-stopword term in text.
func (t *Tokenizer) Frequencies(text string) map[string]int {
	set := *t.stop.Load()
	freq := make(map[string]int)
	for _, term := range Terms(text) {
		if _, skip := set[term]; skip {
			continue
		}
		freq[term]++
	}
	return freq
}

// Terms normalizes text and splits it on anything that is not a letter or
// digit. Terms shorter than two runes are dropped. No stopword filtering is
// applied, which makes it suitable for query words too.
func Terms(text string) []string {
	folded := strings.ToLower(StripDiacritics(text))
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) < minTermLength {
			continue
		}
		out = append(out, w)
	}
	return out
}

// StripDiacritics removes combining marks, so "café" becomes "cafe".
func StripDiacritics(text string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(chain, text)
	if err != nil {
		return text
	}
	return out
}
