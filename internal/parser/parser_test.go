package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!doctype html>
<html><head>
  <title>  Go   Concurrency </title>
  <meta name="description" content="Channels and goroutines explained.">
  <style>body { color: red }</style>
</head><body>
  <h1>Heading</h1>
  <p>Goroutines are cheap.</p>
  <script>var hidden = "not text";</script>
  <a href="/patterns#select">Patterns</a>
  <a href="/patterns">Patterns again</a>
  <a href="https://Other.Example:443/x">Other</a>
  <a href="mailto:me@example.com">Mail</a>
  <a href="javascript:void(0)">JS</a>
  <a href="https://example.com/post">Self</a>
  <a href="/ads" rel="nofollow sponsored">Ad</a>
</body></html>`

func TestParseArticle(t *testing.T) {
	t.Parallel()

	page, err := Parse("https://example.com/post", []byte(articleHTML))
	require.NoError(t, err)

	assert.Equal(t, "Go Concurrency", page.Title)
	assert.Equal(t, "Channels and goroutines explained.", page.Snippet)
	assert.Contains(t, page.Text, "Goroutines are cheap.")
	assert.NotContains(t, page.Text, "hidden")
	assert.NotContains(t, page.Text, "color")
	assert.Equal(t, []string{"https://example.com/patterns", "https://other.example/x"}, page.Links)
}

func TestParseFallbacks(t *testing.T) {
	t.Parallel()

	body := `<html><body><h1>Only Heading</h1>
<p>` + strings.Repeat("lorem ipsum ", 40) + `</p></body></html>`
	page, err := Parse("https://example.com/", []byte(body))
	require.NoError(t, err)

	assert.Equal(t, "Only Heading", page.Title)
	assert.True(t, strings.HasPrefix(page.Snippet, "Only Heading lorem ipsum"))
	assert.True(t, strings.HasSuffix(page.Snippet, "…"))
	assert.LessOrEqual(t, len([]rune(page.Snippet)), MaxSnippetRunes+1)
	assert.Empty(t, page.Links)
}

func TestParseBaseHref(t *testing.T) {
	t.Parallel()

	body := `<html><head><base href="https://cdn.example.org/docs/"></head><body><a href="intro">Intro</a></body></html>`
	page, err := Parse("https://example.com/", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example.org/docs/intro"}, page.Links)
}

func TestParseBadURL(t *testing.T) {
	t.Parallel()

	_, err := Parse("://bad", []byte("<html></html>"))
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "hello big…", truncate("hello big world", 12))
	assert.Equal(t, "abcdefghij…", truncate("abcdefghijklmnop", 10))
}
