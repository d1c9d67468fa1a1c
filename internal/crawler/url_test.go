package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websearch/internal/apperr"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases host", in: "HTTPS://Example.COM/Path", want: "https://example.com/Path"},
		{name: "drops default port", in: "http://example.com:80/a", want: "http://example.com/a"},
		{name: "drops fragment", in: "https://example.com/a#top", want: "https://example.com/a"},
		{name: "sorts query", in: "https://example.com/?b=2&a=1", want: "https://example.com/?a=1&b=2"},
		{name: "keeps empty path", in: "https://example.com", want: "https://example.com"},
		{name: "keeps root path", in: "https://Example.com/", want: "https://example.com/"},
		{name: "trims space", in: "  https://example.com/x  ", want: "https://example.com/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURLRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "/relative/path", "https://"} {
		_, err := NormalizeURL(raw)
		require.ErrorIs(t, err, apperr.ErrValidation, raw)
	}
}

func TestHostname(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", Hostname("https://Example.com:8443/a"))
	require.Equal(t, "unknown", Hostname("::"))
}

func TestStatisticsCloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := Statistics{
		TopSearches: []WordCount{{Word: "go", Count: 2}},
		DocCounts:   map[string]int64{"r1": 3},
	}
	cp := orig.Clone()
	cp.TopSearches[0].Count = 99
	cp.DocCounts["r1"] = 99

	require.Equal(t, int64(2), orig.TopSearches[0].Count)
	require.Equal(t, int64(3), orig.DocCounts["r1"])
}
