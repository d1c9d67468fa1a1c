package frontier

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/apperr"
)

const (
	urlA = "https://a.example/"
	urlB = "https://b.example/"
	urlC = "https://c.example/"
)

func newTestFrontier(t *testing.T, maxSize int) (*Frontier, Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		Path:          filepath.Join(dir, "frontier.txt"),
		StopwordsPath: filepath.Join(dir, "stopwords.txt"),
		MaxSize:       maxSize,
		PollInterval:  20 * time.Millisecond,
	}
	f, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	return f, cfg
}

func drain(t *testing.T, f *Frontier) []string {
	t.Helper()
	var out []string
	for {
		n, err := f.Len(context.Background())
		require.NoError(t, err)
		if n == 0 {
			return out
		}
		u, err := f.Next(context.Background())
		require.NoError(t, err)
		out = append(out, u)
	}
}

func TestAddIsFIFO(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, _ := newTestFrontier(t, 10)

	require.NoError(t, f.Add(ctx, urlA))
	require.NoError(t, f.Add(ctx, urlB))
	require.NoError(t, f.Add(ctx, urlC))

	assert.Equal(t, []string{urlA, urlB, urlC}, drain(t, f))
}

func TestAddFirstJumpsTheQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, _ := newTestFrontier(t, 10)

	require.NoError(t, f.Add(ctx, urlA))
	require.NoError(t, f.Add(ctx, urlB))
	require.NoError(t, f.AddFirst(ctx, urlC))

	got, err := f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, urlC, got)
}

func TestBareHostsComeBackAsAdded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, _ := newTestFrontier(t, 10)

	require.NoError(t, f.Add(ctx, "https://a"))
	require.NoError(t, f.Add(ctx, "https://b"))
	require.NoError(t, f.AddFirst(ctx, "https://c"))

	assert.Equal(t, []string{"https://c", "https://a", "https://b"}, drain(t, f))
}

func TestAddIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, _ := newTestFrontier(t, 10)

	require.NoError(t, f.Add(ctx, urlA))
	require.NoError(t, f.Add(ctx, urlA))
	require.NoError(t, f.AddFirst(ctx, urlA))

	n, err := f.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBoundEvictsFromBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("add", func(t *testing.T) {
		t.Parallel()
		f, _ := newTestFrontier(t, 2)
		require.NoError(t, f.Add(ctx, urlA))
		require.NoError(t, f.Add(ctx, urlB))
		require.NoError(t, f.Add(ctx, urlC))
		assert.Equal(t, []string{urlA, urlC}, drain(t, f))
	})

	t.Run("add first", func(t *testing.T) {
		t.Parallel()
		f, _ := newTestFrontier(t, 2)
		require.NoError(t, f.Add(ctx, urlA))
		require.NoError(t, f.Add(ctx, urlB))
		require.NoError(t, f.AddFirst(ctx, urlC))
		assert.Equal(t, []string{urlC, urlA}, drain(t, f))
	})
}

func TestRejectsMalformedURL(t *testing.T) {
	t.Parallel()
	f, _ := newTestFrontier(t, 10)

	err := f.Add(context.Background(), "not a url")
	require.ErrorIs(t, err, apperr.ErrValidation)
	err = f.AddFirst(context.Background(), "mailto:someone@example.com")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, cfg := newTestFrontier(t, 10)

	require.NoError(t, f.Add(ctx, urlA))
	require.NoError(t, f.Add(ctx, urlB))
	_, err := f.Next(ctx)
	require.NoError(t, err)

	reopened, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{urlB}, drain(t, reopened))
}

func TestExternalEditsAreVisible(t *testing.T) {
	t.Parallel()
	f, cfg := newTestFrontier(t, 10)

	require.NoError(t, os.WriteFile(cfg.Path, []byte(urlB+"\n\n"+urlA+"\n"+urlB+"\n"), 0o600))

	assert.Equal(t, []string{urlB, urlA}, drain(t, f))
	data, err := os.ReadFile(cfg.Path)
	require.NoError(t, err)
	assert.Empty(t, string(data))
}

func TestNextWaitsForAdd(t *testing.T) {
	t.Parallel()
	f, _ := newTestFrontier(t, 10)
	f.cfg.PollInterval = time.Hour

	got := make(chan string, 1)
	go func() {
		u, err := f.Next(context.Background())
		if err == nil {
			got <- u
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.Add(context.Background(), urlA))

	select {
	case u := <-got:
		assert.Equal(t, urlA, u)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not wake after Add")
	}
}

func TestNextHonorsDeadline(t *testing.T) {
	t.Parallel()
	f, _ := newTestFrontier(t, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStopwordsGrowMonotonically(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, cfg := newTestFrontier(t, 10)

	require.NoError(t, f.AddStopWords(ctx, []string{"the", "and"}))
	require.NoError(t, f.AddStopWords(ctx, []string{"and", "of", ""}))

	words, err := f.Stopwords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"and", "of", "the"}, words)

	data, err := os.ReadFile(cfg.StopwordsPath)
	require.NoError(t, err)
	assert.Equal(t, "and\nof\nthe\n", string(data))
}

func TestNewRequiresPaths(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	require.ErrorIs(t, err, apperr.ErrConfiguration)
}
