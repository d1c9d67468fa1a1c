// Package index implements an index replica's durable store: the inverted
// word index, document metadata and the link graph, kept in SQLite.
//
// Writes (AddToIndex, UpdateTopWords, Restore) serialize on one mutex and run
// in a single transaction each. Reads are not guarded.
package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/crawler"
)

const topSearchLimit = 10

// frequentWordShare is the fraction of the vocabulary FrequentWords returns.
const frequentWordShare = 0.05

// Index is one replica's store.
type Index struct {
	mu     sync.Mutex
	db     *sqlx.DB
	path   string
	logger *zap.Logger
}

var _ crawler.Index = (*Index)(nil)

// Open opens or creates the store at path (InmemPath for a throwaway store)
// and brings its schema up to date.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil, apperr.E(apperr.ErrConfiguration, "open index", fmt.Errorf("replica.path is required"))
	}
	db, err := openDB(path, true)
	if err != nil {
		return nil, apperr.E(apperr.ErrStorage, "open index", err)
	}
	if err := migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, apperr.E(apperr.ErrStorage, "migrate index", err)
	}
	logger.Info("index opened", zap.String("path", path))
	return &Index{db: db, path: path, logger: logger}, nil
}

// Close releases the database handle.
func (ix *Index) Close() error {
	if err := ix.db.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (ix *Index) Ping(ctx context.Context) error {
	return classify("ping index", ix.db.PingContext(ctx))
}

// AddToIndex records one crawled page: each word joins the vocabulary, the
// document row is created if missing, and one word-url row per word plus one
// link row per outbound link are appended. Everything commits or nothing does.
//
// A new document starts with ranking 0; every appended link bumps the ranking
// of its target if that document is already indexed.
func (ix *Index) AddToIndex(ctx context.Context, req crawler.IndexRequest) error {
	const op = "add to index"
	if req.URL == "" {
		return apperr.Validationf(op, "url is required")
	}
	words := sortedKeys(req.Words)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, w := range words {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO words (word, hits) VALUES (?, 0)`, w); err != nil {
			return classify(op, fmt.Errorf("insert word %q: %w", w, err))
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO documents (url, ranking, title, snippet)
		VALUES (?, 0, ?, ?)`,
		req.URL, req.Title, req.Snippet,
	); err != nil {
		return classify(op, fmt.Errorf("insert document: %w", err))
	}
	for _, w := range words {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO word_urls (word, url, frequency) VALUES (?, ?, ?)`,
			w, req.URL, req.Words[w],
		); err != nil {
			return classify(op, fmt.Errorf("insert word_url %q: %w", w, err))
		}
	}
	for _, link := range req.Links {
		if _, err := tx.ExecContext(ctx, `INSERT INTO links (from_url, to_url) VALUES (?, ?)`, req.URL, link); err != nil {
			return classify(op, fmt.Errorf("insert link: %w", err))
		}
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET ranking = ranking + 1 WHERE url = ?`, link); err != nil {
			return classify(op, fmt.Errorf("rank link target: %w", err))
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}

type searchRow struct {
	URL     string `db:"url"`
	Title   string `db:"title"`
	Snippet string `db:"snippet"`
}

// Search returns documents containing every distinct query word, ordered by
// ranking, then by matched row count, then by URL.
func (ix *Index) Search(ctx context.Context, words []string) ([]crawler.SearchResult, error) {
	const op = "search"
	terms := distinct(words)
	if len(terms) == 0 {
		return []crawler.SearchResult{}, nil
	}
	query, args, err := sqlx.In(`
		SELECT d.url AS url, d.title AS title, d.snippet AS snippet
		FROM word_urls wu
		JOIN documents d ON d.url = wu.url
		WHERE wu.word IN (?)
		GROUP BY d.url, d.title, d.snippet, d.ranking
		HAVING COUNT(DISTINCT wu.word) = ?
		ORDER BY d.ranking DESC, COUNT(*) DESC, d.url ASC`,
		terms, len(terms),
	)
	if err != nil {
		return nil, apperr.E(apperr.ErrValidation, op, err)
	}
	var rows []searchRow
	if err := ix.db.SelectContext(ctx, &rows, ix.db.Rebind(query), args...); err != nil {
		return nil, classify(op, err)
	}
	out := make([]crawler.SearchResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, crawler.SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return out, nil
}

// Connections returns the distinct outbound links recorded for url.
func (ix *Index) Connections(ctx context.Context, url string) (crawler.Connections, error) {
	links := []string{}
	if err := ix.db.SelectContext(ctx, &links,
		`SELECT DISTINCT to_url FROM links WHERE from_url = ? ORDER BY to_url`, url,
	); err != nil {
		return crawler.Connections{}, classify("connections", err)
	}
	return crawler.Connections{URL: url, Links: links}, nil
}

// ContainsURL reports whether url has a document row.
func (ix *Index) ContainsURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	if err := ix.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM documents WHERE url = ?)`, url,
	); err != nil {
		return false, classify("contains url", err)
	}
	return exists, nil
}

// UpdateTopWords bumps the hit counter of each known word once. Unknown
// words are ignored.
func (ix *Index) UpdateTopWords(ctx context.Context, words []string) error {
	const op = "update top words"
	terms := distinct(words)
	if len(terms) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	for _, w := range terms {
		if _, err := tx.ExecContext(ctx, `UPDATE words SET hits = hits + 1 WHERE word = ?`, w); err != nil {
			return classify(op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}

type wordCountRow struct {
	Word  string `db:"word"`
	Count int64  `db:"count"`
}

// TopSearches returns up to ten words with the highest hit counters.
func (ix *Index) TopSearches(ctx context.Context) ([]crawler.WordCount, error) {
	var rows []wordCountRow
	if err := ix.db.SelectContext(ctx, &rows, `
		SELECT word, hits AS count FROM words
		WHERE hits > 0
		ORDER BY hits DESC, word ASC
		LIMIT ?`, topSearchLimit,
	); err != nil {
		return nil, classify("top searches", err)
	}
	out := make([]crawler.WordCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, crawler.WordCount(r))
	}
	return out, nil
}

// FrequentWords returns the top five percent of the vocabulary (rounded up)
// ranked by total frequency across all word-url rows.
func (ix *Index) FrequentWords(ctx context.Context) ([]string, error) {
	const op = "frequent words"
	var vocabulary int64
	if err := ix.db.GetContext(ctx, &vocabulary, `SELECT COUNT(*) FROM words`); err != nil {
		return nil, classify(op, err)
	}
	limit := int64(math.Ceil(float64(vocabulary) * frequentWordShare))
	words := []string{}
	if limit == 0 {
		return words, nil
	}
	if err := ix.db.SelectContext(ctx, &words, `
		SELECT word FROM word_urls
		GROUP BY word
		ORDER BY SUM(frequency) DESC, word ASC
		LIMIT ?`, limit,
	); err != nil {
		return nil, classify(op, err)
	}
	return words, nil
}

// Size is the number of word-url rows.
func (ix *Index) Size(ctx context.Context) (int64, error) {
	var n int64
	if err := ix.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM word_urls`); err != nil {
		return 0, classify("size", err)
	}
	return n, nil
}

// Snapshot writes a complete copy of the store to w as SQLite file bytes.
// It holds the write lock so the copy reflects a single point in time.
func (ix *Index) Snapshot(ctx context.Context, w io.Writer) (int64, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n, err := writeSnapshot(ctx, ix.db, w)
	if err != nil {
		return n, classify("snapshot", err)
	}
	ix.logger.Info("snapshot written", zap.Int64("bytes", n))
	return n, nil
}

// Restore replaces the whole store with the snapshot read from r.
func (ix *Index) Restore(ctx context.Context, r io.Reader) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := readSnapshot(ctx, ix.db, r); err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return err
		}
		return classify("restore", err)
	}
	if err := migrate(ctx, ix.db, ix.logger); err != nil {
		return classify("migrate restored index", err)
	}
	ix.logger.Info("index restored from snapshot")
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func distinct(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
