// Package postgres records published statistics snapshots in Postgres so
// search trends survive gateway restarts.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/websearch/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "statistics_history"

// StatsStoreConfig controls the Postgres connection pool.
type StatsStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// StatsStore appends one row per statistics snapshot.
type StatsStore struct {
	pool  execCloser
	table string
}

// NewStatsStore connects a pool and ensures the history table exists.
func NewStatsStore(ctx context.Context, cfg StatsStoreConfig) (*StatsStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewStatsStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewStatsStoreWithPool wraps an existing pool (pgxmock in tests).
func NewStatsStoreWithPool(pool execCloser, table string) (*StatsStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &StatsStore{pool: pool, table: table}, nil
}

// Close releases the pool.
func (s *StatsStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the history table if it is missing.
func (s *StatsStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	recorded_at TIMESTAMPTZ NOT NULL,
	top_searches JSONB NOT NULL,
	doc_counts JSONB NOT NULL,
	avg_response_ms JSONB NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Record appends stats as one history row.
func (s *StatsStore) Record(ctx context.Context, stats crawler.Statistics) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("stats store is not configured")
	}
	top, err := json.Marshal(nonNilTop(stats.TopSearches))
	if err != nil {
		return fmt.Errorf("marshal top searches: %w", err)
	}
	docs, err := json.Marshal(nonNilMap(stats.DocCounts))
	if err != nil {
		return fmt.Errorf("marshal doc counts: %w", err)
	}
	latency, err := json.Marshal(nonNilMap(stats.AvgResponseMs))
	if err != nil {
		return fmt.Errorf("marshal response times: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (recorded_at, top_searches, doc_counts, avg_response_ms)
VALUES ($1, $2, $3, $4)`, s.table)
	if _, err := s.pool.Exec(ctx, query, stats.UpdatedAt, top, docs, latency); err != nil {
		return fmt.Errorf("insert statistics: %w", err)
	}
	return nil
}

func nonNilTop(in []crawler.WordCount) []crawler.WordCount {
	if in == nil {
		return []crawler.WordCount{}
	}
	return in
}

func nonNilMap[V any](in map[string]V) map[string]V {
	if in == nil {
		return map[string]V{}
	}
	return in
}
