// Package cache keeps recent search results in Redis for a short TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/crawler"
)

const keyPrefix = "websearch:search:"

// Config mirrors the redis config section.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
}

type commander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// QueryCache maps a normalized term set to its result list.
type QueryCache struct {
	rdb    commander
	ttl    time.Duration
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// Dial connects to Redis and verifies the connection with a PING.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*QueryCache, func() error, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, cfg.TTL, logger), rdb.Close, nil
}

// New wraps an existing client.
func New(rdb commander, ttl time.Duration, logger *zap.Logger) *QueryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryCache{rdb: rdb, ttl: ttl, logger: logger.Named("cache")}
}

// Get returns cached results for terms. Any Redis failure counts as a miss.
func (c *QueryCache) Get(ctx context.Context, terms []string) ([]crawler.SearchResult, bool) {
	key := Key(terms)
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}
	var results []crawler.SearchResult
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Warn("cache entry unreadable", zap.String("key", key), zap.Error(err))
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return results, true
}

// Set stores results for terms; failures are logged and dropped.
func (c *QueryCache) Set(ctx context.Context, terms []string, results []crawler.SearchResult) {
	key := Key(terms)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Stats returns hit and miss counters.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Key is order-insensitive in terms.
func Key(terms []string) string {
	sorted := append([]string(nil), terms...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}
