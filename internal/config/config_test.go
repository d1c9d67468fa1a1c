package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websearch/internal/apperr"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Frontier.Port)
	assert.Equal(t, 8082, cfg.Replica.Port)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, "random", cfg.Gateway.Policy)
	assert.Equal(t, 10*time.Second, cfg.Crawler.ReplicaTimeout)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "http://localhost:8082", cfg.ReplicaAdvertise())
	assert.Equal(t, ":8080", cfg.Listen(cfg.Gateway.Port))
	assert.Empty(t, cfg.APIKey())

	for _, role := range []Role{RoleFrontier, RoleReplica, RoleGateway, RoleCrawler} {
		assert.NoError(t, cfg.ValidateFor(role), role)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  host: 127.0.0.1
auth:
  enabled: true
  api_key: secret
frontier:
  max_size: 5
replica:
  port: 9100
  gateway: gw.internal:8080
gateway:
  policy: round_robin
  replicas: ["http://r1:8082", "http://r2:8082"]
  call_timeout: 2s
crawler:
  workers: 6
  seeds: ["https://example.com"]
  deny_hosts: ["*.ads.example"]
ratelimit:
  default_rps: 0.5
  hosts:
    - host: example.com
      rps: 2
headless:
  enabled: true
  settle_delay: 250ms
redis:
  addr: localhost:6379
  ttl: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.APIKey())
	assert.Equal(t, 5, cfg.Frontier.MaxSize)
	assert.Equal(t, "http://127.0.0.1:9100", cfg.ReplicaAdvertise())
	assert.Equal(t, "127.0.0.1:9100", cfg.Listen(cfg.Replica.Port))
	assert.Equal(t, []string{"http://r1:8082", "http://r2:8082"}, cfg.Gateway.Replicas)
	assert.Equal(t, 2*time.Second, cfg.Gateway.CallTimeout)
	assert.Equal(t, 6, cfg.Crawler.Workers)
	assert.Equal(t, []string{"https://example.com"}, cfg.Crawler.Seeds)
	assert.Equal(t, []string{"*.ads.example"}, cfg.Crawler.DenyHosts)
	assert.InDelta(t, 0.5, cfg.RateLimit.DefaultRPS, 1e-9)
	assert.InDelta(t, 2.0, cfg.RateLimit.PerHost()["example.com"], 1e-9)
	assert.Equal(t, 250*time.Millisecond, cfg.Headless.SettleDelay)
	assert.Equal(t, time.Minute, cfg.Redis.TTL)
	assert.NoError(t, cfg.ValidateFor(RoleGateway))
	assert.NoError(t, cfg.ValidateFor(RoleReplica))
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WEBSEARCH_GATEWAY_PORT", "9999")
	t.Setenv("WEBSEARCH_CRAWLER_WORKERS", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, 2, cfg.Crawler.Workers)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConfiguration))
}

func TestValidateFor(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	cases := []struct {
		name   string
		role   Role
		mutate func(*Config)
		want   string
	}{
		{"auth without key", RoleGateway, func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"unknown storage", RoleReplica, func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"gcs without bucket", RoleReplica, func(c *Config) { c.Storage.Backend = "gcs" }, "storage.bucket"},
		{"frontier without path", RoleFrontier, func(c *Config) { c.Frontier.Path = "" }, "frontier.path"},
		{"frontier port", RoleFrontier, func(c *Config) { c.Frontier.Port = 70000 }, "frontier.port"},
		{"replica bad gateway", RoleReplica, func(c *Config) { c.Replica.Gateway = "ftp://gw" }, "replica.gateway"},
		{"gateway policy", RoleGateway, func(c *Config) { c.Gateway.Policy = "weighted" }, "gateway.policy"},
		{"history without dsn", RoleGateway, func(c *Config) { c.Gateway.History = true }, "db.dsn"},
		{"crawler workers", RoleCrawler, func(c *Config) { c.Crawler.Workers = 0 }, "crawler.workers"},
		{"crawler frontier", RoleCrawler, func(c *Config) { c.Crawler.Frontier = "" }, "crawler.frontier"},
		{"headless parallel", RoleCrawler, func(c *Config) {
			c.Headless.Enabled = true
			c.Headless.MaxParallel = 0
		}, "headless.max_parallel"},
		{"unknown role", Role("indexer"), func(*Config) {}, "unknown role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			err := cfg.ValidateFor(tc.role)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrConfiguration))
			assert.True(t, strings.Contains(err.Error(), tc.want), err.Error())
		})
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Crawler.Workers = 0
	cfg.Crawler.Gateway = ""
	err = cfg.ValidateFor(RoleCrawler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawler.workers")
	assert.Contains(t, err.Error(), "crawler.gateway")
}
