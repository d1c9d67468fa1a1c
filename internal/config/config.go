// Package config loads and validates websearch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/websearch/internal/apperr"
	"github.com/JakeFAU/websearch/internal/storage/local"
)

// EnvPrefix namespaces environment overrides, e.g. WEBSEARCH_GATEWAY_PORT.
const EnvPrefix = "WEBSEARCH"

// Role names a process kind. Validation depends on it.
type Role string

// Process roles.
const (
	RoleFrontier Role = "frontier"
	RoleReplica  Role = "replica"
	RoleGateway  Role = "gateway"
	RoleCrawler  Role = "crawl"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Frontier  FrontierConfig  `mapstructure:"frontier"`
	Replica   ReplicaConfig   `mapstructure:"replica"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// ServerConfig holds settings shared by every HTTP server.
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// FrontierConfig configures the frontier process.
type FrontierConfig struct {
	Port          int           `mapstructure:"port"`
	Path          string        `mapstructure:"path"`
	StopwordsPath string        `mapstructure:"stopwords_path"`
	MaxSize       int           `mapstructure:"max_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

// ReplicaConfig configures an index replica process.
type ReplicaConfig struct {
	Port int    `mapstructure:"port"`
	Path string `mapstructure:"path"`
	// Advertise is the address the gateway and peers use to reach this
	// replica. Defaults to http://<host>:<port>.
	Advertise string `mapstructure:"advertise"`
	// Gateway, when set, is joined on startup and left on shutdown.
	Gateway         string        `mapstructure:"gateway"`
	RegisterTimeout time.Duration `mapstructure:"register_timeout"`
	ArchiveOnExit   bool          `mapstructure:"archive_on_exit"`
}

// GatewayConfig configures the gateway process.
type GatewayConfig struct {
	Port int `mapstructure:"port"`
	// Replicas are probed on startup and on every refresh.
	Replicas        []string      `mapstructure:"replicas"`
	Frontier        string        `mapstructure:"frontier"`
	Policy          string        `mapstructure:"policy"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	ListenerTimeout time.Duration `mapstructure:"listener_timeout"`
	History         bool          `mapstructure:"history"`
	PublishStats    bool          `mapstructure:"publish_stats"`
}

// CrawlerConfig governs the dispatcher and crawl pipeline behavior.
type CrawlerConfig struct {
	Workers        int           `mapstructure:"workers"`
	// MetricsPort serves /metrics and the probes. Zero disables it.
	MetricsPort    int           `mapstructure:"metrics_port"`
	Frontier       string        `mapstructure:"frontier"`
	Gateway        string        `mapstructure:"gateway"`
	Seeds          []string      `mapstructure:"seeds"`
	UserAgent      string        `mapstructure:"user_agent"`
	IgnoreRobots   bool          `mapstructure:"ignore_robots"`
	LeaseWait      time.Duration `mapstructure:"lease_wait"`
	ReplicaTimeout time.Duration `mapstructure:"replica_timeout"`
	LearnInterval  time.Duration `mapstructure:"learn_interval"`
	AllowHosts     []string      `mapstructure:"allow_hosts"`
	DenyHosts      []string      `mapstructure:"deny_hosts"`
	ArchivePages   bool          `mapstructure:"archive_pages"`
	PublishEvents  bool          `mapstructure:"publish_events"`
}

// HTTPConfig configures outbound page fetches.
type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	MinWords          int           `mapstructure:"min_words"`
}

// RateLimitConfig configures per-host politeness.
type RateLimitConfig struct {
	Enabled      bool       `mapstructure:"enabled"`
	DefaultRPS   float64    `mapstructure:"default_rps"`
	DefaultBurst int        `mapstructure:"default_burst"`
	Hosts        []HostRate `mapstructure:"hosts"`
}

// HostRate overrides the default rate for one host. It is a list entry
// rather than a map key because viper splits keys on dots.
type HostRate struct {
	Host string  `mapstructure:"host"`
	RPS  float64 `mapstructure:"rps"`
}

// PerHost returns the overrides keyed by host.
func (c RateLimitConfig) PerHost() map[string]float64 {
	out := make(map[string]float64, len(c.Hosts))
	for _, h := range c.Hosts {
		out[h.Host] = h.RPS
	}
	return out
}

// StorageConfig selects where snapshots and page copies are archived.
type StorageConfig struct {
	Backend string       `mapstructure:"backend"`
	Bucket  string       `mapstructure:"bucket"`
	Prefix  string       `mapstructure:"prefix"`
	Local   local.Config `mapstructure:"local"`
}

// DBConfig controls access to the statistics history database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// RedisConfig configures the gateway search cache. An empty address
// disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Load builds a Config from disk/environment. It does not validate; call
// ValidateFor with the process role.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, apperr.E(apperr.ErrConfiguration, "read config", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, apperr.E(apperr.ErrConfiguration, "unmarshal config", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")

	v.SetDefault("frontier.port", 8081)
	v.SetDefault("frontier.path", "data/frontier.txt")
	v.SetDefault("frontier.stopwords_path", "data/stopwords.txt")
	v.SetDefault("frontier.max_size", 100000)
	v.SetDefault("frontier.poll_interval", time.Second)

	v.SetDefault("replica.port", 8082)
	v.SetDefault("replica.path", "data/index.sqlite")
	v.SetDefault("replica.advertise", "")
	v.SetDefault("replica.gateway", "")
	v.SetDefault("replica.register_timeout", 5*time.Minute)
	v.SetDefault("replica.archive_on_exit", false)

	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.replicas", []string{})
	v.SetDefault("gateway.frontier", "")
	v.SetDefault("gateway.policy", "random")
	v.SetDefault("gateway.call_timeout", 10*time.Second)
	v.SetDefault("gateway.refresh_interval", 30*time.Second)
	v.SetDefault("gateway.listener_timeout", 5*time.Second)
	v.SetDefault("gateway.history", false)
	v.SetDefault("gateway.publish_stats", false)

	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.metrics_port", 9090)
	v.SetDefault("crawler.frontier", "http://localhost:8081")
	v.SetDefault("crawler.gateway", "http://localhost:8080")
	v.SetDefault("crawler.seeds", []string{})
	v.SetDefault("crawler.user_agent", "websearch-bot/0.1")
	v.SetDefault("crawler.ignore_robots", false)
	v.SetDefault("crawler.lease_wait", 30*time.Second)
	v.SetDefault("crawler.replica_timeout", 10*time.Second)
	v.SetDefault("crawler.learn_interval", time.Minute)
	v.SetDefault("crawler.archive_pages", false)
	v.SetDefault("crawler.publish_events", false)

	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("http.max_body_bytes", 10<<20)

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.navigation_timeout", 45*time.Second)
	v.SetDefault("headless.settle_delay", 500*time.Millisecond)
	v.SetDefault("headless.min_words", 30)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.default_rps", 1.0)
	v.SetDefault("ratelimit.default_burst", 1)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "websearch")
	v.SetDefault("storage.local.base_dir", "data/archive")

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "statistics_history")
	v.SetDefault("db.max_conns", 4)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.ttl", 30*time.Second)
}

// Validate enforces the settings every role depends on.
func (c Config) Validate() error {
	var errs []error
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be > 0"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be > 0"))
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		errs = append(errs, errors.New("auth.api_key must be set when auth is enabled"))
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if strings.TrimSpace(c.Storage.Local.BaseDir) == "" {
			errs = append(errs, errors.New("storage.local.base_dir is required for the local backend"))
		}
	case "gcs":
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			errs = append(errs, errors.New("storage.bucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be one of memory, local, gcs", c.Storage.Backend))
	}
	return wrap(errs)
}

// ValidateFor runs Validate plus the checks specific to role.
func (c Config) ValidateFor(role Role) error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch role {
	case RoleFrontier:
		errs = append(errs, port("frontier.port", c.Frontier.Port))
		if c.Frontier.Path == "" {
			errs = append(errs, errors.New("frontier.path is required"))
		}
		if c.Frontier.StopwordsPath == "" {
			errs = append(errs, errors.New("frontier.stopwords_path is required"))
		}
		if c.Frontier.MaxSize <= 0 {
			errs = append(errs, errors.New("frontier.max_size must be > 0"))
		}
	case RoleReplica:
		errs = append(errs, port("replica.port", c.Replica.Port))
		if c.Replica.Path == "" {
			errs = append(errs, errors.New("replica.path is required"))
		}
		if c.Replica.Gateway != "" {
			errs = append(errs, address("replica.gateway", c.Replica.Gateway))
		}
	case RoleGateway:
		errs = append(errs, port("gateway.port", c.Gateway.Port))
		if c.Gateway.Policy != "random" && c.Gateway.Policy != "round_robin" {
			errs = append(errs, fmt.Errorf("gateway.policy %q must be random or round_robin", c.Gateway.Policy))
		}
		if c.Gateway.CallTimeout <= 0 {
			errs = append(errs, errors.New("gateway.call_timeout must be > 0"))
		}
		if c.Gateway.RefreshInterval <= 0 {
			errs = append(errs, errors.New("gateway.refresh_interval must be > 0"))
		}
		if c.Gateway.Frontier != "" {
			errs = append(errs, address("gateway.frontier", c.Gateway.Frontier))
		}
		if c.Gateway.History && c.DB.DSN == "" {
			errs = append(errs, errors.New("db.dsn is required when gateway.history is enabled"))
		}
	case RoleCrawler:
		if c.Crawler.Workers <= 0 {
			errs = append(errs, errors.New("crawler.workers must be > 0"))
		}
		if c.Crawler.MetricsPort != 0 {
			errs = append(errs, port("crawler.metrics_port", c.Crawler.MetricsPort))
		}
		errs = append(errs, address("crawler.frontier", c.Crawler.Frontier), address("crawler.gateway", c.Crawler.Gateway))
		if c.HTTP.Timeout <= 0 {
			errs = append(errs, errors.New("http.timeout must be > 0"))
		}
		if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
			errs = append(errs, errors.New("headless.max_parallel must be > 0 when headless is enabled"))
		}
		if c.RateLimit.Enabled && c.RateLimit.DefaultRPS < 0 {
			errs = append(errs, errors.New("ratelimit.default_rps must be >= 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown role %q", role))
	}
	return wrap(errs)
}

// Listen returns host:port for an HTTP server.
func (c Config) Listen(port int) string {
	return fmt.Sprintf("%s:%d", c.Server.Host, port)
}

// ReplicaAdvertise is replica.advertise or an address derived from the
// listen host and port.
func (c Config) ReplicaAdvertise() string {
	if c.Replica.Advertise != "" {
		return c.Replica.Advertise
	}
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Replica.Port)
}

// APIKey is the key servers require and clients send, or "" when auth is
// disabled.
func (c Config) APIKey() string {
	if !c.Auth.Enabled {
		return ""
	}
	return c.Auth.APIKey
}

func port(key string, p int) error {
	if p <= 0 || p > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", key)
	}
	return nil
}

// address accepts host:port or an absolute http(s) URL.
func address(key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s is required", key)
	}
	if !strings.Contains(value, "://") {
		value = "http://" + value
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s %q is not a valid address", key, value)
	}
	return nil
}

func wrap(errs []error) error {
	if err := errors.Join(errs...); err != nil {
		return apperr.E(apperr.ErrConfiguration, "validate config", err)
	}
	return nil
}
