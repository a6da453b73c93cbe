package config

import "time"

// Version is set at build time via ldflags.
var Version = "dev"

// CrawlerMode selects startup queue-restore behavior.
type CrawlerMode string

const (
	ModeRegular CrawlerMode = "regular"
	ModeFresh   CrawlerMode = "fresh"
)

// Config is the root configuration for crawlcore.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine"     yaml:"engine"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"    yaml:"fetcher"`
	Storage    StorageConfig    `mapstructure:"storage"    yaml:"storage"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" yaml:"rate_limit"`
	Robots     RobotsConfig     `mapstructure:"robots"     yaml:"robots"`
	Blacklist  BlacklistConfig  `mapstructure:"blacklist"  yaml:"blacklist"`
	Scheduling SchedulingConfig `mapstructure:"scheduling" yaml:"scheduling"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
}

// EngineConfig controls the core crawl engine's shape and lifecycle.
type EngineConfig struct {
	Mode              CrawlerMode   `mapstructure:"mode"                yaml:"mode"`
	NumFetchers       int           `mapstructure:"num_fetchers"        yaml:"num_fetchers"`
	NumParsers        int           `mapstructure:"num_parsers"         yaml:"num_parsers"`
	MaxDepth          int           `mapstructure:"max_depth"           yaml:"max_depth"`
	MaxQueueSize      int           `mapstructure:"max_queue_size"      yaml:"max_queue_size"`
	MaxPerWorker      int           `mapstructure:"max_per_worker"      yaml:"max_per_worker"`
	ParseQueueSize    int           `mapstructure:"parse_queue_size"    yaml:"parse_queue_size"`
	MaxRuntimeMinutes int           `mapstructure:"max_runtime_minutes" yaml:"max_runtime_minutes"`
	StateDir          string        `mapstructure:"state_dir"           yaml:"state_dir"`
	MonitorInterval   time.Duration `mapstructure:"monitor_interval"    yaml:"monitor_interval"`
	SeedsPath         string        `mapstructure:"seeds_path"          yaml:"seeds_path"`
	FeedsPath         string        `mapstructure:"feeds_path"          yaml:"feeds_path"`
	DomainConfigsPath string        `mapstructure:"domain_configs_path" yaml:"domain_configs_path"`
}

// FetcherConfig controls the HTTP transport.
type FetcherConfig struct {
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"   yaml:"connect_timeout"`
	TotalTimeout    time.Duration `mapstructure:"total_timeout"     yaml:"total_timeout"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`

	ConsecutiveTimeoutThreshold int `mapstructure:"consecutive_timeout_threshold" yaml:"consecutive_timeout_threshold"`
}

// StorageConfig controls output/storage.
type StorageConfig struct {
	OutputPath  string        `mapstructure:"output_path"   yaml:"output_path"`
	BatchSize   int           `mapstructure:"batch_size"    yaml:"batch_size"`
	FlushPeriod time.Duration `mapstructure:"flush_period"  yaml:"flush_period"`
	Mongo       MongoConfig   `mapstructure:"mongo"         yaml:"mongo"`
}

// MongoConfig controls the optional MongoDB mirror backend.
type MongoConfig struct {
	Enabled    bool   `mapstructure:"enabled"    yaml:"enabled"`
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// RateLimitConfig holds the Rate Limiter's gap settings. The Rate
// Limiter does not read them: internal/ratelimit uses fixed constants
// equal to these defaults (2ms base, 5ms per failure, 20ms cap).
type RateLimitConfig struct {
	BaseGap        time.Duration `mapstructure:"base_gap"         yaml:"base_gap"`
	PerFailureGap  time.Duration `mapstructure:"per_failure_gap"  yaml:"per_failure_gap"`
	MaxAdaptiveGap time.Duration `mapstructure:"max_adaptive_gap" yaml:"max_adaptive_gap"`
}

// RobotsConfig controls the Robots Cache. Only Respect is applied; the
// cache uses a fixed 30-day TTL and does not read TTL.
type RobotsConfig struct {
	Respect bool          `mapstructure:"respect" yaml:"respect"`
	TTL     time.Duration `mapstructure:"ttl"     yaml:"ttl"`
}

// BlacklistConfig controls the Host Blacklist.
type BlacklistConfig struct {
	PermanentHosts []string      `mapstructure:"permanent_hosts" yaml:"permanent_hosts"`
	Cooldown       time.Duration `mapstructure:"cooldown"        yaml:"cooldown"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"  yaml:"sweep_interval"`
}

// SchedulingConfig controls the engine's rescan and spill-drain loops.
// The backoff and priority-decay fields are not read: internal/metadata
// uses fixed constants equal to these defaults.
type SchedulingConfig struct {
	MaxBackoffMultiplier int           `mapstructure:"max_backoff_multiplier" yaml:"max_backoff_multiplier"`
	MinBackoffMinutes    float64       `mapstructure:"min_backoff_minutes"    yaml:"min_backoff_minutes"`
	MaxBackoffMinutes    float64       `mapstructure:"max_backoff_minutes"    yaml:"max_backoff_minutes"`
	PriorityDecayWindow  time.Duration `mapstructure:"priority_decay_window"  yaml:"priority_decay_window"`

	// RescanInterval controls how often the engine scans the Metadata
	// Store for records that have come due and re-admits them to the
	// Frontier. Also fires once immediately at startup, so a resumed
	// REGULAR-mode crawl re-seeds the Frontier from durable metadata
	// rather than relying solely on seeds_path.
	RescanInterval  time.Duration `mapstructure:"rescan_interval"   yaml:"rescan_interval"`
	RescanBatchSize int           `mapstructure:"rescan_batch_size" yaml:"rescan_batch_size"`

	// SpillDrainInterval controls how often the engine tries to promote
	// Spill Queue entries back into the Frontier once space frees up.
	SpillDrainInterval  time.Duration `mapstructure:"spill_drain_interval"   yaml:"spill_drain_interval"`
	SpillDrainBatchSize int           `mapstructure:"spill_drain_batch_size" yaml:"spill_drain_batch_size"`
}

// LoggingConfig holds logging settings. cmd/crawlcore does not read
// them: it always logs as text to stderr, at debug level with -v and
// info level otherwise.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Mode:              ModeRegular,
			NumFetchers:       16,
			NumParsers:        8,
			MaxDepth:          10,
			MaxQueueSize:      500_000,
			MaxPerWorker:      256,
			ParseQueueSize:    1024,
			MaxRuntimeMinutes: 0,
			StateDir:          "./state",
			MonitorInterval:   5 * time.Second,
			SeedsPath:         "seeds.json",
			FeedsPath:         "feeds.json",
			DomainConfigsPath: "domain_configs.json",
		},
		Fetcher: FetcherConfig{
			FollowRedirects: true,
			MaxRedirects:    5,
			MaxBodySize:     5 * 1024 * 1024,
			ConnectTimeout:  5 * time.Second,
			TotalTimeout:    10 * time.Second,
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    200,
			UserAgents: []string{
				"crawlcore/" + Version,
			},
			ConsecutiveTimeoutThreshold: 3,
		},
		Storage: StorageConfig{
			OutputPath:  "./output",
			BatchSize:   100,
			FlushPeriod: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			BaseGap:        2 * time.Millisecond,
			PerFailureGap:  5 * time.Millisecond,
			MaxAdaptiveGap: 20 * time.Millisecond,
		},
		Robots: RobotsConfig{
			Respect: true,
			TTL:     30 * 24 * time.Hour,
		},
		Blacklist: BlacklistConfig{
			Cooldown:      30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Scheduling: SchedulingConfig{
			MaxBackoffMultiplier: 8,
			MinBackoffMinutes:    15,
			MaxBackoffMinutes:    24 * 60 * 30,
			PriorityDecayWindow:  24 * time.Hour,
			RescanInterval:       time.Minute,
			RescanBatchSize:      1_000,
			SpillDrainInterval:   30 * time.Second,
			SpillDrainBatchSize:  1_000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
