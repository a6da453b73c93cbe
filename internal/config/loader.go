package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
// CLI flags are not read here; cmd/crawlcore applies them afterwards.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix("CRAWLCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("crawlcore")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".crawlcore"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.mode", cfg.Engine.Mode)
	v.SetDefault("engine.num_fetchers", cfg.Engine.NumFetchers)
	v.SetDefault("engine.num_parsers", cfg.Engine.NumParsers)
	v.SetDefault("engine.max_depth", cfg.Engine.MaxDepth)
	v.SetDefault("engine.max_queue_size", cfg.Engine.MaxQueueSize)
	v.SetDefault("engine.max_per_worker", cfg.Engine.MaxPerWorker)
	v.SetDefault("engine.parse_queue_size", cfg.Engine.ParseQueueSize)
	v.SetDefault("engine.max_runtime_minutes", cfg.Engine.MaxRuntimeMinutes)
	v.SetDefault("engine.state_dir", cfg.Engine.StateDir)
	v.SetDefault("engine.monitor_interval", cfg.Engine.MonitorInterval)
	v.SetDefault("engine.seeds_path", cfg.Engine.SeedsPath)
	v.SetDefault("engine.feeds_path", cfg.Engine.FeedsPath)
	v.SetDefault("engine.domain_configs_path", cfg.Engine.DomainConfigsPath)

	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.connect_timeout", cfg.Fetcher.ConnectTimeout)
	v.SetDefault("fetcher.total_timeout", cfg.Fetcher.TotalTimeout)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)
	v.SetDefault("fetcher.consecutive_timeout_threshold", cfg.Fetcher.ConsecutiveTimeoutThreshold)

	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.batch_size", cfg.Storage.BatchSize)
	v.SetDefault("storage.flush_period", cfg.Storage.FlushPeriod)
	v.SetDefault("storage.mongo.enabled", cfg.Storage.Mongo.Enabled)

	v.SetDefault("rate_limit.base_gap", cfg.RateLimit.BaseGap)
	v.SetDefault("rate_limit.per_failure_gap", cfg.RateLimit.PerFailureGap)
	v.SetDefault("rate_limit.max_adaptive_gap", cfg.RateLimit.MaxAdaptiveGap)

	v.SetDefault("robots.respect", cfg.Robots.Respect)
	v.SetDefault("robots.ttl", cfg.Robots.TTL)

	v.SetDefault("blacklist.cooldown", cfg.Blacklist.Cooldown)
	v.SetDefault("blacklist.sweep_interval", cfg.Blacklist.SweepInterval)

	v.SetDefault("scheduling.max_backoff_multiplier", cfg.Scheduling.MaxBackoffMultiplier)
	v.SetDefault("scheduling.min_backoff_minutes", cfg.Scheduling.MinBackoffMinutes)
	v.SetDefault("scheduling.max_backoff_minutes", cfg.Scheduling.MaxBackoffMinutes)
	v.SetDefault("scheduling.priority_decay_window", cfg.Scheduling.PriorityDecayWindow)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)
}

// Seed is one entry of seeds.json: a starting URL and its crawl depth.
type Seed struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// LoadSeeds reads a seeds.json file (a JSON array of Seed, or of plain
// URL strings defaulting to depth 0).
func LoadSeeds(path string) ([]Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read seeds: %w", err)
	}

	var seeds []Seed
	if err := json.Unmarshal(data, &seeds); err == nil {
		return seeds, nil
	}

	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("parse seeds: %w", err)
	}
	seeds = make([]Seed, len(urls))
	for i, u := range urls {
		seeds[i] = Seed{URL: u, Depth: 0}
	}
	return seeds, nil
}

// DomainOverride is one entry of domain_configs.json: per-host
// scheduling/priority overrides consulted by the Scheduling Policy
// and the Frontier's priority boost.
type DomainOverride struct {
	Host                string   `json:"host"`
	Enabled             bool     `json:"enabled"`
	CrawlFrequencyLimit float64  `json:"crawl_frequency_limit"`
	LanguageWhitelist   []string `json:"language_whitelist"`
	PriorityMultiplier  float64  `json:"priority_multiplier"`
}

// LoadDomainConfigs reads domain_configs.json, keyed by host.
func LoadDomainConfigs(path string) (map[string]DomainOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read domain configs: %w", err)
	}

	var entries []DomainOverride
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse domain configs: %w", err)
	}

	out := make(map[string]DomainOverride, len(entries))
	for _, e := range entries {
		out[e.Host] = e
	}
	return out, nil
}

// LoadBlacklist reads blacklist.txt: one host per line, blank lines
// and #-comments ignored.
func LoadBlacklist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read blacklist: %w", err)
	}
	defer f.Close()

	var hosts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hosts = append(hosts, line)
	}
	return hosts, scanner.Err()
}
