package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	UpstreamHackerNews = "hackernews"
	UpstreamFeed       = "feed"
)

// Config holds the configuration for the ranking service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Ranking    RankingConfig    `mapstructure:"ranking"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// UpstreamConfig selects and tunes the story source
type UpstreamConfig struct {
	Kind                 string        `mapstructure:"kind"`
	BaseURL              string        `mapstructure:"base_url"`
	FeedURL              string        `mapstructure:"feed_url"`
	MaxStories           int           `mapstructure:"max_stories"`
	BatchSize            int           `mapstructure:"batch_size"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	MaxRetries           int           `mapstructure:"max_retries"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
}

// PolitenessConfig holds robots.txt and pacing settings for upstream hosts
type PolitenessConfig struct {
	EnableRobotsCheck   bool          `mapstructure:"enable_robots_check"`
	RobotsCacheDuration time.Duration `mapstructure:"robots_cache_duration"`
	RequestsPerSecond   float64       `mapstructure:"requests_per_second"`
	Burst               int           `mapstructure:"burst"`
	UserAgent           string        `mapstructure:"user_agent"`
}

// CacheConfig holds token and collection cache bounds
type CacheConfig struct {
	TokenCacheSize  int           `mapstructure:"token_cache_size"`
	TokenEvictBatch int           `mapstructure:"token_evict_batch"`
	CollectionTTL   time.Duration `mapstructure:"collection_ttl"`
}

type RankingConfig struct {
	KeywordLimit         int `mapstructure:"keyword_limit"`
	MatchingKeywordLimit int `mapstructure:"matching_keyword_limit"`
	ExcerptLength        int `mapstructure:"excerpt_length"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"server.addr":             ":8080",
	"server.read_timeout":     10 * time.Second,
	"server.write_timeout":    60 * time.Second,
	"server.request_timeout":  45 * time.Second,
	"server.shutdown_timeout": 15 * time.Second,

	"upstream.kind":                   UpstreamHackerNews,
	"upstream.base_url":               "https://hacker-news.firebaseio.com/v0",
	"upstream.feed_url":               "https://hnrss.org/frontpage",
	"upstream.max_stories":            100,
	"upstream.batch_size":             20,
	"upstream.request_timeout":        10 * time.Second,
	"upstream.max_retries":            3,
	"upstream.retry_initial_interval": 500 * time.Millisecond,

	"politeness.enable_robots_check":   false,
	"politeness.robots_cache_duration": 24 * time.Hour,
	"politeness.requests_per_second":   50.0,
	"politeness.burst":                 20,
	"politeness.user_agent":            "storyrank/1.0",

	"cache.token_cache_size":  100,
	"cache.token_evict_batch": 20,
	"cache.collection_ttl":    5 * time.Minute,

	"ranking.keyword_limit":          20,
	"ranking.matching_keyword_limit": 10,
	"ranking.excerpt_length":         280,

	"log.level":  "info",
	"log.format": "text",
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("STORYRANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the built-in configuration without reading files or
// the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return &cfg
}

// Load reads configuration from defaults, an optional YAML file at path
// and STORYRANK_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Addr != "", "server.addr is required")
	check(c.Server.RequestTimeout > 0, "server.request_timeout must be positive")

	switch c.Upstream.Kind {
	case UpstreamHackerNews:
		check(c.Upstream.BaseURL != "", "upstream.base_url is required for %s", UpstreamHackerNews)
	case UpstreamFeed:
		check(c.Upstream.FeedURL != "", "upstream.feed_url is required for %s", UpstreamFeed)
	default:
		errs = append(errs, fmt.Errorf("upstream.kind %q is not one of %s, %s", c.Upstream.Kind, UpstreamHackerNews, UpstreamFeed))
	}
	check(c.Upstream.MaxStories > 0, "upstream.max_stories must be positive")
	check(c.Upstream.BatchSize > 0, "upstream.batch_size must be positive")
	check(c.Upstream.MaxRetries >= 0, "upstream.max_retries must not be negative")

	check(c.Politeness.RequestsPerSecond > 0, "politeness.requests_per_second must be positive")
	check(c.Politeness.Burst > 0, "politeness.burst must be positive")

	check(c.Cache.TokenCacheSize > 0, "cache.token_cache_size must be positive")
	check(c.Cache.TokenEvictBatch > 0, "cache.token_evict_batch must be positive")
	check(c.Cache.CollectionTTL > 0, "cache.collection_ttl must be positive")

	check(c.Ranking.KeywordLimit != 0, "ranking.keyword_limit must not be zero")

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
