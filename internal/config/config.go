// Package config loads and validates downloader configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/site-downloader/internal/ratecontrol"
	"github.com/JakeFAU/site-downloader/internal/retry"
	"github.com/JakeFAU/site-downloader/internal/status"
)

// EnvPrefix namespaces environment overrides, e.g. SITEDL_DOWNLOADER_MAX_RETRIES.
const EnvPrefix = "SITEDL"

// Storage backends.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// ValidationError names the offending key.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site        SiteConfig        `mapstructure:"site"`
	Downloader  DownloaderConfig  `mapstructure:"downloader"`
	StatusCodes StatusCodesConfig `mapstructure:"status_codes"`
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Results     ResultsConfig     `mapstructure:"results"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// SiteConfig names the output tree.
type SiteConfig struct {
	Name      string `mapstructure:"name"`
	OutputDir string `mapstructure:"output_dir"`
}

// DownloaderConfig governs request pacing and retries.
type DownloaderConfig struct {
	MaxRetries   int                `mapstructure:"max_retries"`
	Timeout      time.Duration      `mapstructure:"timeout"`
	RequestDelay time.Duration      `mapstructure:"request_delay"`
	UserAgent    string             `mapstructure:"user_agent"`
	Headers      map[string]string  `mapstructure:"headers"`
	MaxBodyBytes int                `mapstructure:"max_body_bytes"`
	MaxRPS       float64            `mapstructure:"max_rps"`
	BaseBackoff  time.Duration      `mapstructure:"base_backoff"`
	MaxBackoff   time.Duration      `mapstructure:"max_backoff"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
}

// RateLimitingConfig bounds the adaptive delay.
type RateLimitingConfig struct {
	Adaptive      bool          `mapstructure:"adaptive"`
	MinDelay      time.Duration `mapstructure:"min_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
}

// MonitoringConfig toggles run-level progress output.
type MonitoringConfig struct {
	ShowProgress bool `mapstructure:"show_progress"`
	LogSpeed     bool `mapstructure:"log_speed"`
	TrackMemory  bool `mapstructure:"track_memory"`
}

// StatusCodesConfig controls status tracking and reporting.
type StatusCodesConfig struct {
	RetryCodes     []int `mapstructure:"retry_codes"`
	LogAll         bool  `mapstructure:"log_all"`
	ShowConsole    bool  `mapstructure:"show_console"`
	GenerateReport bool  `mapstructure:"generate_report"`
}

// CrawlerConfig bounds URL discovery.
type CrawlerConfig struct {
	MaxPages      int           `mapstructure:"max_pages"`
	MaxDepth      int           `mapstructure:"max_depth"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	Delay         time.Duration `mapstructure:"delay"`
	Exclude       []string      `mapstructure:"exclude"`
}

// StorageConfig selects the blob backend for content and metadata.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ResultsConfig enables the Postgres result ledger when DSN is set.
type ResultsConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig enables result events when Topic is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the status server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from a .env file, the environment, and an optional
// config file, in increasing precedence below the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key. AutomaticEnv only reaches keys viper
// already knows, so optional settings get empty defaults too.
func setDefaults(v *viper.Viper) {
	v.SetDefault("site.name", "site")
	v.SetDefault("site.output_dir", "output")
	v.SetDefault("downloader.max_retries", 3)
	v.SetDefault("downloader.timeout", 30*time.Second)
	v.SetDefault("downloader.request_delay", 10*time.Millisecond)
	v.SetDefault("downloader.user_agent", "site-downloader/1.0")
	v.SetDefault("downloader.max_body_bytes", 10*1024*1024)
	v.SetDefault("downloader.headers", map[string]string{})
	v.SetDefault("downloader.max_rps", 0)
	v.SetDefault("downloader.base_backoff", time.Second)
	v.SetDefault("downloader.max_backoff", time.Minute)
	v.SetDefault("downloader.rate_limiting.adaptive", true)
	v.SetDefault("downloader.rate_limiting.min_delay", 10*time.Millisecond)
	v.SetDefault("downloader.rate_limiting.max_delay", 5*time.Second)
	v.SetDefault("downloader.rate_limiting.backoff_factor", 2.0)
	v.SetDefault("downloader.monitoring.show_progress", true)
	v.SetDefault("downloader.monitoring.log_speed", true)
	v.SetDefault("downloader.monitoring.track_memory", false)
	v.SetDefault("status_codes.retry_codes", status.DefaultRetryCodes)
	v.SetDefault("status_codes.log_all", false)
	v.SetDefault("status_codes.show_console", true)
	v.SetDefault("status_codes.generate_report", true)
	v.SetDefault("crawler.max_pages", 500)
	v.SetDefault("crawler.max_depth", 5)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.delay", 100*time.Millisecond)
	v.SetDefault("crawler.exclude", []string{})
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("results.dsn", "")
	v.SetDefault("results.table", "download_results")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. All failures are
// reported together.
func (c Config) Validate() error {
	var errs []error
	fail := func(field, reason string) {
		errs = append(errs, &ValidationError{Field: field, Reason: reason})
	}

	if strings.TrimSpace(c.Site.OutputDir) == "" {
		fail("site.output_dir", "must be set")
	}
	if strings.TrimSpace(c.Site.Name) == "" || strings.ContainsAny(c.Site.Name, `/\`) || c.Site.Name == ".." {
		fail("site.name", "must be a plain directory name")
	}
	d := c.Downloader
	if d.MaxRetries < 0 {
		fail("downloader.max_retries", "must be >= 0")
	}
	if d.Timeout <= 0 {
		fail("downloader.timeout", "must be > 0")
	}
	if d.RequestDelay < 0 {
		fail("downloader.request_delay", "must be >= 0")
	}
	if d.BaseBackoff < 0 || d.MaxBackoff < 0 {
		fail("downloader.base_backoff", "backoffs must be >= 0")
	}
	if d.MaxRPS < 0 {
		fail("downloader.max_rps", "must be >= 0")
	}
	rl := d.RateLimiting
	if rl.MinDelay < 0 {
		fail("downloader.rate_limiting.min_delay", "must be >= 0")
	}
	if rl.MaxDelay < rl.MinDelay {
		fail("downloader.rate_limiting.max_delay", "must be >= min_delay")
	}
	if rl.BackoffFactor <= 1.0 {
		fail("downloader.rate_limiting.backoff_factor", "must be > 1.0")
	}
	for _, code := range c.StatusCodes.RetryCodes {
		if code < 100 || code > 599 {
			fail("status_codes.retry_codes", fmt.Sprintf("contains out-of-range code %d", code))
		}
	}
	switch c.Storage.Backend {
	case BackendLocal:
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			fail("storage.gcs_bucket", "must be set when backend is gcs")
		}
	default:
		fail("storage.backend", fmt.Sprintf("unknown backend %q", c.Storage.Backend))
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		fail("pubsub.project_id", "must be set when pubsub.topic is set")
	}
	return errors.Join(errs...)
}

// RateControl converts the rate-limiting section into controller bounds.
func (c Config) RateControl() ratecontrol.Config {
	rl := c.Downloader.RateLimiting
	return ratecontrol.Config{
		Initial:       c.Downloader.RequestDelay,
		MinDelay:      rl.MinDelay,
		MaxDelay:      rl.MaxDelay,
		BackoffFactor: rl.BackoffFactor,
		Adaptive:      rl.Adaptive,
	}
}

// Retry converts the downloader section into the retry policy inputs.
func (c Config) Retry() retry.Config {
	return retry.Config{
		MaxRetries:  c.Downloader.MaxRetries,
		RetryCodes:  status.NewRetryCodes(c.StatusCodes.RetryCodes...),
		BaseBackoff: c.Downloader.BaseBackoff,
		MaxBackoff:  c.Downloader.MaxBackoff,
	}
}
