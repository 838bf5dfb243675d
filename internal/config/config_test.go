package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-downloader/internal/status"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Downloader.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Downloader.Timeout)
	assert.Equal(t, 10*time.Millisecond, cfg.Downloader.RequestDelay)
	assert.Equal(t, 5*time.Second, cfg.Downloader.RateLimiting.MaxDelay)
	assert.InDelta(t, 2.0, cfg.Downloader.RateLimiting.BackoffFactor, 1e-9)
	assert.True(t, cfg.Downloader.RateLimiting.Adaptive)
	assert.Equal(t, status.DefaultRetryCodes, cfg.StatusCodes.RetryCodes)
	assert.Equal(t, BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, "download_results", cfg.Results.Table)
	assert.Empty(t, cfg.Server.Addr)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := writeConfig(t, `
site:
  name: example
  output_dir: /tmp/out
downloader:
  max_retries: 5
  timeout: 10s
  request_delay: 250ms
  max_rps: 4
  headers:
    Accept-Language: en
  rate_limiting:
    adaptive: false
    min_delay: 100ms
    max_delay: 2s
    backoff_factor: 1.5
status_codes:
  retry_codes: [429, 503]
  show_console: false
storage:
  backend: gcs
  gcs_bucket: bucket
  prefix: runs
pubsub:
  project_id: proj
  topic: results
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "example", cfg.Site.Name)
	assert.Equal(t, 5, cfg.Downloader.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Downloader.RequestDelay)
	assert.InDelta(t, 4.0, cfg.Downloader.MaxRPS, 1e-9)
	assert.Equal(t, "en", cfg.Downloader.Headers["accept-language"])
	assert.False(t, cfg.Downloader.RateLimiting.Adaptive)
	assert.Equal(t, []int{429, 503}, cfg.StatusCodes.RetryCodes)
	assert.False(t, cfg.StatusCodes.ShowConsole)
	assert.Equal(t, "bucket", cfg.Storage.GCSBucket)

	rc := cfg.RateControl()
	assert.Equal(t, 250*time.Millisecond, rc.Initial)
	assert.Equal(t, 100*time.Millisecond, rc.MinDelay)
	assert.False(t, rc.Adaptive)

	rp := cfg.Retry()
	assert.Equal(t, 5, rp.MaxRetries)
	assert.True(t, rp.RetryCodes.Contains(503))
	assert.False(t, rp.RetryCodes.Contains(500))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "downloader:\n  max_retries: 5\n")
	t.Setenv("SITEDL_DOWNLOADER_MAX_RETRIES", "1")
	t.Setenv("SITEDL_SITE_NAME", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Downloader.MaxRetries)
	assert.Equal(t, "from-env", cfg.Site.Name)
}

func TestLoadEnvReachesOptionalKeys(t *testing.T) {
	t.Setenv("SITEDL_RESULTS_DSN", "postgres://x")
	t.Setenv("SITEDL_PUBSUB_PROJECT_ID", "p")
	t.Setenv("SITEDL_PUBSUB_TOPIC", "t")
	t.Setenv("SITEDL_STORAGE_BACKEND", "gcs")
	t.Setenv("SITEDL_STORAGE_GCS_BUCKET", "bucket")
	t.Setenv("SITEDL_STORAGE_PREFIX", "runs")
	t.Setenv("SITEDL_CRAWLER_EXCLUDE", "/login,/cart")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", cfg.Results.DSN)
	assert.Equal(t, "p", cfg.PubSub.ProjectID)
	assert.Equal(t, "t", cfg.PubSub.Topic)
	assert.Equal(t, "bucket", cfg.Storage.GCSBucket)
	assert.Equal(t, "runs", cfg.Storage.Prefix)
	assert.Equal(t, []string{"/login", "/cart"}, cfg.Crawler.Exclude)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
downloader:
  max_retries: -1
  rate_limiting:
    min_delay: 2s
    max_delay: 1s
    backoff_factor: 1.0
status_codes:
  retry_codes: [99, 429]
`)

	_, err := Load(path)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidConfig)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "downloader.max_retries", verr.Field)
	assert.Contains(t, err.Error(), "downloader.rate_limiting.max_delay")
	assert.Contains(t, err.Error(), "downloader.rate_limiting.backoff_factor")
	assert.Contains(t, err.Error(), "out-of-range code 99")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero timeout", func(c *Config) { c.Downloader.Timeout = 0 }, "downloader.timeout"},
		{"negative delay", func(c *Config) { c.Downloader.RequestDelay = -time.Second }, "downloader.request_delay"},
		{"empty output", func(c *Config) { c.Site.OutputDir = " " }, "site.output_dir"},
		{"nested site", func(c *Config) { c.Site.Name = "a/b" }, "site.name"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = BackendGCS }, "storage.gcs_bucket"},
		{"topic without project", func(c *Config) { c.PubSub.Topic = "t" }, "pubsub.project_id"},
		{"negative rps", func(c *Config) { c.Downloader.MaxRPS = -1 }, "downloader.max_rps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	zeroRetries := valid()
	zeroRetries.Downloader.MaxRetries = 0
	assert.NoError(t, zeroRetries.Validate())
}
