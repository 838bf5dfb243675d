package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-downloader/internal/config"
	"github.com/JakeFAU/site-downloader/internal/discovery"
	"github.com/JakeFAU/site-downloader/internal/session"
)

type fakeApp struct {
	cfg        config.Config
	ran        []string
	discovered []string
	seed       string
	closed     bool
}

func (f *fakeApp) Run(_ context.Context, urls []string) (session.Stats, error) {
	f.ran = urls
	return session.Stats{TotalRequests: len(urls)}, nil
}

func (f *fakeApp) Discover(_ context.Context, seed string) ([]string, error) {
	f.seed = seed
	return f.discovered, nil
}

func (f *fakeApp) Close() error {
	f.closed = true
	return nil
}

// useFakeApp swaps the container factory. Tests using it must not run in parallel.
func useFakeApp(t *testing.T, fake *fakeApp) {
	t.Helper()
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (sessionApp, error) {
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() { newApp = orig })
}

func writeConfigFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "site:\n  output_dir: " + filepath.ToSlash(dir) + "\nlogging:\n  development: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&nopWriter{})
	root.SetErr(&nopWriter{})
	return root.ExecuteContext(context.Background())
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestDownload_MergesArgsAndFile(t *testing.T) {
	fake := &fakeApp{}
	useFakeApp(t, fake)

	urlFile := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(urlFile, []byte("# list\nhttps://example.com/b\n\nhttps://example.com/c\n"), 0o600))

	err := execute(t, "download", "--config", writeConfigFile(t), "--site", "example",
		"https://example.com/a", "--urls-file", urlFile)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}, fake.ran)
	assert.Equal(t, "example", fake.cfg.Site.Name)
	assert.True(t, fake.closed)
}

func TestDownload_RequiresURLs(t *testing.T) {
	fake := &fakeApp{}
	useFakeApp(t, fake)

	err := execute(t, "download", "--config", writeConfigFile(t))
	require.ErrorIs(t, err, discovery.ErrNoURLs)
	assert.Nil(t, fake.ran)
}

func TestDownload_InvalidConfig(t *testing.T) {
	fake := &fakeApp{}
	useFakeApp(t, fake)

	err := execute(t, "download", "--config", writeConfigFile(t), "--site", "../escape", "https://example.com")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.False(t, fake.closed)
}

func TestCrawl_DiscoversThenDownloads(t *testing.T) {
	fake := &fakeApp{discovered: []string{"https://example.com/", "https://example.com/about"}}
	useFakeApp(t, fake)

	err := execute(t, "crawl", "--config", writeConfigFile(t), "--max-pages", "7", "https://example.com")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", fake.seed)
	assert.Equal(t, fake.discovered, fake.ran)
	assert.Equal(t, 7, fake.cfg.Crawler.MaxPages)
}

func TestCrawl_RequiresSeed(t *testing.T) {
	useFakeApp(t, &fakeApp{})

	require.Error(t, execute(t, "crawl", "--config", writeConfigFile(t)))
}
