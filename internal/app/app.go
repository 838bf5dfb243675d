// Package app wires configuration into the long-lived services of a download
// session and owns their shutdown.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-downloader/internal/api"
	"github.com/JakeFAU/site-downloader/internal/config"
	"github.com/JakeFAU/site-downloader/internal/discovery"
	"github.com/JakeFAU/site-downloader/internal/download"
	collyfetcher "github.com/JakeFAU/site-downloader/internal/fetcher/colly"
	"github.com/JakeFAU/site-downloader/internal/logging"
	pubsubpublisher "github.com/JakeFAU/site-downloader/internal/publisher/pubsub"
	"github.com/JakeFAU/site-downloader/internal/ratecontrol"
	"github.com/JakeFAU/site-downloader/internal/retry"
	"github.com/JakeFAU/site-downloader/internal/session"
	"github.com/JakeFAU/site-downloader/internal/storage"
	"github.com/JakeFAU/site-downloader/internal/storage/gcs"
	"github.com/JakeFAU/site-downloader/internal/storage/local"
	"github.com/JakeFAU/site-downloader/internal/storage/postgres"
	"github.com/JakeFAU/site-downloader/internal/worker"
)

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

type options struct {
	fetcher download.Fetcher
	store   download.BlobStore
	sinks   []download.ResultSink
	stdout  io.Writer
	stderr  io.Writer
	sleeper download.Sleeper
}

// WithFetcher replaces the colly fetcher.
func WithFetcher(f download.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithStore replaces the configured blob backend.
func WithStore(s download.BlobStore) Option {
	return func(o *options) { o.store = s }
}

// WithSinks appends result sinks after the configured ones.
func WithSinks(sinks ...download.ResultSink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// WithOutput redirects the summary (stdout) and the console and progress lines (stderr).
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

// WithSleeper replaces the timer used for pacing and retry waits.
func WithSleeper(s download.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

// App holds the services of one download session.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	agg        *session.Aggregator
	controller *ratecontrol.Controller
	runner     *worker.Runner
	server     *api.Server
	stdout     io.Writer
	closers    []func() error
}

// New builds every service for a session. Optional backends (Postgres,
// Pub/Sub, GCS) are only dialed when configured. Partially built services
// are closed when construction fails.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger, stdout: o.stdout}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.agg, err = session.NewAggregator()
	if err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}
	sessionID := a.agg.ID()
	logger = logger.With(zap.String("session_id", sessionID))
	a.logger = logger

	a.controller, err = ratecontrol.New(cfg.RateControl())
	if err != nil {
		return nil, fmt.Errorf("init rate controller: %w", err)
	}

	store := o.store
	layout := storage.Layout{Site: cfg.Site.Name}
	if store == nil {
		store, layout, err = a.openStore(ctx)
		if err != nil {
			return nil, err
		}
	}

	sinks, err := a.openSinks(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, o.sinks...)

	attempts, closeAttempts, err := logging.OpenAttemptLog(a.logsDir(), sessionID)
	if err != nil {
		return nil, fmt.Errorf("open attempt logs: %w", err)
	}
	a.closers = append(a.closers, closeAttempts)

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:    cfg.Downloader.UserAgent,
			Timeout:      cfg.Downloader.Timeout,
			MaxBodyBytes: cfg.Downloader.MaxBodyBytes,
			Headers:      cfg.Downloader.Headers,
		})
	}

	retryCfg := cfg.Retry()
	exec, err := worker.NewExecutor(worker.Deps{
		Fetcher:  fetcher,
		Pacer:    a.controller,
		Policy:   retry.NewPolicy(retryCfg, a.controller),
		Store:    store,
		Ceiling:  ratecontrol.NewCeiling(cfg.Downloader.MaxRPS),
		Links:    discovery.LinkExtractor{},
		Attempts: attempts,
		Sleeper:  o.sleeper,
		Console:  o.stderr,
		Logger:   logger,
	}, worker.Config{
		Layout:         layout,
		RetryCodes:     retryCfg.RetryCodes,
		RequestTimeout: cfg.Downloader.Timeout,
		ShowConsole:    cfg.StatusCodes.ShowConsole,
		LogAllStatus:   cfg.StatusCodes.LogAll,
	})
	if err != nil {
		return nil, fmt.Errorf("init executor: %w", err)
	}

	mon := cfg.Downloader.Monitoring
	a.runner = worker.NewRunner(exec, a.agg, sinks, worker.RunnerConfig{
		ShowProgress: mon.ShowProgress,
		LogSpeed:     mon.LogSpeed,
		TrackMemory:  mon.TrackMemory,
	}, o.stderr, logger)

	if cfg.Server.Addr != "" {
		a.server = api.NewServer(a.agg, a.controller, logger)
	}

	logger.Info("application services initialized",
		zap.String("site", cfg.Site.Name),
		zap.String("storage", cfg.Storage.Backend),
		zap.Int("sinks", len(sinks)),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (download.BlobStore, storage.Layout, error) {
	cfg := a.cfg
	switch cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, storage.Layout{}, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, storage.Layout{}, fmt.Errorf("init gcs store: %w", err)
		}
		a.logger.Info("using gcs storage", zap.String("bucket", cfg.Storage.GCSBucket))
		return store, storage.Layout{Prefix: cfg.Storage.Prefix, Site: cfg.Site.Name}, nil
	default:
		// the local tree is rooted at output_dir so content sits beside Logs and Reports
		store, err := local.New(local.Config{BaseDir: cfg.Site.OutputDir})
		if err != nil {
			return nil, storage.Layout{}, fmt.Errorf("init local store: %w", err)
		}
		return store, storage.Layout{Site: cfg.Site.Name}, nil
	}
}

func (a *App) openSinks(ctx context.Context, sessionID string) ([]download.ResultSink, error) {
	var sinks []download.ResultSink
	if dsn := a.cfg.Results.DSN; dsn != "" {
		rs, err := postgres.NewResultStore(ctx, postgres.Config{DSN: dsn, Table: a.cfg.Results.Table}, sessionID)
		if err != nil {
			return nil, fmt.Errorf("init result store: %w", err)
		}
		a.closers = append(a.closers, func() error { rs.Close(); return nil })
		if err := rs.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure result schema: %w", err)
		}
		sinks = append(sinks, rs)
	}
	if topicID := a.cfg.PubSub.Topic; topicID != "" {
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		pub := pubsubpublisher.New(client.Topic(topicID), sessionID)
		a.closers = append(a.closers, func() error { pub.Stop(); return nil })
		sinks = append(sinks, pub)
		a.logger.Info("publishing results", zap.String("topic", topicID))
	}
	return sinks, nil
}

// SessionID identifies the session in logs, reports and sinks.
func (a *App) SessionID() string {
	return a.agg.ID()
}

// Controller exposes the rate controller.
func (a *App) Controller() *ratecontrol.Controller {
	return a.controller
}

// Discover crawls seed for same-host pages using the crawler settings.
func (a *App) Discover(ctx context.Context, seed string) ([]string, error) {
	c := a.cfg.Crawler
	crawler := discovery.NewCrawler(discovery.Config{
		UserAgent:     a.cfg.Downloader.UserAgent,
		MaxPages:      c.MaxPages,
		MaxDepth:      c.MaxDepth,
		RespectRobots: c.RespectRobots,
		Delay:         c.Delay,
		Timeout:       a.cfg.Downloader.Timeout,
		Exclude:       c.Exclude,
	}, a.logger)
	urls, err := crawler.Discover(ctx, seed)
	if err != nil {
		return urls, fmt.Errorf("discover %s: %w", seed, err)
	}
	return urls, nil
}

// Run downloads urls in order, then writes the status report and prints the
// summary. Cancellation ends the run early; the partial session is still
// reported.
func (a *App) Run(ctx context.Context, urls []string) (session.Stats, error) {
	urls, err := discovery.Dedupe(urls)
	if err != nil {
		return session.Stats{}, fmt.Errorf("prepare urls: %w", err)
	}
	if err := a.writeURLList(urls); err != nil {
		return session.Stats{}, err
	}

	serveDone := a.serve(ctx)
	stats := a.runner.Run(ctx, urls)
	serveDone()

	if a.cfg.StatusCodes.GenerateReport {
		path, err := session.WriteReport(a.reportsDir(), session.NewReport(stats, time.Now().UTC()))
		if err != nil {
			return stats, fmt.Errorf("write report: %w", err)
		}
		a.logger.Info("status report written", zap.String("path", path))
	}
	if err := session.WriteSummary(a.stdout, stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// serve runs the status server for the duration of a run. The returned
// function stops it and waits for shutdown.
func (a *App) serve(ctx context.Context) func() {
	if a.server == nil {
		return func() {}
	}
	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.server.ListenAndServe(srvCtx, a.cfg.Server.Addr); err != nil {
			a.logger.Error("status server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

type urlList struct {
	URLs      []string  `json:"urls"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session"`
}

func (a *App) writeURLList(urls []string) error {
	dir := a.logsDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	payload, err := json.MarshalIndent(urlList{
		URLs:      urls,
		Count:     len(urls),
		Timestamp: time.Now().UTC(),
		Session:   a.SessionID(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal url list: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("url_list_%s.json", a.SessionID()))
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write url list: %w", err)
	}
	return nil
}

func (a *App) logsDir() string {
	return storage.SiteLogsDir(a.cfg.Site.OutputDir, a.cfg.Site.Name)
}

func (a *App) reportsDir() string {
	return storage.SiteReportsDir(a.cfg.Site.OutputDir, a.cfg.Site.Name)
}

// Close shuts services down in reverse order of construction.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
		return err
	}
	return nil
}
