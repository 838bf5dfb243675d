package worker

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-downloader/internal/download"
	"github.com/JakeFAU/site-downloader/internal/session"
)

const (
	defaultSpeedEvery = 10
	progressURLWidth  = 60
)

// Downloader is the per-URL step the Runner drives.
type Downloader interface {
	Download(ctx context.Context, url string) (download.Result, error)
}

// RunnerConfig toggles the run-level monitoring output.
type RunnerConfig struct {
	ShowProgress bool
	LogSpeed     bool
	// SpeedEvery is how many URLs pass between speed log lines.
	SpeedEvery  int
	TrackMemory bool
}

// Runner feeds URLs to a Downloader in order and folds every Result into the
// session. Result sinks see each Result after the session does; their
// failures are logged and never fail the run.
type Runner struct {
	exec     Downloader
	agg      *session.Aggregator
	sinks    []download.ResultSink
	cfg      RunnerConfig
	progress io.Writer
	heap     func() uint64
	logger   *zap.Logger
}

// NewRunner constructs a Runner. progress receives the progress line and may be nil.
func NewRunner(
	exec Downloader,
	agg *session.Aggregator,
	sinks []download.ResultSink,
	cfg RunnerConfig,
	progress io.Writer,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if progress == nil {
		progress = io.Discard
	}
	if cfg.SpeedEvery <= 0 {
		cfg.SpeedEvery = defaultSpeedEvery
	}
	return &Runner{
		exec:     exec,
		agg:      agg,
		sinks:    sinks,
		cfg:      cfg,
		progress: progress,
		heap:     session.HeapInUse,
		logger:   logger,
	}
}

// Run downloads urls sequentially until the list ends or ctx is canceled,
// then finishes the session and returns its final snapshot. A URL whose
// first attempt never started is not counted.
func (r *Runner) Run(ctx context.Context, urls []string) session.Stats {
	total := len(urls)
	r.logger.Info("download run starting",
		zap.String("session_id", r.agg.ID()),
		zap.Int("urls", total),
	)
	for i, url := range urls {
		if ctx.Err() != nil {
			r.logger.Warn("run interrupted", zap.Int("completed", i), zap.Int("remaining", total-i))
			break
		}
		r.showProgress(i+1, total, url)

		var before uint64
		if r.cfg.TrackMemory {
			before = r.heap()
		}

		result, err := r.exec.Download(ctx, url)
		if err != nil {
			r.logger.Warn("download not started", zap.String("url", url), zap.Error(err))
			break
		}
		r.record(ctx, result)

		if r.cfg.TrackMemory {
			after := r.heap()
			r.agg.RecordMemory(session.MemorySample{
				URL:        url,
				HeapBytes:  after,
				DeltaBytes: int64(after) - int64(before),
			})
		}
		if r.cfg.LogSpeed && (i+1)%r.cfg.SpeedEvery == 0 {
			r.logSpeed()
		}
	}
	if r.cfg.ShowProgress && total > 0 {
		_, _ = fmt.Fprintln(r.progress)
	}

	stats := r.agg.Finish()
	r.logger.Info("download run finished",
		zap.String("session_id", stats.SessionID),
		zap.Int("total", stats.TotalRequests),
		zap.Int("succeeded", stats.SuccessfulRequests),
		zap.Int("failed", stats.FailedRequests),
		zap.Duration("duration", stats.Duration),
	)
	return stats
}

func (r *Runner) record(ctx context.Context, result download.Result) {
	if err := r.agg.Record(result); err != nil {
		r.logger.Error("record result", zap.String("url", result.URL), zap.Error(err))
		return
	}
	// sinks run to completion for results already counted
	sinkCtx := context.WithoutCancel(ctx)
	for _, sink := range r.sinks {
		if err := sink.Consume(sinkCtx, result); err != nil {
			r.logger.Error("result sink failed", zap.String("url", result.URL), zap.Error(err))
		}
	}
}

func (r *Runner) showProgress(n, total int, url string) {
	if !r.cfg.ShowProgress {
		return
	}
	display := url
	if runes := []rune(display); len(runes) > progressURLWidth {
		display = string(runes[:progressURLWidth]) + "..."
	}
	pct := float64(n) / float64(total) * 100
	_, _ = fmt.Fprintf(r.progress, "\r[%d/%d] (%.1f%%) Processing: %s  ", n, total, pct, display)
}

func (r *Runner) logSpeed() {
	stats := r.agg.Report()
	r.logger.Info("download speed",
		zap.Int("completed", stats.TotalRequests),
		zap.Float64("requests_per_second", stats.RequestsPerSecond()),
		zap.Float64("kb_per_second", stats.KilobytesPerSecond()),
	)
}
