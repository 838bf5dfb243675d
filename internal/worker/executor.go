// Package worker downloads URLs one at a time: the Executor runs the attempt
// loop for a single URL and the Runner drives it across a URL list.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-downloader/internal/download"
	"github.com/JakeFAU/site-downloader/internal/metrics"
	"github.com/JakeFAU/site-downloader/internal/ratecontrol"
	"github.com/JakeFAU/site-downloader/internal/retry"
	"github.com/JakeFAU/site-downloader/internal/status"
	"github.com/JakeFAU/site-downloader/internal/storage"
)

// Result reasons set by the executor itself.
const (
	ReasonPersistenceError = "persistence-error"
	ReasonCanceled         = "canceled"
)

const defaultRequestTimeout = 30 * time.Second

// Pacer is the adaptive delay consulted before and fed after every attempt.
type Pacer interface {
	CurrentDelay() time.Duration
	RecordOutcome(category status.Category, rateLimited bool)
}

// Decider chooses between retrying and finalizing after a failed attempt.
type Decider interface {
	Decide(attempt int, last download.Outcome) retry.Decision
}

// Config tunes the Executor.
type Config struct {
	Layout         storage.Layout
	RetryCodes     status.RetryCodes
	RequestTimeout time.Duration
	// ShowConsole prints a colored line per attempt.
	ShowConsole bool
	// LogAllStatus logs every status code at info level.
	LogAllStatus bool
}

// Deps are the Executor's collaborators. Fetcher, Pacer, Policy and Store are
// required; the rest default to no-ops or system implementations.
type Deps struct {
	Fetcher  download.Fetcher
	Pacer    Pacer
	Policy   Decider
	Store    download.BlobStore
	Ceiling  *ratecontrol.Ceiling
	Links    download.LinkExtractor
	Attempts download.AttemptLog
	Hasher   download.Hasher
	Clock    download.Clock
	Sleeper  download.Sleeper
	Console  io.Writer
	Logger   *zap.Logger
}

// Executor downloads one URL at a time. It is not safe for concurrent use:
// the adaptive delay assumes requests are sequential.
type Executor struct {
	deps    Deps
	cfg     Config
	logger  *zap.Logger
	started bool
}

// NewExecutor validates deps and fills in defaults.
func NewExecutor(deps Deps, cfg Config) (*Executor, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("executor: fetcher is required")
	case deps.Pacer == nil:
		return nil, errors.New("executor: pacer is required")
	case deps.Policy == nil:
		return nil, errors.New("executor: retry policy is required")
	case deps.Store == nil:
		return nil, errors.New("executor: blob store is required")
	}
	if deps.Hasher == nil {
		deps.Hasher = download.SHA256Hasher{}
	}
	if deps.Clock == nil {
		deps.Clock = download.SystemClock{}
	}
	if deps.Sleeper == nil {
		deps.Sleeper = download.TimerSleeper{}
	}
	if deps.Console == nil {
		deps.Console = io.Discard
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.RetryCodes == nil {
		cfg.RetryCodes = status.NewRetryCodes(status.DefaultRetryCodes...)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	metrics.Init()
	return &Executor{deps: deps, cfg: cfg, logger: deps.Logger}, nil
}

// Download runs the attempt loop for url and returns its final Result.
// Per-URL failures are reported in the Result, never as an error. An error
// is returned only when ctx ends before the first attempt, in which case
// nothing was attempted and the URL must not be counted.
func (e *Executor) Download(ctx context.Context, url string) (download.Result, error) {
	start := e.deps.Clock.Now()
	var (
		last     download.Outcome
		response download.FetchResponse
		attempt  int
	)
	for {
		if err := e.pace(ctx, url); err != nil {
			if attempt == 0 {
				return download.Result{}, fmt.Errorf("download %s: %w", url, err)
			}
			return e.canceled(url, attempt, last, start), nil
		}

		attempt++
		response, last = e.attempt(ctx, url, attempt)

		if last.Succeeded {
			return e.finalizeSuccess(ctx, url, attempt, response, start), nil
		}

		decision := e.deps.Policy.Decide(attempt, last)
		if !decision.ShouldRetry {
			e.logger.Warn("download failed",
				zap.String("url", url),
				zap.Int("attempts", attempt),
				zap.Int("status_code", last.StatusCode),
				zap.String("reason", decision.Reason),
				zap.Error(last.Err),
			)
			return e.finalizeFailure(url, attempt, last, decision.Reason, start), nil
		}

		metrics.ObserveRetry(decision.Reason)
		e.logger.Info("retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.String("reason", decision.Reason),
			zap.Duration("wait", decision.Wait),
		)
		if err := e.deps.Sleeper.Sleep(ctx, decision.Wait); err != nil {
			return e.canceled(url, attempt, last, start), nil
		}
		metrics.ObservePacingWait("retry", decision.Wait)
	}
}

// pace applies the adaptive delay before every attempt but the run's first,
// then the optional per-host ceiling.
func (e *Executor) pace(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.started {
		delay := e.deps.Pacer.CurrentDelay()
		if err := e.deps.Sleeper.Sleep(ctx, delay); err != nil {
			return err
		}
		metrics.ObservePacingWait("delay", delay)
	}
	waitStart := time.Now()
	if err := e.deps.Ceiling.Wait(ctx, url); err != nil {
		return fmt.Errorf("ceiling wait: %w", err)
	}
	if e.deps.Ceiling != nil {
		metrics.ObservePacingWait("ceiling", time.Since(waitStart))
	}
	return ctx.Err()
}

// attempt performs one request. The request itself is detached from ctx so
// a cancellation lets it finish under its own timeout.
func (e *Executor) attempt(ctx context.Context, url string, number int) (download.FetchResponse, download.Outcome) {
	e.started = true
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.RequestTimeout)
	defer cancel()

	timestamp := e.deps.Clock.Now()
	begin := time.Now()
	resp, err := e.deps.Fetcher.Fetch(reqCtx, url)
	elapsed := time.Since(begin)
	if err == nil && resp.Duration > 0 {
		elapsed = resp.Duration
	}

	outcome := e.classify(resp, elapsed, err)
	rateLimited := status.IsRateLimited(outcome.StatusCode)
	e.deps.Pacer.RecordOutcome(status.Classify(outcome.StatusCode), rateLimited)
	if s, ok := e.deps.Pacer.(interface{ State() ratecontrol.State }); ok {
		metrics.SetCurrentDelay(s.State().CurrentDelay)
	}
	metrics.ObserveAttempt(url, outcome.StatusCode, elapsed, rateLimited)

	if e.deps.Attempts != nil {
		e.deps.Attempts.Record(download.Attempt{
			URL:       url,
			Number:    number,
			Timestamp: timestamp,
			Outcome:   outcome,
		})
	}
	e.report(url, number, outcome)
	return resp, outcome
}

func (e *Executor) classify(resp download.FetchResponse, elapsed time.Duration, err error) download.Outcome {
	if err != nil {
		return download.FailureOutcome(0, download.ClassifyNetworkError(err), elapsed, err)
	}
	code := resp.StatusCode
	if e.cfg.RetryCodes.Contains(code) {
		return download.FailureOutcome(code, download.ErrorRetryableStatus, elapsed, fmt.Errorf("HTTP %d", code))
	}
	switch status.Classify(code) {
	case status.Success, status.Redirect:
		return download.SuccessOutcome(code, len(resp.Body), elapsed)
	default:
		return download.FailureOutcome(code, download.ErrorNonRetryableStatus, elapsed, fmt.Errorf("HTTP %d", code))
	}
}

func (e *Executor) report(url string, number int, outcome download.Outcome) {
	if e.cfg.LogAllStatus {
		e.logger.Info("http status",
			zap.String("url", url),
			zap.Int("attempt", number),
			zap.Int("status_code", outcome.StatusCode),
			zap.String("description", status.Describe(outcome.StatusCode)),
		)
	}
	if !e.cfg.ShowConsole {
		return
	}
	if outcome.StatusCode == 0 {
		_, _ = fmt.Fprintf(e.deps.Console, "  ERROR (%s) %s\n", outcome.ErrorKind, url)
		return
	}
	_, _ = fmt.Fprintf(e.deps.Console, "  %s %s\n", status.Format(outcome.StatusCode), url)
	if hint := status.Hint(outcome.StatusCode); hint != "" {
		_, _ = fmt.Fprintf(e.deps.Console, "    hint: %s\n", hint)
	}
}

func (e *Executor) finalizeSuccess(
	ctx context.Context,
	url string,
	attempts int,
	resp download.FetchResponse,
	start time.Time,
) download.Result {
	result := download.Result{
		URL:             url,
		FinalStatusCode: resp.StatusCode,
		TotalAttempts:   attempts,
		ContentSize:     int64(len(resp.Body)),
		ContentType:     resp.Headers.Get("Content-Type"),
	}
	// persistence completes even when the run is being canceled
	persistCtx := context.WithoutCancel(ctx)
	if err := e.persist(persistCtx, url, resp, &result); err != nil {
		perr := &download.PersistenceError{URL: url, Err: err}
		e.logger.Error("persist page failed", zap.String("url", url), zap.Error(perr))
		result.Succeeded = false
		result.Reason = ReasonPersistenceError
		result.ErrorKind = download.ErrorPersistence
	} else {
		result.Succeeded = true
		result.Reason = retry.ReasonSuccess
		e.logger.Debug("page saved",
			zap.String("url", url),
			zap.String("uri", result.SavedPath),
			zap.Bool("unchanged", result.Unchanged),
		)
	}
	return e.stamp(result, start)
}

func (e *Executor) persist(ctx context.Context, url string, resp download.FetchResponse, result *download.Result) error {
	hash, err := e.deps.Hasher.Hash(resp.Body)
	if err != nil {
		return fmt.Errorf("hash body: %w", err)
	}
	contentKey, err := e.cfg.Layout.ContentKey(url)
	if err != nil {
		return fmt.Errorf("content key: %w", err)
	}
	metaKey, err := e.cfg.Layout.MetadataKey(url)
	if err != nil {
		return fmt.Errorf("metadata key: %w", err)
	}

	uri, unchanged := e.previousContent(ctx, metaKey, hash)
	if !unchanged {
		contentType := result.ContentType
		if contentType == "" {
			contentType = "text/html; charset=utf-8"
		}
		uri, err = e.deps.Store.PutObject(ctx, contentKey, contentType, bytes.NewReader(resp.Body))
		if err != nil {
			return fmt.Errorf("put content: %w", err)
		}
	}

	meta := download.Metadata{
		URL:         url,
		FinalURL:    resp.URL,
		Timestamp:   e.deps.Clock.Now(),
		StatusCode:  resp.StatusCode,
		Headers:     resp.Headers,
		ContentType: result.ContentType,
		SizeBytes:   int64(len(resp.Body)),
		ElapsedMs:   resp.Duration.Milliseconds(),
		ContentHash: hash,
		ContentURI:  uri,
	}
	if e.deps.Links != nil && strings.Contains(strings.ToLower(result.ContentType), "html") {
		meta.Links = e.deps.Links.ExtractLinks(resp.Body, url)
	}
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	metaURI, err := e.deps.Store.PutObject(ctx, metaKey, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("put metadata: %w", err)
	}

	result.ContentHash = hash
	result.SavedPath = uri
	result.MetadataPath = metaURI
	result.Unchanged = unchanged
	return nil
}

// previousContent reports whether the stored metadata already describes
// content with this hash, returning its URI.
func (e *Executor) previousContent(ctx context.Context, metaKey, hash string) (string, bool) {
	reader, ok := e.deps.Store.(download.BlobReader)
	if !ok {
		return "", false
	}
	raw, err := reader.GetObject(ctx, metaKey)
	if err != nil {
		return "", false
	}
	var prev download.Metadata
	if err := json.Unmarshal(raw, &prev); err != nil {
		return "", false
	}
	if prev.ContentHash != hash || prev.ContentURI == "" {
		return "", false
	}
	return prev.ContentURI, true
}

func (e *Executor) finalizeFailure(
	url string,
	attempts int,
	last download.Outcome,
	reason string,
	start time.Time,
) download.Result {
	return e.stamp(download.Result{
		URL:             url,
		FinalStatusCode: last.StatusCode,
		TotalAttempts:   attempts,
		Reason:          reason,
		ErrorKind:       last.ErrorKind,
	}, start)
}

func (e *Executor) canceled(url string, attempts int, last download.Outcome, start time.Time) download.Result {
	e.logger.Warn("download canceled between attempts", zap.String("url", url), zap.Int("attempts", attempts))
	result := e.finalizeFailure(url, attempts, last, ReasonCanceled, start)
	result.ErrorKind = download.ErrorCanceled
	result.Canceled = true
	return result
}

func (e *Executor) stamp(result download.Result, start time.Time) download.Result {
	now := e.deps.Clock.Now()
	result.TotalElapsed = now.Sub(start)
	result.CompletedAt = now
	metrics.ObserveResult(result.URL, result.Succeeded, result.ContentSize)
	return result
}
