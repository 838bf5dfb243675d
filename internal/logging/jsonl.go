package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/site-downloader/internal/download"
	"github.com/JakeFAU/site-downloader/internal/status"
)

// NewJSONLines builds a logger that appends one JSON object per entry to path.
// The returned function syncs and closes the file.
func NewJSONLines(path string) (*zap.Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	// #nosec G304 -- path is built from the configured output directory.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	// entries carry their own timestamp field
	encCfg := zapcore.EncoderConfig{
		MessageKey:     "event",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zap.DebugLevel)
	logger := zap.New(core)
	closeFn := func() error {
		_ = logger.Sync()
		if err := f.Close(); err != nil {
			return fmt.Errorf("close log file: %w", err)
		}
		return nil
	}
	return logger, closeFn, nil
}

// AttemptLog writes successful attempts and failed attempts to separate
// JSON-lines logs.
type AttemptLog struct {
	success *zap.Logger
	errors  *zap.Logger
}

// NewAttemptLog wraps the two loggers. Nil loggers discard their entries.
func NewAttemptLog(success, errors *zap.Logger) *AttemptLog {
	if success == nil {
		success = zap.NewNop()
	}
	if errors == nil {
		errors = zap.NewNop()
	}
	return &AttemptLog{success: success, errors: errors}
}

// OpenAttemptLog creates download_log_<session>.jsonl and
// error_log_<session>.jsonl under dir.
func OpenAttemptLog(dir, sessionID string) (*AttemptLog, func() error, error) {
	success, closeSuccess, err := NewJSONLines(filepath.Join(dir, fmt.Sprintf("download_log_%s.jsonl", sessionID)))
	if err != nil {
		return nil, nil, err
	}
	failures, closeErrors, err := NewJSONLines(filepath.Join(dir, fmt.Sprintf("error_log_%s.jsonl", sessionID)))
	if err != nil {
		_ = closeSuccess()
		return nil, nil, err
	}
	closeFn := func() error {
		errA := closeSuccess()
		errB := closeErrors()
		if errA != nil {
			return errA
		}
		return errB
	}
	return NewAttemptLog(success, failures), closeFn, nil
}

// Record writes one attempt entry.
func (l *AttemptLog) Record(attempt download.Attempt) {
	out := attempt.Outcome
	fields := []zap.Field{
		zap.Time("timestamp", attempt.Timestamp),
		zap.String("url", attempt.URL),
		zap.Int("attempt", attempt.Number),
		zap.Int("status_code", out.StatusCode),
		zap.String("status_description", status.Describe(out.StatusCode)),
		zap.Bool("success", out.Succeeded),
		zap.Int64("elapsed_ms", out.Elapsed.Milliseconds()),
		zap.Int("bytes", out.Bytes),
	}
	if out.Succeeded {
		l.success.Info("attempt", fields...)
		return
	}
	fields = append(fields,
		zap.String("error_kind", string(out.ErrorKind)),
		zap.String("error", out.ErrorText()),
	)
	l.errors.Info("attempt", fields...)
}
