// Package session accumulates per-URL results for one download run and
// produces the status report.
package session

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/site-downloader/internal/download"
	"github.com/JakeFAU/site-downloader/internal/status"
)

// ErrFinished is returned when recording into a finished session.
var ErrFinished = errors.New("session: already finished")

// MemorySample captures heap usage around one URL.
type MemorySample struct {
	URL        string `json:"url"`
	HeapBytes  uint64 `json:"heap_bytes"`
	DeltaBytes int64  `json:"delta_bytes"`
}

// Stats is an immutable snapshot of a session.
type Stats struct {
	SessionID          string         `json:"session_id"`
	TotalRequests      int            `json:"total_requests"`
	SuccessfulRequests int            `json:"successful_requests"`
	FailedRequests     int            `json:"failed_requests"`
	TotalAttempts      int            `json:"total_attempts"`
	TotalBytes         int64          `json:"total_bytes"`
	StatusCodes        map[string]int `json:"status_codes"`
	StartTime          time.Time      `json:"start_time"`
	EndTime            time.Time      `json:"end_time"`
	Duration           time.Duration  `json:"-"`
	DurationSeconds    float64        `json:"duration_seconds"`
	SuccessRate        float64        `json:"success_rate"`
	Finished           bool           `json:"finished"`
	MemorySamples      []MemorySample `json:"memory_samples,omitempty"`
}

// RequestsPerSecond derives throughput from the snapshot.
func (s Stats) RequestsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.TotalRequests) / s.Duration.Seconds()
}

// KilobytesPerSecond derives download speed from the snapshot.
func (s Stats) KilobytesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.TotalBytes) / 1024 / s.Duration.Seconds()
}

// Aggregator folds Results into session counters. It is safe for concurrent
// use so live readers can query it while the run is in progress.
type Aggregator struct {
	mu      sync.Mutex
	id      string
	now     func() time.Time
	start   time.Time
	end     time.Time
	done    bool
	total   int
	ok      int
	tries   int
	bytes   int64
	codes   map[string]int
	samples []MemorySample
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// WithID sets the session identifier instead of generating one.
func WithID(id string) Option {
	return func(a *Aggregator) {
		a.id = id
	}
}

// NewAggregator starts a session at the current time.
func NewAggregator(opts ...Option) (*Aggregator, error) {
	a := &Aggregator{
		now:   func() time.Time { return time.Now().UTC() },
		codes: make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.id == "" {
		id, err := NewID()
		if err != nil {
			return nil, err
		}
		a.id = id
	}
	a.start = a.now()
	return a, nil
}

// NewID returns a time-ordered UUIDv7 session identifier.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return id.String(), nil
}

// ID returns the session identifier.
func (a *Aggregator) ID() string {
	return a.id
}

// StartTime returns when the session began.
func (a *Aggregator) StartTime() time.Time {
	return a.start
}

// Record folds one per-URL result into the session.
func (a *Aggregator) Record(result download.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return ErrFinished
	}
	a.total++
	if result.Succeeded {
		a.ok++
	}
	a.tries += result.TotalAttempts
	a.bytes += result.ContentSize
	a.codes[status.Key(result.FinalStatusCode)]++
	return nil
}

// RecordMemory appends a memory sample.
func (a *Aggregator) RecordMemory(sample MemorySample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return
	}
	a.samples = append(a.samples, sample)
}

// Report returns a snapshot. A running session reports its duration up to now.
func (a *Aggregator) Report() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Finish freezes the session at the current time and returns the final
// snapshot. Subsequent calls return the same snapshot.
func (a *Aggregator) Finish() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.done {
		a.done = true
		a.end = a.now()
	}
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Stats {
	end := a.end
	if !a.done {
		end = a.now()
	}
	duration := end.Sub(a.start)
	if duration < 0 {
		duration = 0
	}
	rate := 0.0
	if a.total > 0 {
		rate = float64(a.ok) / float64(a.total)
	}
	return Stats{
		SessionID:          a.id,
		TotalRequests:      a.total,
		SuccessfulRequests: a.ok,
		FailedRequests:     a.total - a.ok,
		TotalAttempts:      a.tries,
		TotalBytes:         a.bytes,
		StatusCodes:        maps.Clone(a.codes),
		StartTime:          a.start,
		EndTime:            end,
		Duration:           duration,
		DurationSeconds:    duration.Seconds(),
		SuccessRate:        rate,
		Finished:           a.done,
		MemorySamples:      append([]MemorySample(nil), a.samples...),
	}
}
