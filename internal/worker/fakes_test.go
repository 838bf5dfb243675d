package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/JakeFAU/site-downloader/internal/download"
)

type step struct {
	code int
	body string
	err  error
}

type scriptedFetcher struct {
	mu      sync.Mutex
	steps   []step
	calls   int
	onFetch func(ctx context.Context)
}

func (f *scriptedFetcher) Fetch(ctx context.Context, url string) (download.FetchResponse, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	s := f.steps[idx]
	if s.err != nil {
		return download.FetchResponse{}, s.err
	}
	return download.FetchResponse{
		URL:        url,
		StatusCode: s.code,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(s.body),
		Duration:   5 * time.Millisecond,
	}, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
	// onSleep runs before the context check, letting tests cancel mid-wait.
	onSleep func(n int)
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	n := len(s.sleeps)
	hook := s.onSleep
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (s *fakeSleeper) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type recordingAttempts struct {
	mu       sync.Mutex
	attempts []download.Attempt
}

func (r *recordingAttempts) Record(a download.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func (r *recordingAttempts) All() []download.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]download.Attempt(nil), r.attempts...)
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("disk full")
}
