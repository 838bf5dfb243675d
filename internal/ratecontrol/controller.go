// Package ratecontrol holds the adaptive pacing state shared across downloads.
package ratecontrol

import (
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/site-downloader/internal/status"
)

// Config bounds the adaptive delay.
type Config struct {
	// Initial is the starting delay; it is clamped into [MinDelay, MaxDelay].
	Initial       time.Duration
	MinDelay      time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Adaptive also treats 5xx responses as rate-limit signals.
	Adaptive bool
}

// DefaultConfig mirrors the downloader defaults.
func DefaultConfig() Config {
	return Config{
		Initial:       10 * time.Millisecond,
		MinDelay:      10 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Adaptive:      true,
	}
}

// Validate rejects bounds that would break the min <= current <= max invariant.
func (c Config) Validate() error {
	if c.MinDelay < 0 {
		return fmt.Errorf("min delay must be >= 0")
	}
	if c.MaxDelay < c.MinDelay {
		return fmt.Errorf("max delay %s must be >= min delay %s", c.MaxDelay, c.MinDelay)
	}
	if c.BackoffFactor <= 1.0 {
		return fmt.Errorf("backoff factor must be > 1.0")
	}
	return nil
}

// State is a point-in-time copy of the controller.
type State struct {
	CurrentDelay             time.Duration `json:"current_delay"`
	MinDelay                 time.Duration `json:"min_delay"`
	MaxDelay                 time.Duration `json:"max_delay"`
	BackoffFactor            float64       `json:"backoff_factor"`
	ConsecutiveRateLimitHits int           `json:"consecutive_rate_limit_hits"`
}

// Controller raises the delay quickly under pressure and lets it fall back
// gradually. It is safe for concurrent use.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	base    time.Duration
	current time.Duration
	hits    int
}

// New builds a Controller from a validated config.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := clamp(cfg.Initial, cfg.MinDelay, cfg.MaxDelay)
	return &Controller{
		cfg:     cfg,
		base:    base,
		current: base,
	}, nil
}

// CurrentDelay returns the pause applied before the next attempt.
func (c *Controller) CurrentDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// BackoffFactor returns the configured multiplier.
func (c *Controller) BackoffFactor() float64 {
	return c.cfg.BackoffFactor
}

// IsRateLimitSignal reports whether an outcome should escalate the delay.
func (c *Controller) IsRateLimitSignal(category status.Category, rateLimited bool) bool {
	return rateLimited || (c.cfg.Adaptive && category == status.ServerError)
}

// RecordOutcome adjusts the delay after an attempt. Rate-limit signals
// multiply the delay; a clean 2xx or 3xx after escalation halves the distance
// back to MinDelay. Anything else leaves the state untouched.
func (c *Controller) RecordOutcome(category status.Category, rateLimited bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.IsRateLimitSignal(category, rateLimited):
		next := time.Duration(float64(c.current) * c.cfg.BackoffFactor)
		if next <= c.current {
			// zero or sub-nanosecond delays would never grow
			next = c.current + time.Millisecond
		}
		c.current = clamp(next, c.cfg.MinDelay, c.cfg.MaxDelay)
		c.hits++
	case (category == status.Success || category == status.Redirect) && c.hits > 0:
		c.current = clamp(c.cfg.MinDelay+(c.current-c.cfg.MinDelay)/2, c.cfg.MinDelay, c.cfg.MaxDelay)
		c.hits--
	}
}

// ResetEscalation clears the hit counter and returns the delay to its base.
func (c *Controller) ResetEscalation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = 0
	c.current = c.base
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		CurrentDelay:             c.current,
		MinDelay:                 c.cfg.MinDelay,
		MaxDelay:                 c.cfg.MaxDelay,
		BackoffFactor:            c.cfg.BackoffFactor,
		ConsecutiveRateLimitHits: c.hits,
	}
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
