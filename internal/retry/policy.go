// Package retry decides whether a failed attempt is retried and how long to wait.
package retry

import (
	"math"
	"time"

	"github.com/JakeFAU/site-downloader/internal/download"
	"github.com/JakeFAU/site-downloader/internal/status"
)

// Decision reasons.
const (
	ReasonSuccess            = "success"
	ReasonNetworkError       = "network-error"
	ReasonRetryableStatus    = "retryable-status"
	ReasonNonRetryableStatus = "non-retryable-status"
	ReasonRetriesExhausted   = "retries-exhausted"
)

// Decision is the transient verdict for one attempt.
type Decision struct {
	ShouldRetry bool
	Wait        time.Duration
	Reason      string
}

// DelaySource exposes the shared adaptive delay.
type DelaySource interface {
	CurrentDelay() time.Duration
	BackoffFactor() float64
}

// Config carries the retry budget and backoff inputs.
type Config struct {
	// MaxRetries counts retries after the first attempt.
	MaxRetries int
	RetryCodes status.RetryCodes
	// BaseBackoff seeds exponential backoff for network errors.
	BaseBackoff time.Duration
	// MaxBackoff caps network backoff; zero means uncapped.
	MaxBackoff time.Duration
}

// Policy implements the retry rules.
type Policy struct {
	cfg   Config
	delay DelaySource
}

// NewPolicy builds a Policy. delay couples status retries to the adaptive
// pacing; without one, status retries fall back to BaseBackoff.
func NewPolicy(cfg Config, delay DelaySource) *Policy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryCodes == nil {
		cfg.RetryCodes = status.NewRetryCodes(status.DefaultRetryCodes...)
	}
	return &Policy{cfg: cfg, delay: delay}
}

// MaxAttempts is the largest number of attempts a URL can receive.
func (p *Policy) MaxAttempts() int {
	return p.cfg.MaxRetries + 1
}

// Decide evaluates the outcome of attempt number attempt (1-based).
func (p *Policy) Decide(attempt int, last download.Outcome) Decision {
	if last.Succeeded {
		return Decision{Reason: ReasonSuccess}
	}
	isNetwork := last.StatusCode == 0
	if !isNetwork && !p.cfg.RetryCodes.Contains(last.StatusCode) {
		return Decision{Reason: ReasonNonRetryableStatus}
	}
	if attempt > p.cfg.MaxRetries {
		return Decision{Reason: ReasonRetriesExhausted}
	}
	if isNetwork {
		return Decision{ShouldRetry: true, Wait: p.networkBackoff(attempt), Reason: ReasonNetworkError}
	}
	return Decision{ShouldRetry: true, Wait: p.statusBackoff(), Reason: ReasonRetryableStatus}
}

func (p *Policy) networkBackoff(attempt int) time.Duration {
	ceiling := time.Duration(math.MaxInt64)
	if p.cfg.MaxBackoff > 0 {
		ceiling = p.cfg.MaxBackoff
	}
	// compare in float space; converting an out-of-range float to Duration is undefined
	wait := float64(p.cfg.BaseBackoff) * math.Pow(2, float64(attempt-1))
	if math.IsNaN(wait) || wait >= float64(ceiling) {
		return ceiling
	}
	if wait < 0 {
		return 0
	}
	return time.Duration(wait)
}

func (p *Policy) statusBackoff() time.Duration {
	if p.delay == nil {
		return p.cfg.BaseBackoff
	}
	return time.Duration(float64(p.delay.CurrentDelay()) * p.delay.BackoffFactor())
}
