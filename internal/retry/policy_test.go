package retry

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-downloader/internal/download"
	"github.com/JakeFAU/site-downloader/internal/status"
)

type fixedDelay struct {
	delay  time.Duration
	factor float64
}

func (f fixedDelay) CurrentDelay() time.Duration { return f.delay }
func (f fixedDelay) BackoffFactor() float64      { return f.factor }

func statusFailure(code int) download.Outcome {
	return download.FailureOutcome(code, download.ErrorRetryableStatus, 0, nil)
}

func networkFailure() download.Outcome {
	return download.FailureOutcome(0, download.ErrorNetworkTimeout, 0, errors.New("timeout"))
}

func TestDecide_Success(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{MaxRetries: 3}, nil)
	d := p.Decide(1, download.SuccessOutcome(200, 10, time.Millisecond))
	assert.Equal(t, Decision{Reason: ReasonSuccess}, d)
}

func TestDecide_NetworkErrorBacksOffExponentially(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{MaxRetries: 5, BaseBackoff: 100 * time.Millisecond}, nil)
	for attempt, want := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
		4: 800 * time.Millisecond,
	} {
		d := p.Decide(attempt, networkFailure())
		require.True(t, d.ShouldRetry)
		require.Equal(t, ReasonNetworkError, d.Reason)
		require.Equal(t, want, d.Wait, "attempt %d", attempt)
	}
}

func TestDecide_NetworkBackoffCap(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{MaxRetries: 10, BaseBackoff: time.Second, MaxBackoff: 3 * time.Second}, nil)
	assert.Equal(t, 3*time.Second, p.Decide(6, networkFailure()).Wait)
}

func TestDecide_UncappedNetworkBackoffSaturates(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{MaxRetries: 5000, BaseBackoff: time.Second}, nil)
	for _, attempt := range []int{40, 64, 1100, 4999} {
		wait := p.Decide(attempt, networkFailure()).Wait
		assert.Equal(t, time.Duration(math.MaxInt64), wait, "attempt %d", attempt)
	}
	assert.Equal(t, 4*time.Second, p.Decide(3, networkFailure()).Wait)
}

func TestDecide_RetryableStatusCouplesToAdaptiveDelay(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{
		MaxRetries: 3,
		RetryCodes: status.NewRetryCodes(429, 500),
	}, fixedDelay{delay: 40 * time.Millisecond, factor: 2})

	d := p.Decide(1, statusFailure(429))
	assert.True(t, d.ShouldRetry)
	assert.Equal(t, ReasonRetryableStatus, d.Reason)
	assert.Equal(t, 80*time.Millisecond, d.Wait)
}

func TestDecide_NonRetryableStatusNeverRetries(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{MaxRetries: 3, RetryCodes: status.NewRetryCodes(429, 500)}, nil)
	for _, code := range []int{403, 404, 502} {
		d := p.Decide(1, statusFailure(code))
		assert.False(t, d.ShouldRetry)
		assert.Equal(t, ReasonNonRetryableStatus, d.Reason, "code %d", code)
	}
	// still non-retryable once the budget is gone
	assert.Equal(t, ReasonNonRetryableStatus, p.Decide(9, statusFailure(404)).Reason)
}

func TestDecide_RetriesExhausted(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{MaxRetries: 3}, nil)
	for attempt := 1; attempt <= 3; attempt++ {
		require.True(t, p.Decide(attempt, statusFailure(500)).ShouldRetry)
	}
	d := p.Decide(4, statusFailure(500))
	assert.False(t, d.ShouldRetry)
	assert.Equal(t, ReasonRetriesExhausted, d.Reason)
	assert.Equal(t, 4, p.MaxAttempts())
}

func TestDecide_ZeroRetriesMeansOneAttempt(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{MaxRetries: 0}, nil)
	assert.Equal(t, 1, p.MaxAttempts())
	assert.Equal(t, ReasonRetriesExhausted, p.Decide(1, networkFailure()).Reason)
	assert.Equal(t, ReasonRetriesExhausted, p.Decide(1, statusFailure(503)).Reason)
}
