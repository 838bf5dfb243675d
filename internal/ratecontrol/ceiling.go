package ratecontrol

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Ceiling caps the request rate per host with a token bucket. It sits on top
// of the adaptive delay and never lowers it.
type Ceiling struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewCeiling returns a limiter allowing rps requests per second per host.
// A non-positive rps disables the ceiling.
func NewCeiling(rps float64) *Ceiling {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Ceiling{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    1,
	}
}

// Wait blocks until the host of rawURL may issue another request.
func (c *Ceiling) Wait(ctx context.Context, rawURL string) error {
	if c == nil || c.limit == rate.Inf {
		return nil
	}
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	c.mu.Lock()
	limiter, ok := c.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(c.limit, c.burst)
		c.limiters[host] = limiter
	}
	c.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate ceiling wait: %w", err)
	}
	return nil
}
