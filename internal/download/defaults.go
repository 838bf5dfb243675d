package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SystemClock implements Clock using time.Now in UTC.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// SHA256Hasher implements Hasher with a hex SHA-256 digest.
type SHA256Hasher struct{}

// Hash hashes the input and returns a hex digest.
func (SHA256Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// TimerSleeper implements Sleeper with a stoppable timer.
type TimerSleeper struct{}

// Sleep waits for d, returning early with ctx's error if it finishes first.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
