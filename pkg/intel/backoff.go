package intel

import (
	"context"
	"math"
	"time"
)

// Backoff describes a bounded exponential retry schedule.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultBackoff is five attempts, waiting 1s, 2s, 4s and 8s in between.
var DefaultBackoff = Backoff{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	Multiplier:  2,
}

// Delay returns how long to wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	return time.Duration(float64(b.BaseDelay) * math.Pow(mult, float64(attempt-1)))
}

// Attempts returns MaxAttempts, treating anything below 1 as a single try.
func (b Backoff) Attempts() int {
	if b.MaxAttempts < 1 {
		return 1
	}
	return b.MaxAttempts
}

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
