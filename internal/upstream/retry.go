package upstream

import (
	"context"
	"math"
	"time"
)

type RetryConfig struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int

	// BackoffFactor scales the sleep before each retry. The first retry is
	// immediate; retry n waits BackoffFactor * 2^(n-1) seconds.
	BackoffFactor float64

	MaxBackoff time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    5,
		BackoffFactor: 1.5,
		MaxBackoff:    120 * time.Second,
	}
}

// Backoff returns the sleep before retry number n (1-based).
func (c RetryConfig) Backoff(n int) time.Duration {
	if n <= 1 || c.BackoffFactor <= 0 {
		return 0
	}
	secs := c.BackoffFactor * math.Pow(2, float64(n-1))
	d := time.Duration(secs * float64(time.Second))
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
