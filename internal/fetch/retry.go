package fetch

import (
	"context"
	"time"
)

const (
	defaultMaxRetries  = 3
	defaultBackoffStep = time.Second
)

// RetryPolicy bounds how rate-limited calls are retried.
type RetryPolicy struct {
	MaxRetries int
	// Backoff returns the delay before retry n, counting from 1.
	Backoff func(n int) time.Duration
}

// DefaultRetryPolicy retries three times, waiting 1s, 2s, then 3s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: defaultMaxRetries, Backoff: Linear(defaultBackoffStep)}
}

// Linear returns a backoff of n*step.
func Linear(step time.Duration) func(int) time.Duration {
	return func(n int) time.Duration {
		if n < 1 {
			n = 1
		}
		return time.Duration(n) * step
	}
}

func (p RetryPolicy) delay(n int) time.Duration {
	if p.Backoff == nil {
		return Linear(defaultBackoffStep)(n)
	}
	return p.Backoff(n)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
