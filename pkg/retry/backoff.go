package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the wait before a retry attempt.
type BackoffStrategy interface {
	// NextDelay returns the delay before the given attempt (1-based).
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter.
type ExponentialBackoff struct {
	// BaseDelay is the initial delay duration.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// Multiplier is the factor by which delay grows per attempt.
	Multiplier float64
	// JitterFactor randomizes the delay in both directions (0.0 to 1.0).
	JitterFactor float64
}

// DefaultExponentialBackoff returns a backoff with conservative defaults.
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay calculates the next delay with exponential growth and jitter.
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// ConstantBackoff waits the same duration before every retry.
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns the constant delay.
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Wait sleeps for delay or until the context is cancelled.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
