package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig defines configuration for Retry and RetryWithStats.
type RetryConfig struct {
	// MaxRetries is the number of retries attempted after the initial call.
	MaxRetries int

	// InitialBackoff is the backoff used before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration regardless of attempt count.
	MaxBackoff time.Duration

	// BackoffMultiplier is applied to the backoff after each attempt.
	BackoffMultiplier float64

	// Jitter adds up to +/-20% randomization to the computed backoff.
	Jitter bool

	// RetryableErrors decides whether a given error should be retried.
	RetryableErrors func(err error) bool
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		RetryableErrors:   DefaultRetryableErrors,
	}
}

// DefaultRetryableErrors classifies a nil error and context cancellation /
// circuit breaker errors as non-retryable; everything else is retryable.
func DefaultRetryableErrors(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrCircuitBreakerOpen),
		errors.Is(err, ErrCircuitBreakerTimeout):
		return false
	default:
		return true
	}
}

// RetryStats reports on the outcome of a RetryWithStats call.
type RetryStats struct {
	TotalAttempts   int
	SuccessfulCalls int
	TotalRetries    int
	AverageBackoff  time.Duration
}

// Retry calls fn until it succeeds, fn's error is non-retryable, MaxRetries
// is exhausted, or ctx is done.
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	_, err := RetryWithStats(ctx, config, fn)
	return err
}

// RetryWithStats behaves like Retry but also returns attempt/backoff stats.
func RetryWithStats(ctx context.Context, config RetryConfig, fn func() error) (RetryStats, error) {
	retryable := config.RetryableErrors
	if retryable == nil {
		retryable = DefaultRetryableErrors
	}

	var stats RetryStats
	var totalBackoff time.Duration
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		stats.TotalAttempts++

		if err := ctx.Err(); err != nil {
			return stats, err
		}

		lastErr = fn()
		if lastErr == nil {
			stats.SuccessfulCalls++
			if stats.TotalRetries > 0 {
				stats.AverageBackoff = totalBackoff / time.Duration(stats.TotalRetries)
			}
			return stats, nil
		}

		if !retryable(lastErr) {
			return stats, lastErr
		}
		if attempt == config.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, config)
		totalBackoff += backoff
		stats.TotalRetries++

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return stats, ctx.Err()
		case <-timer.C:
		}
	}

	if stats.TotalRetries > 0 {
		stats.AverageBackoff = totalBackoff / time.Duration(stats.TotalRetries)
	}
	return stats, lastErr
}

// ExponentialBackoff retries fn up to maxRetries times using a plain doubling
// backoff starting at initialBackoff, uncapped and without jitter.
func ExponentialBackoff(ctx context.Context, maxRetries int, initialBackoff time.Duration, fn func() error) error {
	config := RetryConfig{
		MaxRetries:        maxRetries,
		InitialBackoff:    initialBackoff,
		MaxBackoff:        time.Duration(1<<62) - 1,
		BackoffMultiplier: 2.0,
		Jitter:            false,
		RetryableErrors:   DefaultRetryableErrors,
	}
	return Retry(ctx, config, fn)
}

// RetryWithCircuitBreaker runs the bounded retry sequence for fn as a single
// guarded request against cb: if cb is already open, fn is never invoked and
// the breaker's ErrCircuitBreakerOpen is returned immediately; otherwise the
// whole Retry(ctx, config, fn) sequence runs and its overall outcome (not
// each individual attempt) is what updates cb's failure/success counters.
func RetryWithCircuitBreaker(ctx context.Context, config RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return cb.Execute(ctx, func() error {
		return Retry(ctx, config, fn)
	})
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	backoff := float64(config.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= config.BackoffMultiplier
	}
	if max := float64(config.MaxBackoff); backoff > max {
		backoff = max
	}
	if config.Jitter {
		jitter := (rand.Float64()*0.4 - 0.2) * backoff
		backoff += jitter
	}
	return time.Duration(backoff)
}
