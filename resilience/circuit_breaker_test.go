package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_InitialState(t *testing.T) {
	breaker := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, 0, breaker.Failures())
}

func TestCircuitBreaker_SuccessfulExecution(t *testing.T) {
	breaker := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	called := false
	err := breaker.Execute(context.Background(), func() error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, StateClosed, breaker.State())
	assert.Zero(t, breaker.Failures())
}

func TestCircuitBreaker_FailuresLeadToOpen(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           3,
		Timeout:               100 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
		Name:                  "blob-store",
	}
	breaker := NewCircuitBreaker(config)

	for i := 0; i < config.MaxFailures; i++ {
		err := breaker.Execute(context.Background(), func() error {
			return errors.New("blob backend unavailable")
		})
		assert.Error(t, err)
		if i < config.MaxFailures-1 {
			assert.Equal(t, StateClosed, breaker.State())
		}
	}

	assert.Equal(t, StateOpen, breaker.State())

	err := breaker.Execute(context.Background(), func() error {
		t.Error("fn should not run once the blob-store breaker is open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
}

func TestCircuitBreaker_OpenToHalfOpenTransition(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               50 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
	}
	breaker := NewCircuitBreaker(config)

	for i := 0; i < config.MaxFailures; i++ {
		breaker.Execute(context.Background(), func() error { return errors.New("err") })
	}
	assert.Equal(t, StateOpen, breaker.State())

	time.Sleep(config.Timeout + 10*time.Millisecond)

	called := false
	err := breaker.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, StateHalfOpen, breaker.State())
}

func TestCircuitBreaker_HalfOpenToClosed(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               10 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
	}
	breaker := NewCircuitBreaker(config)

	for i := 0; i < config.MaxFailures; i++ {
		breaker.Execute(context.Background(), func() error { return errors.New("err") })
	}
	time.Sleep(config.Timeout + 5*time.Millisecond)

	for i := 0; i < config.SuccessThreshold; i++ {
		assert.NoError(t, breaker.Execute(context.Background(), func() error { return nil }))
	}

	assert.Equal(t, StateClosed, breaker.State())
}

func TestCircuitBreaker_HalfOpenToOpen(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               10 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
	}
	breaker := NewCircuitBreaker(config)

	for i := 0; i < config.MaxFailures; i++ {
		breaker.Execute(context.Background(), func() error { return errors.New("err") })
	}
	time.Sleep(config.Timeout + 5*time.Millisecond)

	breaker.Execute(context.Background(), func() error { return nil })
	assert.Equal(t, StateHalfOpen, breaker.State())

	err := breaker.Execute(context.Background(), func() error { return errors.New("err") })
	assert.Error(t, err)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestCircuitBreaker_RequestTimeout(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           3,
		Timeout:               100 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        20 * time.Millisecond,
	}
	breaker := NewCircuitBreaker(config)

	start := time.Now()
	err := breaker.Execute(context.Background(), func() error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	duration := time.Since(start)

	assert.ErrorIs(t, err, ErrCircuitBreakerTimeout)
	assert.Less(t, duration, 30*time.Millisecond)
	assert.Equal(t, 1, breaker.Failures())
}

func TestCircuitBreaker_MaxConcurrentRequests(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               10 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      5,
		RequestTimeout:        100 * time.Millisecond,
	}
	breaker := NewCircuitBreaker(config)

	for i := 0; i < config.MaxFailures; i++ {
		breaker.Execute(context.Background(), func() error { return errors.New("err") })
	}
	assert.Equal(t, StateOpen, breaker.State())

	time.Sleep(config.Timeout + 5*time.Millisecond)

	// Transition manually to half-open to avoid racing the concurrent-probe
	// slot against a second Execute call.
	breaker.TransitionToHalfOpen()
	assert.Equal(t, StateHalfOpen, breaker.State())

	assert.NoError(t, breaker.beforeRequest())

	err := breaker.Execute(context.Background(), func() error {
		t.Error("second half-open probe should not run while one is in flight")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)

	breaker.afterRequest()
}

func TestCircuitBreaker_Reset(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               100 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
	}
	breaker := NewCircuitBreaker(config)

	for i := 0; i < config.MaxFailures; i++ {
		breaker.Execute(context.Background(), func() error { return errors.New("err") })
	}
	assert.Equal(t, StateOpen, breaker.State())

	breaker.Reset()
	assert.Equal(t, StateClosed, breaker.State())
	assert.Zero(t, breaker.Failures())
}

func TestCircuitBreaker_Stats(t *testing.T) {
	config := CircuitBreakerConfig{
		MaxFailures:           3,
		Timeout:               100 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
	}
	breaker := NewCircuitBreaker(config)

	stats := breaker.Stats()
	assert.Equal(t, StateClosed, stats.State)
	assert.Zero(t, stats.Failures)

	for i := 0; i < 2; i++ {
		breaker.Execute(context.Background(), func() error { return errors.New("err") })
	}
	assert.Equal(t, 2, breaker.Stats().Failures)

	breaker.Execute(context.Background(), func() error { return errors.New("err") })
	assert.Equal(t, StateOpen, breaker.Stats().State)
}

func TestCircuitBreaker_OnStateChangeReportsNameAndTransition(t *testing.T) {
	type transition struct {
		name     string
		from, to CircuitBreakerState
	}
	var seen []transition

	config := CircuitBreakerConfig{
		MaxFailures:           1,
		Timeout:               10 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      1,
		RequestTimeout:        10 * time.Millisecond,
		Name:                  "metadata-store",
		OnStateChange: func(name string, from, to CircuitBreakerState) {
			seen = append(seen, transition{name, from, to})
		},
	}
	breaker := NewCircuitBreaker(config)

	breaker.Execute(context.Background(), func() error { return errors.New("store down") })
	assert.Equal(t, StateOpen, breaker.State())

	time.Sleep(config.Timeout + 5*time.Millisecond)
	breaker.Execute(context.Background(), func() error { return nil })
	assert.Equal(t, StateClosed, breaker.State())

	if assert.Len(t, seen, 2) {
		assert.Equal(t, transition{"metadata-store", StateClosed, StateOpen}, seen[0])
		assert.Equal(t, transition{"metadata-store", StateHalfOpen, StateClosed}, seen[1])
	}
}

func TestCircuitBreaker_OnStateChangeNotInvokedWithoutRealTransition(t *testing.T) {
	calls := 0
	config := DefaultCircuitBreakerConfig()
	config.OnStateChange = func(string, CircuitBreakerState, CircuitBreakerState) { calls++ }

	breaker := NewCircuitBreaker(config)
	breaker.Reset() // already closed: no genuine transition
	assert.Zero(t, calls)
}

func TestRetryWithCircuitBreaker_RetriesWithinOneGuardedCall(t *testing.T) {
	retryConfig := RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    1 * time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            false,
		RetryableErrors:   DefaultRetryableErrors,
	}
	cbConfig := CircuitBreakerConfig{
		MaxFailures:           3,
		Timeout:               50 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
		Name:                  "metadata-store",
	}
	breaker := NewCircuitBreaker(cbConfig)

	attempts := 0
	err := RetryWithCircuitBreaker(context.Background(), retryConfig, breaker, func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient metadata write failure")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestRetryWithCircuitBreaker_SkipsFnWhenBreakerAlreadyOpen(t *testing.T) {
	retryConfig := RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    1 * time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            false,
		RetryableErrors:   DefaultRetryableErrors,
	}
	cbConfig := CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               100 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
		RequestTimeout:        10 * time.Millisecond,
	}
	breaker := NewCircuitBreaker(cbConfig)

	for i := 0; i < cbConfig.MaxFailures; i++ {
		breaker.Execute(context.Background(), func() error { return errors.New("err") })
	}
	assert.Equal(t, StateOpen, breaker.State())

	attempts := 0
	err := RetryWithCircuitBreaker(context.Background(), retryConfig, breaker, func() error {
		attempts++
		return errors.New("err")
	})

	assert.Error(t, err)
	assert.Zero(t, attempts, "fn and its retries must never run while the breaker is open")
}
