package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestCircuitBreakerWithRetry tests circuit breaker and retry working together
func TestCircuitBreakerWithRetry(t *testing.T) {
	cb := NewCircuitBreaker(DefaultConfig("test-service"))
	retryConfig := &RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}

	callCount := 0
	testErr := errors.New("test error")

	fn := func(ctx context.Context) error {
		callCount++
		if callCount <= 2 {
			return testErr
		}
		return nil
	}

	err := RetryContextWithCircuitBreaker(context.Background(), fn, retryConfig, cb)
	if err != nil {
		t.Errorf("Expected success after retries, got error: %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (1 initial + 2 retries), got %d", callCount)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected circuit breaker to be closed, got %s", cb.State())
	}
}

// TestCircuitBreakerOpensOnFailures tests that circuit breaker opens after failures
func TestCircuitBreakerOpensOnFailures(t *testing.T) {
	config := &Config{
		Name:        "test-failing-service",
		MaxRequests: 1,
		Interval:    1 * time.Second,
		Timeout:     100 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	cb := NewCircuitBreaker(config)
	testErr := errors.New("persistent error")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error {
			return testErr
		})
	}

	if cb.State() != StateOpen {
		t.Errorf("Expected circuit breaker to be open, got %s", cb.State())
	}

	err := cb.Execute(func() error {
		t.Error("Function should not be executed when circuit is open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
}

// TestCircuitBreakerHalfOpen tests half-open state recovery
func TestCircuitBreakerHalfOpen(t *testing.T) {
	config := &Config{
		Name:        "test-recovery-service",
		MaxRequests: 2,
		Interval:    1 * time.Second,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	}

	cb := NewCircuitBreaker(config)
	testErr := errors.New("error")

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return testErr })
	}

	if cb.State() != StateOpen {
		t.Fatalf("Expected circuit breaker to be open")
	}

	time.Sleep(60 * time.Millisecond)

	err := cb.Execute(func() error { return nil })
	if err != nil {
		t.Errorf("Expected success in half-open, got %v", err)
	}

	err = cb.Execute(func() error { return nil })
	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}

	if cb.State() != StateClosed {
		t.Errorf("Expected circuit breaker to be closed, got %s", cb.State())
	}
}

// TestRetryWithContextCancellation tests retry with context cancellation
func TestRetryWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := &RetryConfig{
		MaxAttempts:  10,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}

	callCount := 0
	testErr := errors.New("test error")

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := RetryContext(ctx, func(ctx context.Context) error {
		callCount++
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return testErr
		}
	}, config)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if callCount > 2 {
		t.Errorf("Expected at most 2 calls before cancellation, got %d", callCount)
	}
}

// TestRetryableErrors tests selective retry based on error type, exercised
// through the circuit-breaker-wrapped path every bankclient rail uses.
func TestRetryableErrors(t *testing.T) {
	retryableErr := errors.New("retryable error")
	nonRetryableErr := errors.New("non-retryable error")

	config := &RetryConfig{
		MaxAttempts:     2,
		InitialDelay:    10 * time.Millisecond,
		MaxDelay:        100 * time.Millisecond,
		Multiplier:      2.0,
		RetryableErrors: []error{retryableErr},
	}

	callCount := 0
	cb := NewCircuitBreaker(DefaultConfig("retryable-errors-test"))
	err := RetryContextWithCircuitBreaker(context.Background(), func(context.Context) error {
		callCount++
		return nonRetryableErr
	}, config, cb)

	if !errors.Is(err, nonRetryableErr) {
		t.Errorf("Expected non-retryable error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call (no retries), got %d", callCount)
	}

	callCount = 0
	cb2 := NewCircuitBreaker(DefaultConfig("retryable-errors-test-2"))
	err = RetryContextWithCircuitBreaker(context.Background(), func(context.Context) error {
		callCount++
		if callCount <= 2 {
			return retryableErr
		}
		return nil
	}, config, cb2)

	if err != nil {
		t.Errorf("Expected success after retries, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (1 initial + 2 retries), got %d", callCount)
	}
}

// TestIdempotencyKeyGeneration tests idempotency key generation
func TestIdempotencyKeyGeneration(t *testing.T) {
	key1 := GenerateKey("prefix", "data1", "data2")
	key2 := GenerateKey("prefix", "data1", "data2")
	if key1 != key2 {
		t.Error("Same inputs should produce same key")
	}

	key3 := GenerateKey("prefix", "data1", "data3")
	if key1 == key3 {
		t.Error("Different inputs should produce different keys")
	}
}

// BenchmarkCircuitBreakerExecute benchmarks circuit breaker execution
func BenchmarkCircuitBreakerExecute(b *testing.B) {
	cb := NewCircuitBreaker(DefaultConfig("benchmark-service"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cb.Execute(func() error {
			return nil
		})
	}
}

// BenchmarkIdempotencyKeyGeneration benchmarks key generation
func BenchmarkIdempotencyKeyGeneration(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = GenerateKey("pvp-settlement", "leg-a", "leg-b")
	}
}
