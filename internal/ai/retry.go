package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// RetryConfig holds retry and circuit breaker settings for API calls.
type RetryConfig struct {
	MaxRetries        int           `yaml:"max_retries"`        // maximum retries after the first attempt (default: 3)
	InitialBackoff    time.Duration `yaml:"initial_backoff"`    // default: 1s
	MaxBackoff        time.Duration `yaml:"max_backoff"`        // default: 30s
	BackoffMultiplier float64       `yaml:"backoff_multiplier"` // default: 2.0
	Timeout           time.Duration `yaml:"timeout"`            // per-attempt timeout (default: 60s)

	CircuitBreakerEnabled bool          `yaml:"circuit_breaker_enabled"` // default: true
	FailureThreshold      int           `yaml:"failure_threshold"`       // failures before opening (default: 5)
	SuccessThreshold      int           `yaml:"success_threshold"`       // half-open successes before closing (default: 2)
	OpenTimeout           time.Duration `yaml:"open_timeout"`            // how long to stay open (default: 30s)

	// MaxConcurrentCalls bounds in-flight API calls (default: 3, 0 = unlimited).
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            3,
		InitialBackoff:        1 * time.Second,
		MaxBackoff:            30 * time.Second,
		BackoffMultiplier:     2.0,
		Timeout:               60 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
		MaxConcurrentCalls:    3,
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the state of the circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // normal operation
	CircuitOpen                         // failing fast
	CircuitHalfOpen                     // probing for recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker prevents cascading failures by failing fast after repeated
// API errors and probing periodically for recovery.
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
}

// NewCircuitBreaker creates a circuit breaker in the closed state.
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
	}
}

// Allow reports whether a request may proceed. An open circuit transitions
// to half-open once the open timeout has elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.openTimeout {
			cb.setState(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess notes a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.setState(CircuitClosed)
		}
	}
}

// RecordFailure notes a failed request. Any failure in half-open state
// reopens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.setState(CircuitOpen)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// setState must be called with the lock held.
func (cb *CircuitBreaker) setState(next CircuitState) {
	if cb.state == next {
		return
	}
	log.Printf("[AI] circuit breaker %s → %s (failures=%d)", cb.state, next, cb.failureCount)
	cb.state = next
	if next == CircuitClosed {
		cb.failureCount = 0
	}
	cb.successCount = 0
}

// retryWithBackoff executes fn with exponential backoff, honoring the
// concurrency semaphore and circuit breaker.
func (s *Supervisor) retryWithBackoff(ctx context.Context, operation string, fn func(context.Context) error) error {
	if s.concurrencySem != nil {
		if err := s.concurrencySem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquiring concurrency slot for %s: %w", operation, err)
		}
		defer s.concurrencySem.Release(1)
	}

	var lastErr error
	backoff := s.retry.InitialBackoff

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if s.circuitBreaker != nil {
			if err := s.circuitBreaker.Allow(); err != nil {
				return fmt.Errorf("%s blocked: %w", operation, err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.retry.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if s.circuitBreaker != nil {
				s.circuitBreaker.RecordSuccess()
			}
			if attempt > 0 {
				log.Printf("[AI] %s succeeded after %d retries", operation, attempt)
			}
			return nil
		}

		lastErr = err

		if !isRetriableError(err) {
			return err
		}
		if s.circuitBreaker != nil {
			s.circuitBreaker.RecordFailure()
		}
		if attempt == s.retry.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: context canceled: %w", operation, ctx.Err())
		}

		log.Printf("[AI] %s failed (attempt %d/%d), retrying in %v: %v",
			operation, attempt+1, s.retry.MaxRetries+1, backoff, err)

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * s.retry.BackoffMultiplier)
			if backoff > s.retry.MaxBackoff {
				backoff = s.retry.MaxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("%s: context canceled during backoff: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, s.retry.MaxRetries+1, lastErr)
}

// isRetriableError reports whether an API error is transient. Rate limits,
// server errors, and network failures are retriable; other client errors
// are not.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		return true
	}
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "service unavailable") {
		return true
	}
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") {
		return true
	}
	return false
}
