package retry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Unbounded as max retries keeps retrying until the operation succeeds or ctx is done
const Unbounded = -1

// ExponentialBackoffStrategy implements retry with exponential backoff
type ExponentialBackoffStrategy struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	operation    string
	recoverable  func(error) bool
	onRetry      func(attempt int, delay time.Duration, err error)
}

// Option customizes an ExponentialBackoffStrategy
type Option func(*ExponentialBackoffStrategy)

// RetryAll treats every error as recoverable
func RetryAll() Option {
	return func(s *ExponentialBackoffStrategy) {
		s.recoverable = func(err error) bool { return err != nil }
	}
}

// WithClassifier replaces the default recoverable error check
func WithClassifier(fn func(error) bool) Option {
	return func(s *ExponentialBackoffStrategy) { s.recoverable = fn }
}

// WithOperationName labels retry logs
func WithOperationName(name string) Option {
	return func(s *ExponentialBackoffStrategy) { s.operation = name }
}

// WithOnRetry is called before every backoff sleep
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(s *ExponentialBackoffStrategy) { s.onRetry = fn }
}

// NewExponentialBackoffStrategy creates a new ExponentialBackoffStrategy
func NewExponentialBackoffStrategy(maxRetries int, initialDelay, maxDelay time.Duration, opts ...Option) *ExponentialBackoffStrategy {
	s := &ExponentialBackoffStrategy{
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		operation:    "operation",
		recoverable:  isRecoverableError,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs the operation with exponential backoff retry logic
func (s *ExponentialBackoffStrategy) Execute(ctx context.Context, operation Operation) error {
	var lastErr error
	delay := s.initialDelay

	for attempt := 0; s.unbounded() || attempt <= s.maxRetries; attempt++ {
		err := operation()

		if err == nil {
			if attempt > 0 {
				slog.Info("Operation succeeded after retry",
					"operation", s.operation,
					"attempt", attempt+1)
			}
			return nil
		}

		lastErr = err

		if !s.recoverable(err) {
			slog.Error("Non-recoverable error, failing immediately",
				"operation", s.operation,
				"error", err,
				"attempt", attempt+1)
			return err
		}

		if !s.unbounded() && attempt >= s.maxRetries {
			break
		}

		slog.Warn("Operation failed, retrying with exponential backoff",
			"operation", s.operation,
			"attempt", attempt+1,
			"retry_in_seconds", delay.Seconds(),
			"error", err)

		if s.onRetry != nil {
			s.onRetry(attempt+1, delay, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = s.nextDelay(delay)
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", s.operation, s.maxRetries+1, lastErr)
}

// Name returns the strategy name
func (s *ExponentialBackoffStrategy) Name() string {
	return "ExponentialBackoff"
}

func (s *ExponentialBackoffStrategy) unbounded() bool {
	return s.maxRetries < 0
}

func (s *ExponentialBackoffStrategy) nextDelay(delay time.Duration) time.Duration {
	delay *= 2
	if delay > s.maxDelay || delay <= 0 {
		delay = s.maxDelay
	}
	return delay
}

// isRecoverableError determines if an error is recoverable and worth retrying
func isRecoverableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// Network and gRPC transport errors that are typically recoverable
	recoverablePatterns := []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"broken pipe",
		"i/o timeout",
		"eof",
		"tls handshake timeout",
		"no such host",
		"connection timed out",
		"dial tcp",
		"read: connection reset",
		"write: broken pipe",
		"code = unavailable",
		"deadline exceeded",
		"bad handshake",
	}

	for _, pattern := range recoverablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
