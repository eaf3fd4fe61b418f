package retry

import (
	"context"
	"log/slog"
	"time"
)

// Strategy defines the interface for retry strategies
type Strategy interface {
	// Execute runs the operation with the configured retry logic
	Execute(ctx context.Context, operation Operation) error

	// Name returns the name of the strategy for logging
	Name() string
}

// Operation is a function that can be retried
type Operation func() error

// Config holds retry configuration
type Config struct {
	Enabled      bool          // Enable/disable retry mechanism
	MaxRetries   int           // Maximum number of retry attempts, Unbounded to never give up
	InitialDelay time.Duration // Initial delay before first retry
	MaxDelay     time.Duration // Maximum delay between retries
}

// DefaultConfig is the node bootstrap policy: 1s doubling up to 64s, forever
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxRetries:   Unbounded,
		InitialDelay: time.Second,
		MaxDelay:     64 * time.Second,
	}
}

// NewStrategy creates a retry strategy based on configuration
func NewStrategy(config Config, opts ...Option) Strategy {
	if !config.Enabled {
		slog.Info("Retry disabled, using NoRetryStrategy")
		return NewNoRetryStrategy()
	}

	slog.Debug("Retry enabled, using ExponentialBackoffStrategy",
		"max_retries", config.MaxRetries,
		"initial_delay_sec", config.InitialDelay.Seconds(),
		"max_delay_sec", config.MaxDelay.Seconds(),
	)

	return NewExponentialBackoffStrategy(
		config.MaxRetries,
		config.InitialDelay,
		config.MaxDelay,
		opts...,
	)
}
