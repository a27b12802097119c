package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/fastygo/sales/domain"
)

const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 50 * time.Millisecond
	DefaultMaxDelay   = 2 * time.Second
)

// Config configures exponential backoff retry behavior.
type Config struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // delay before the first retry, doubled afterwards
	MaxDelay   time.Duration // upper bound for a single delay
	// Retryable decides which errors are transient. Defaults to write conflicts.
	Retryable func(error) bool
	// Exhausted wraps the last error once retries run out. Defaults to
	// domain.ErrConcurrencyExhausted.
	Exhausted error
	// OnRetry is called before sleeping; attempt starts at 1.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns the policy used for sequence allocation races.
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

func (c Config) normalized() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Retryable == nil {
		c.Retryable = domain.IsConcurrencyConflict
	}
	if c.Exhausted == nil {
		c.Exhausted = domain.ErrConcurrencyExhausted
	}
	return c
}

// Delay returns the backoff before retry number attempt (1-based).
func (c Config) Delay(attempt int) time.Duration {
	c = c.normalized()
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// Do runs fn until it succeeds, fails with a non-retryable error, retries are
// exhausted or ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for functions that produce a result.
func DoValue[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()
	var zero T

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !cfg.Retryable(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt >= cfg.MaxRetries {
			return zero, fmt.Errorf("%w: %w", cfg.Exhausted, err)
		}

		delay := cfg.Delay(attempt + 1)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
