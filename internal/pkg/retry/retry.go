// Package retry runs an operation with exponential backoff until it succeeds,
// fails permanently, exhausts its attempts or the context is done.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config holds configuration for retry behavior.
type Config struct {
	// MaxRetries is the maximum number of retry attempts (0 means no retries, just the initial attempt).
	MaxRetries int

	// InitialBackoff is the initial backoff duration before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps both exponential growth and server-requested delays.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry (default: 2.0).
	BackoffFactor float64

	// Jitter adds rand(0, backoff) to each computed wait.
	Jitter bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
}

// IsRetryableFunc determines if an error should trigger a retry.
type IsRetryableFunc func(error) bool

// OnRetryFunc is called before each retry attempt (optional, for logging/metrics).
// attempt is 1-indexed (first retry is attempt 1).
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// PermanentError marks an error that must not be retried whatever the
// IsRetryableFunc says.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or an error it wraps, is permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Delayer is implemented by errors that carry a server-requested delay, such
// as an HTTP 429 with Retry-After. A positive delay replaces the computed
// backoff for the next attempt.
type Delayer interface {
	RetryAfter() time.Duration
}

// Do executes fn until it succeeds, returns a permanent or non-retryable
// error, or the retries are exhausted. fn is called at least once. A nil
// isRetryable retries every non-permanent error.
//
// Example:
//
//	quotes, err := retry.Do(ctx, retry.DefaultConfig(), isTransient, nil, func() (Quotes, error) {
//	    return fetch(ctx)
//	})
func Do[T any](
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func() (T, error),
) (T, error) {
	var zero T
	cfg.applyDefaults()

	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := nextWait(cfg, backoff, lastErr)
			if onRetry != nil {
				onRetry(attempt, lastErr, wait)
			}
			if err := sleep(ctx, wait); err != nil {
				return zero, fmt.Errorf("context cancelled while retrying: %w", err)
			}
			backoff = min(time.Duration(float64(backoff)*cfg.BackoffFactor), cfg.MaxBackoff)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) || (isRetryable != nil && !isRetryable(err)) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("operation failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// DoVoid is like Do but for functions that don't return a value.
func DoVoid(
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func() error,
) error {
	_, err := Do(ctx, cfg, isRetryable, onRetry, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func nextWait(cfg Config, backoff time.Duration, lastErr error) time.Duration {
	var d Delayer
	if errors.As(lastErr, &d) {
		if after := d.RetryAfter(); after > 0 {
			return min(after, cfg.MaxBackoff)
		}
	}
	if cfg.Jitter && backoff > 0 {
		return backoff + rand.N(backoff)
	}
	return backoff
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
