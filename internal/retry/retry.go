// Package retry wraps outbound calls with exponential backoff. Errors are
// classified as retryable (rate limits, server errors, timeouts, connection
// resets) or fatal; fatal errors surface immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"syscall"
	"time"
)

// maxJitter is the upper bound of the random delay added to each backoff.
const maxJitter = time.Second

// Config controls the backoff schedule for one call site.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// Default suits ordinary API calls.
var Default = Config{
	MaxAttempts:  3,
	InitialDelay: 1 * time.Second,
	MaxDelay:     10 * time.Second,
	Multiplier:   2,
	Jitter:       true,
}

// GitHub is tuned for GitHub's rate limiting: more attempts, longer waits.
var GitHub = Config{
	MaxAttempts:  6,
	InitialDelay: 5 * time.Second,
	MaxDelay:     120 * time.Second,
	Multiplier:   2,
	Jitter:       true,
}

// RateLimitError marks an error as an explicit rate-limit signal. RetryAfter,
// when non-zero, is the wait the server asked for (Retry-After header or a
// reset timestamp) and overrides the computed backoff.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// HTTPError carries an HTTP status code so the classifier can distinguish
// server errors (retryable) from other client errors (fatal).
type HTTPError struct {
	StatusCode int
	Err        error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %v", e.StatusCode, e.Err)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// Retryable reports whether err is worth retrying: rate limits, HTTP
// 408/429/5xx, timeouts, and connection resets. Everything else is fatal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}

	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == 408 || he.StatusCode == 429 || (he.StatusCode >= 500 && he.StatusCode < 600)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

// retryAfterHint extracts a server-provided wait from err, or 0.
func retryAfterHint(err error) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter
	}
	return 0
}

// Do runs fn under cfg's backoff schedule, logging each retry. The operation
// name tags retries and the final error so failures can be traced back to a
// call site. Fatal errors and exhausted attempts return the last error
// wrapped with the operation name and attempt count.
func Do(ctx context.Context, logger *slog.Logger, op string, cfg Config, fn func() error) error {
	_, err := DoValue(ctx, logger, op, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, logger *slog.Logger, op string, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = Default.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !Retryable(err) {
			return zero, fmt.Errorf("%s: fatal on attempt %d: %w", op, attempt, err)
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := backoff(cfg, attempt, retryAfterHint(err))
		logger.Warn("retrying operation",
			"op", op,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("%s: giving up after %d attempts: %w", op, cfg.MaxAttempts, lastErr)
}

// backoff computes the wait before the next attempt (attempt is 1-indexed).
// A server-provided hint replaces the exponential schedule; both are capped
// at MaxDelay before jitter is added.
func backoff(cfg Config, attempt int, hint time.Duration) time.Duration {
	delay := hint
	if delay <= 0 {
		delay = time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1)))
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		delay += time.Duration(rand.Float64() * float64(maxJitter))
	}
	return delay
}
