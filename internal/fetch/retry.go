// Package fetch holds the network-fetch plumbing shared by the source
// adapters: bounded retries with exponential backoff, a per-host politeness
// gate and a bounded worker pool.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// ErrRetriesExhausted is returned once every attempt of a fetch has failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

const (
	defaultAttempts   = 3
	defaultBackoff    = time.Second
	defaultMaxBackoff = 30 * time.Second
)

// RetryPolicy bounds a single fetch.
type RetryPolicy struct {
	Attempts   int           // Total attempts, including the first
	Backoff    time.Duration // Wait after the first failed attempt, doubled each time
	MaxBackoff time.Duration
	Timeout    time.Duration // Per-attempt timeout, zero for none
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = defaultAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	return p
}

// Delay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	delay := float64(p.Backoff) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	return time.Duration(delay)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error that retrying cannot fix, such as a 404.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry runs fn until it succeeds, returns a permanent error, or the policy's
// attempts are used up. Context cancellation is returned as-is so callers can
// tell an interrupt from an upstream failure.
func Retry[T any](ctx context.Context, p RetryPolicy, log zerolog.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := runAttempt(ctx, p.Timeout, fn)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if IsPermanent(err) {
			return zero, err
		}
		lastErr = err

		if attempt == p.Attempts {
			break
		}

		wait := p.Delay(attempt)
		log.Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Fetch failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetriesExhausted, p.Attempts, lastErr)
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
