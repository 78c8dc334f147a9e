package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Policy configures one wrapped outbound call. Zero values mean: no retries,
// no per-attempt timeout, no breaker.
type Policy struct {
	MaxRetries        int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	Jitter            bool
	Timeout           time.Duration
	Breaker           *Breaker
}

// Do runs op with retry, backoff, per-attempt timeout and circuit breaking.
// Only transient failures are retried; permanent ones propagate immediately
// without consuming a retry. An open circuit short-circuits the remaining
// attempts.
func Do[T any](ctx context.Context, pol Policy, op func(context.Context) (T, error)) (T, error) {
	return DoWithFallback(ctx, pol, op, nil)
}

// DoWithFallback is Do plus a fallback invoked with the terminal error when
// retries are exhausted or the circuit is open. Permanent errors bypass the
// fallback and propagate as-is.
func DoWithFallback[T any](ctx context.Context, pol Policy, op func(context.Context) (T, error), fallback func(error) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := pol.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if pol.Breaker != nil {
			if err := pol.Breaker.Allow(); err != nil {
				lastErr = err
				break
			}
		}

		res, err := runAttempt(ctx, pol.Timeout, op)
		if err == nil {
			if pol.Breaker != nil {
				pol.Breaker.Success()
			}
			return res, nil
		}

		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = attemptTimeout(attempt, err)
		}
		if ctx.Err() != nil {
			// The caller is gone; report that, not the attempt failure.
			return zero, ctx.Err()
		}

		transient := IsTransient(err)
		if pol.Breaker != nil && transient {
			pol.Breaker.Failure()
		}
		if !transient {
			return zero, err
		}

		lastErr = err
		if attempt < attempts {
			if err := sleep(ctx, backoffDelay(pol, attempt)); err != nil {
				return zero, err
			}
		}
	}

	if fallback != nil {
		return fallback(lastErr)
	}
	return zero, lastErr
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := op(attemptCtx)
	if err == nil && attemptCtx.Err() != nil {
		err = attemptCtx.Err()
	}
	return res, err
}

// backoffDelay computes the wait before retry n (1-indexed attempt that just
// failed): base * multiplier^(n-1), plus uniform jitter in [0, delay] when
// enabled so concurrent callers do not retry in lockstep.
func backoffDelay(pol Policy, attempt int) time.Duration {
	mult := pol.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(pol.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= mult
	}
	d := time.Duration(delay)
	if pol.Jitter && d > 0 {
		d += rand.N(d + 1)
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
