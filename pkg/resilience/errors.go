package resilience

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTimeout marks an attempt that exceeded its per-attempt budget. It is
	// transient: the next attempt may still succeed.
	ErrTimeout = errors.New("resilience: attempt timed out")

	// ErrCircuitOpen is returned without invoking the operation while the
	// breaker for the target is open.
	ErrCircuitOpen = errors.New("resilience: circuit open")
)

type classified struct {
	err       error
	transient bool
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// MarkTransient tags err as retryable (network, timeout, 5xx-equivalent).
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, transient: true}
}

// MarkPermanent tags err as not retryable (validation, business rejection,
// 4xx-equivalent). Permanent errors propagate without consuming a retry.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, transient: false}
}

// IsTransient reports whether err should be retried. Unclassified errors are
// treated as transient infrastructure faults; permanence is opt-in via
// MarkPermanent. Context cancellation and an open circuit are never retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var c *classified
	if errors.As(err, &c) {
		return c.transient
	}
	return true
}

func attemptTimeout(attempt int, err error) error {
	return fmt.Errorf("attempt %d: %w", attempt, ErrTimeout)
}
