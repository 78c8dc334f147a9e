package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	res, err := Do(context.Background(), Policy{MaxRetries: 3}, func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryBound(t *testing.T) {
	// maxRetries=3 means exactly 4 attempts for a persistently transient
	// failure: 1 initial + 3 retries.
	calls := 0
	pol := Policy{MaxRetries: 3, BaseDelay: time.Millisecond, BackoffMultiplier: 2}
	_, err := Do(context.Background(), pol, func(context.Context) (int, error) {
		calls++
		return 0, MarkTransient(errBoom)
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 4, calls)
}

func TestDo_PermanentNotRetried(t *testing.T) {
	calls := 0
	pol := Policy{MaxRetries: 5, BaseDelay: time.Millisecond}
	_, err := Do(context.Background(), pol, func(context.Context) (int, error) {
		calls++
		return 0, MarkPermanent(errBoom)
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	pol := Policy{MaxRetries: 3, BaseDelay: time.Millisecond, BackoffMultiplier: 2}
	res, err := Do(context.Background(), pol, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", MarkTransient(errBoom)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, calls)
}

func TestDo_AttemptTimeoutIsTransient(t *testing.T) {
	calls := 0
	pol := Policy{MaxRetries: 1, Timeout: 5 * time.Millisecond, BaseDelay: time.Millisecond}
	_, err := Do(context.Background(), pol, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 2, calls)
}

func TestDo_CallerCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	pol := Policy{MaxRetries: 10, BaseDelay: 50 * time.Millisecond}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, pol, func(context.Context) (int, error) {
		calls++
		return 0, MarkTransient(errBoom)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 2)
}

func TestDoWithFallback_InvokedOnExhaustion(t *testing.T) {
	pol := Policy{MaxRetries: 2, BaseDelay: time.Millisecond}
	res, err := DoWithFallback(context.Background(), pol,
		func(context.Context) (int, error) { return 0, MarkTransient(errBoom) },
		func(terminal error) (int, error) {
			assert.ErrorIs(t, terminal, errBoom)
			return -1, nil
		})
	require.NoError(t, err)
	assert.Equal(t, -1, res)
}

func TestDoWithFallback_NotInvokedOnPermanent(t *testing.T) {
	pol := Policy{MaxRetries: 2, BaseDelay: time.Millisecond}
	fallbackCalled := false
	_, err := DoWithFallback(context.Background(), pol,
		func(context.Context) (int, error) { return 0, MarkPermanent(errBoom) },
		func(error) (int, error) {
			fallbackCalled = true
			return -1, nil
		})
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, fallbackCalled)
}

func TestBackoffDelay_Exponential(t *testing.T) {
	pol := Policy{BaseDelay: 100 * time.Millisecond, BackoffMultiplier: 2}
	assert.Equal(t, 100*time.Millisecond, backoffDelay(pol, 1))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(pol, 2))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(pol, 3))
}

func TestBackoffDelay_JitterBounds(t *testing.T) {
	pol := Policy{BaseDelay: 100 * time.Millisecond, BackoffMultiplier: 2, Jitter: true}
	for i := 0; i < 100; i++ {
		d := backoffDelay(pol, 2)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.LessOrEqual(t, d, 400*time.Millisecond)
	}
}

func TestIsTransient_Classification(t *testing.T) {
	assert.True(t, IsTransient(MarkTransient(errBoom)))
	assert.False(t, IsTransient(MarkPermanent(errBoom)))
	assert.True(t, IsTransient(errBoom)) // unclassified defaults to transient
	assert.False(t, IsTransient(ErrCircuitOpen))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))
}
