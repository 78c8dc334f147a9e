package shutdown

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithSignalsCancelsOnSignal(t *testing.T) {
	// SIGUSR1 keeps the test runner's own INT/TERM handling out of the way.
	ctx, cancel := WithSignals(context.Background(), syscall.SIGUSR1)
	defer cancel()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled on signal")
	}
}

func TestWithSignalsCancelFuncWorks(t *testing.T) {
	ctx, cancel := WithSignals(context.Background(), syscall.SIGUSR2)
	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled by cancel func")
	}
}
