package systemd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(state string) (bool, error) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
	return true, nil
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func TestLifecycleStates(t *testing.T) {
	t.Parallel()
	var r recorder
	_, _ = Ready(r.notify)
	_, _ = Reloading(r.notify)
	_, _ = Stopping(r.notify)
	require.Equal(t, []string{daemon.SdNotifyReady, daemon.SdNotifyReloading, daemon.SdNotifyStopping}, r.states)
}

func TestWatchdogPingsUntilCanceled(t *testing.T) {
	t.Parallel()
	var r recorder
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watchdog(ctx, r.notify, 20*time.Millisecond, nil) }()

	require.Eventually(t, func() bool { return r.count(daemon.SdNotifyWatchdog) >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestWatchdogSkipsWhenUnhealthy(t *testing.T) {
	t.Parallel()
	var r recorder
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := Watchdog(ctx, r.notify, 10*time.Millisecond, func() error { return errors.New("stuck") })
	require.NoError(t, err)
	require.Zero(t, r.count(daemon.SdNotifyWatchdog))
}

func TestWatchdogDisabledBlocksUntilDone(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, Watchdog(ctx, func(string) (bool, error) {
		t.Fatal("unexpected notify")
		return false, nil
	}, 0, nil))
}
