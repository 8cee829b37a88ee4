// Package systemd talks to the service manager over the notify socket.
// Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyFunc sends one sd_notify state line. sent is false when no notify
// socket is configured.
type NotifyFunc func(state string) (sent bool, err error)

// Notify is the real NotifyFunc.
func Notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

func Ready(n NotifyFunc) (bool, error)    { return n(daemon.SdNotifyReady) }
func Stopping(n NotifyFunc) (bool, error) { return n(daemon.SdNotifyStopping) }
func Reloading(n NotifyFunc) (bool, error) {
	return n(daemon.SdNotifyReloading)
}

// WatchdogInterval reports how often the unit expects a keep-alive.
// Zero means the watchdog is off.
func WatchdogInterval() (time.Duration, error) {
	return daemon.SdWatchdogEnabled(false)
}

// Watchdog pings the service manager at half the interval until ctx ends.
// healthy is consulted before every ping; a failing check skips the ping so
// systemd restarts a wedged process.
func Watchdog(ctx context.Context, n NotifyFunc, interval time.Duration, healthy func() error) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && healthy() != nil {
				continue
			}
			if _, err := n(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
