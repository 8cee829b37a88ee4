// Package timer is the one-shot timer primitive used by the scheduler.
//
// Production code uses Real(); tests drive a Fake clock by hand so no test
// races the wall clock.
package timer

import "time"

// Handle cancels a registered callback. Stop reports whether the call
// prevented the callback from running.
type Handle interface {
	Stop() bool
}

// Clock tells time and runs single-shot callbacks.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f once, in its own goroutine, after d elapses.
	// d <= 0 fires as soon as possible.
	AfterFunc(d time.Duration, f func()) Handle
}

type realClock struct{}

// Real returns the wall clock backed by time.AfterFunc.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Handle {
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, f)
}

// At registers f to run at the wall-clock instant at.
func At(c Clock, at time.Time, f func()) Handle {
	return c.AfterFunc(at.Sub(c.Now()), f)
}
