// Package clock abstracts wall time so the replica's heartbeat, sweep, and
// sync-timeout timers can be driven deterministically in tests.
package clock

import "time"

// Clock is the subset of the time package the engine needs.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f once d has elapsed. Real clocks call f on its own
	// goroutine; the fake clock calls it synchronously from Advance.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer cancels a pending AfterFunc.
type Timer interface {
	// Stop prevents the call if it has not happened yet and reports
	// whether it did so.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
