// Package sched provides the clock, timer and counting-semaphore
// primitives the engine needs: a millisecond monotonic clock, a timeout
// wheel ordering pending timers, and a thin wrapper around
// golang.org/x/sync/semaphore that bounds the number of outstanding AT
// requests.
package sched

import "time"

// Clock is the millisecond monotonic clock port described in the spec's
// "Clock & OS adapter" component. The default implementation wraps
// time.Now; tests substitute a fake clock to drive the timeout wheel
// deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by the real wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }
