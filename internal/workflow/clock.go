package workflow

import "time"

// Clock supplies time to the executor. Backoff waits go through After so
// tests can drive retries without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// After waits on a real timer.
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
