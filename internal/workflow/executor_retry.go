package workflow

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// backoffSchedule yields the wait before each retry: BaseDelay, doubling, capped
// at MaxDelay, with no jitter so runs are reproducible.
type backoffSchedule struct {
	b *backoff.ExponentialBackOff
}

func newBackoffSchedule(policy RetryPolicy, clock Clock) *backoffSchedule {
	base := policy.BaseDelay
	if base < 0 {
		base = 0
	}
	ceiling := policy.MaxDelay
	if ceiling < base {
		ceiling = base
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         ceiling,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               clock,
	}
	b.Reset()
	return &backoffSchedule{b: b}
}

// advance skips the waits already spent by attempts recorded before a resume.
func (s *backoffSchedule) advance(attempts int) {
	for i := 0; i < attempts; i++ {
		s.b.NextBackOff()
	}
}

func (s *backoffSchedule) next() time.Duration {
	d := s.b.NextBackOff()
	if d == backoff.Stop || d < 0 {
		return s.b.MaxInterval
	}
	return d
}
