package resilience

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// newSchedule builds the wait schedule for a spec. Exponential schedules use
// the library implementation; jitter and the MaxDelay cap wrap every kind.
func newSchedule(s Spec) backoff.BackOff {
	var b backoff.BackOff
	switch s.Backoff {
	case BackoffExponential:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = s.BaseDelay
		eb.Multiplier = 2
		eb.RandomizationFactor = 0
		if s.Jitter {
			eb.RandomizationFactor = 0.5
		}
		eb.MaxInterval = time.Duration(math.MaxInt64)
		if s.MaxDelay > 0 {
			eb.MaxInterval = s.MaxDelay
		}
		eb.Reset()
		b = eb
	case BackoffLinear:
		b = &linearBackOff{step: s.BaseDelay}
	default:
		b = backoff.NewConstantBackOff(s.BaseDelay)
	}
	if s.Jitter && s.Backoff != BackoffExponential {
		b = &jitterBackOff{inner: b}
	}
	if s.MaxDelay > 0 {
		b = &cappedBackOff{inner: b, max: s.MaxDelay}
	}
	return b
}

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step time.Duration
	n    int64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

// jitterBackOff spreads each wait uniformly over [d/2, 3d/2).
type jitterBackOff struct {
	inner backoff.BackOff
}

func (b *jitterBackOff) NextBackOff() time.Duration {
	d := b.inner.NextBackOff()
	if d <= 0 {
		return d
	}
	return time.Duration(float64(d) * (0.5 + rand.Float64()))
}

func (b *jitterBackOff) Reset() {
	b.inner.Reset()
}

type cappedBackOff struct {
	inner backoff.BackOff
	max   time.Duration
}

func (b *cappedBackOff) NextBackOff() time.Duration {
	d := b.inner.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	return min(d, b.max)
}

func (b *cappedBackOff) Reset() {
	b.inner.Reset()
}
