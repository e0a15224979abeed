package services

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffCap  = 3 * time.Second
)

// Backoff is an exponential delay schedule: Base, 2*Base, 4*Base, ...
// never exceeding Cap. There is no jitter, so conflict retries are
// reproducible in tests.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBackoffBase, Cap: DefaultBackoffCap}
}

func (b Backoff) schedule() *backoff.ExponentialBackOff {
	maxInterval := b.Cap
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     b.Base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
	}
	eb.Reset()
	return eb
}

// Delay returns the wait before retry number n, counting from 1.
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 || b.Base <= 0 {
		return 0
	}
	eb := b.schedule()
	var d time.Duration
	for i := 0; i < n; i++ {
		d = eb.NextBackOff()
		if d >= eb.MaxInterval {
			return eb.MaxInterval
		}
	}
	return d
}
