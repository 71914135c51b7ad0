package relay

import (
	"math/rand"
	"time"
)

// Retry defines how transient node failures are re-attempted. The zero
// value means a single attempt with no retries.
type Retry struct {
	// MaxRetries is the number of attempts beyond the first (0 = no retry).
	MaxRetries int

	// Delay is the wait before the first retry.
	Delay time.Duration

	// MaxDelay caps the backoff delay (0 = uncapped).
	MaxDelay time.Duration

	// Multiplier is the backoff growth factor. Values <= 1 keep the delay
	// fixed.
	Multiplier float64

	// Jitter randomizes each delay within [delay/2, delay] to avoid
	// synchronized retries.
	Jitter bool
}

// DefaultRetry is the executor's built-in policy: two retries with a fixed
// short delay.
func DefaultRetry() Retry {
	return Retry{
		MaxRetries: 2,
		Delay:      100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// Fixed retries up to max times with a constant delay.
func Fixed(max int, delay time.Duration) Retry {
	return Retry{
		MaxRetries: max,
		Delay:      delay,
		MaxDelay:   delay,
	}
}

// Exponential retries up to max times with doubling, jittered delays.
func Exponential(max int) Retry {
	return Retry{
		MaxRetries: max,
		Delay:      100 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// backoff returns the delay before retry number n (0-based).
func (r Retry) backoff(n int) time.Duration {
	d := r.Delay
	if r.Multiplier > 1 {
		for i := 0; i < n; i++ {
			d = time.Duration(float64(d) * r.Multiplier)
			if r.MaxDelay > 0 && d >= r.MaxDelay {
				d = r.MaxDelay
				break
			}
		}
	}
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if r.Jitter && d > 0 {
		half := d / 2
		d = half + time.Duration(rand.Int63n(int64(half)+1))
	}
	return d
}
