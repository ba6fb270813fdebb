package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
)

// backOff builds the exponential schedule of p. MaxElapsedTime of zero means
// the schedule never gives up on its own; MaxAttempts bounds it instead.
func (p Policy) backOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = p.MaxElapsedTime
	return exp
}

// Delay is the wait before retry n (n >= 1) without jitter: InitialInterval
// grown by Multiplier per earlier retry and capped at MaxInterval. Zero
// fields fall back to 1s, 30s and 2.
func (p Policy) Delay(n int) time.Duration {
	initial := p.InitialInterval
	if initial <= 0 {
		initial = defaultInitialInterval
	}
	maxInterval := p.MaxInterval
	if maxInterval <= 0 {
		maxInterval = defaultMaxInterval
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = defaultMultiplier
	}
	if n < 1 {
		n = 1
	}

	d := float64(initial) * math.Pow(multiplier, float64(n-1))
	if d > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(d)
}
