package core

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffPolicy describes the exponential-backoff-with-cap-and-jitter
// shape every background loop uses: base = loop period, cap = 10x the
// period, jitter = +/-25%.
type BackoffPolicy struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64
}

// NewLoopBackoffPolicy builds the standard policy for a loop with the
// given base period: cap is 10x the base, jitter is +/-25%.
func NewLoopBackoffPolicy(base time.Duration) BackoffPolicy {
	return BackoffPolicy{Base: base, Cap: base * 10, Jitter: 0.25}
}

// NewExponentialBackOff builds a backoff.BackOff from the policy,
// reusing cenkalti/backoff/v4's accounting for attempt count and
// elapsed time instead of hand-rolling a retry loop.
func (p BackoffPolicy) NewExponentialBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.MaxInterval = p.Cap
	b.RandomizationFactor = p.Jitter
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // the caller decides when to stop retrying, not the backoff itself
	return b
}

// EvaluationBackoff computes the evaluation-retry delay:
// min(base * 2^(attempts-1), cap), base 60s cap 10m. attempts is
// 1-indexed (the first retry uses attempts=1).
func EvaluationBackoff(attempts int) time.Duration {
	const base = 60 * time.Second
	const maxDelay = 10 * time.Minute
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return d
}
