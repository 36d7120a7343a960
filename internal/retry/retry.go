// Package retry provides the bounded exponential-backoff policy used by the
// scheduled-call runner. Retry state is persisted on the scheduled call row
// rather than held in-process, so the policy here only decides eligibility
// and computes the next delay.
package retry

import (
	"math"
	"time"
)

// Policy configures bounded retry behavior
type Policy struct {
	MaxRetries int           // Maximum retry attempts before permanent failure
	BaseDelay  time.Duration // Delay before the first retry
	Multiplier float64       // Multiplier for exponential backoff
	MaxDelay   time.Duration // Cap on the computed delay (0 = uncapped)
}

// DefaultPolicy returns the runner's default policy.
// Pattern: 15m, 30m, 60m.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  15 * time.Minute,
		Multiplier: 2.0,
	}
}

// Exhausted reports whether a row that has already retried retryCount times
// has used up its retry budget
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxRetries
}

// NextDelay computes the backoff delay for the given retry count.
// retryCount is the number of retries already attempted, so the first
// retry (retryCount = 0) waits BaseDelay.
func (p Policy) NextDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retryCount))

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	return time.Duration(delay)
}

// NextRetryAt computes the absolute time of the next retry attempt
func (p Policy) NextRetryAt(now time.Time, retryCount int) time.Time {
	return now.Add(p.NextDelay(retryCount))
}
