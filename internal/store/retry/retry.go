// Package retry provides the bounded-exponential retry wrapper shared by
// every data-plane adapter: base 0.5s, cap 16s, 4 attempts, jittered,
// retrying only throttling errors.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures a retry run. Zero values fall back to the spec defaults.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultPolicy returns the spec's bounded-exponential defaults.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    16 * time.Second,
		MaxAttempts: 4,
	}
}

// IsThrottle classifies whether an error is a retryable throttling error.
// Store adapters supply a service-specific implementation (e.g. matching
// DynamoDB's ProvisionedThroughputExceededException or S3's SlowDown).
type IsThrottle func(error) bool

// Do runs fn, retrying only errors classified as throttling by isThrottle.
// Non-throttle errors propagate immediately without consuming a retry.
func Do(ctx context.Context, policy Policy, isThrottle IsThrottle, fn func() error) error {
	def := DefaultPolicy()
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = def.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = def.MaxDelay
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.BaseDelay
	b.MaxInterval = policy.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.5 // +/-50% jitter
	b.MaxElapsedTime = 0        // bounded by MaxAttempts below, not elapsed time

	bounded := backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1))
	withCtx := backoff.WithContext(bounded, ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !isThrottle(err) {
			return backoff.Permanent(err)
		}
		return err
	}, withCtx)
}
