package upstream

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// BackoffPolicy is the retry policy applied to rate-limited upstream calls:
// a fixed attempt ceiling with exponential delay and jitter, honoring any
// retry-after hint the host provides.
// NewBackoffPolicy should be used to create instances of BackoffPolicy.
type BackoffPolicy struct {
	// MaxAttempts is the total number of attempts before the call fails with
	// ErrUpstreamRateLimited. Must be at least 1.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth of the computed delay.
	MaxDelay time.Duration
}

// NewBackoffPolicy validates the supplied bounds and returns the policy.
func NewBackoffPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) (BackoffPolicy, error) {
	if maxAttempts < 1 {
		return BackoffPolicy{}, fmt.Errorf("max attempts must be at least 1, got %d", maxAttempts)
	}
	if baseDelay <= 0 {
		return BackoffPolicy{}, fmt.Errorf("base delay must be positive, got %s", baseDelay)
	}
	if maxDelay < baseDelay {
		return BackoffPolicy{}, fmt.Errorf("max delay %s must not be below base delay %s", maxDelay, baseDelay)
	}

	return BackoffPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
	}, nil
}

// DefaultBackoffPolicy returns the policy used when configuration is silent.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// Delay computes the wait before retry number attempt (zero-based).
// The exponential delay carries up to 50% positive jitter; when the upstream
// host supplied a retry-after hint longer than the computed delay, the hint
// wins.
func (p BackoffPolicy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}

	delay += time.Duration(rand.Int64N(int64(delay)/2 + 1))
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if retryAfter > delay {
		delay = retryAfter
	}

	return delay
}
