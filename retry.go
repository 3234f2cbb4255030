package oaipoll

import (
	"errors"
	"math"
	"time"
)

// RetryPolicy decides, whether a failed page request should be repeated.
// Attempt counts from one. The returned duration is the pause before the
// next attempt.
type RetryPolicy interface {
	Backoff(attempt int, err error) (time.Duration, bool)
}

// NoRetry gives up on the first failure.
type NoRetry struct{}

// Backoff never retries.
func (NoRetry) Backoff(int, error) (time.Duration, bool) { return 0, false }

// ExponentialBackoff retries errors accepted by Retryable, with delays
// growing by Multiplier and capped at MaxDelay.
type ExponentialBackoff struct {
	// MaxAttempts including the first one.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Retryable defaults to IsTransient.
	Retryable func(error) bool
}

// DefaultBackoff returns a policy with three attempts.
func DefaultBackoff() ExponentialBackoff {
	return ExponentialBackoff{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
		Retryable:    IsTransient,
	}
}

// Backoff implements RetryPolicy.
func (b ExponentialBackoff) Backoff(attempt int, err error) (time.Duration, bool) {
	if attempt >= b.MaxAttempts {
		return 0, false
	}
	retryable := b.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	if !retryable(err) {
		return 0, false
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	limit := float64(math.MaxInt64)
	if b.MaxDelay > 0 {
		limit = float64(b.MaxDelay)
	}
	delay := float64(b.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if delay >= limit {
		if b.MaxDelay > 0 {
			return b.MaxDelay, true
		}
		return time.Duration(math.MaxInt64), true
	}
	return time.Duration(delay), true
}

// IsTransient is true for transport failures. Malformed payloads and
// protocol errors are not expected to go away on repetition.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// TransientOr extends IsTransient to responses carrying any of the given
// operational error codes.
func TransientOr(codes ...ErrorCode) func(error) bool {
	return func(err error) bool {
		var pe ProtocolErrors
		if errors.As(err, &pe) {
			for _, c := range codes {
				if pe.Has(c) {
					return true
				}
			}
			return false
		}
		return IsTransient(err)
	}
}
