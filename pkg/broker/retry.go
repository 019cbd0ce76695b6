package broker

import (
	"context"
	"errors"
	"log"
	"time"
)

// RetryPolicy bounds a retry loop. Every retry path in the execution core goes
// through Do, so the ceiling and fallback behavior stay auditable in one place.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy suits ordinary brokerage calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
	}
}

// Do runs fn with bounded iterative retry. Transient errors back off
// exponentially; rate-limit errors back off via the limiter's failure-scaled
// delay; validation and parse errors are terminal and returned immediately.
// The limiter may be nil when the caller does its own pacing.
func (p RetryPolicy) Do(ctx context.Context, limiter *RequestLimiter, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.InitialDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			if limiter != nil {
				limiter.RecordSuccess()
			}
			return nil
		}

		if _, terminal := IsValidation(err); terminal {
			return err
		}
		var pe *ParseError
		if errors.As(err, &pe) {
			return err
		}

		if attempt == attempts {
			break
		}

		wait := delay
		switch {
		case IsRateLimited(err):
			if limiter != nil {
				limiter.RecordFailure()
				wait = limiter.FailureBackoff(delay, p.MaxDelay)
			}
			if ra := retryAfter(err); ra > wait {
				wait = ra
			}
		case IsTransient(err):
			if limiter != nil {
				limiter.RecordFailure()
			}
		default:
			// Unclassified errors (network, context) get the same treatment
			// as transient ones; the attempt ceiling still applies.
		}

		log.Printf("broker: %s attempt %d/%d failed: %v (retrying in %v)", op, attempt, attempts, err, wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}

func retryAfter(err error) time.Duration {
	var re *RateLimitError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}
