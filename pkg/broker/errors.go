package broker

import (
	"errors"
	"fmt"
	"time"
)

// Validation reason codes the execution core special-cases.
const (
	ReasonInsufficientQuantity  = "insufficient_quantity"
	ReasonInsufficientFunds     = "insufficient_funds"
	ReasonDayTradingRestriction = "day_trading_restriction"
	ReasonBadBracketPricing     = "bad_bracket_pricing"
)

// TransientError covers timeouts and 5xx responses. Safe to retry with backoff.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("broker %s: transient status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("broker %s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimitError is a 429 response. Retried with backoff scaled by the
// caller's consecutive-failure count.
type RateLimitError struct {
	Op         string
	RetryAfter time.Duration // zero when the broker gave no hint
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("broker %s: rate limited", e.Op)
}

// ValidationError is a terminal rejection. Never retried.
type ValidationError struct {
	Op      string
	Code    string // one of the Reason* constants, or the raw broker code
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("broker %s: rejected (%s): %s", e.Op, e.Code, e.Message)
}

// ParseError reports a broker payload missing required fields. Treated as
// terminal: a response we cannot trust is not retried into trust.
type ParseError struct {
	Op    string
	Field string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("broker %s: response missing required field %q", e.Op, e.Field)
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRateLimited reports whether err is a rate-limit response.
func IsRateLimited(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// IsValidation reports whether err is a terminal broker rejection, and if so
// returns its reason code.
func IsValidation(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code, true
	}
	return "", false
}

// IsInsufficientQuantity matches the "shares held by other orders" family of
// rejections that emergency protection must special-case.
func IsInsufficientQuantity(err error) bool {
	code, ok := IsValidation(err)
	return ok && code == ReasonInsufficientQuantity
}
