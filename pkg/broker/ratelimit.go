package broker

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RequestLimiter throttles outbound brokerage requests. It is the one piece of
// shared state hit concurrently by every request path (orders, quotes, bars),
// so the sliding window and failure counter are mutex-guarded.
type RequestLimiter struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	window      []time.Time
	windowSpan  time.Duration
	maxInWindow int
	failures    int
}

// NewRequestLimiter allows at most maxPerWindow requests per span, paced by a
// token bucket so bursts do not hammer the API right after a window rolls.
func NewRequestLimiter(maxPerWindow int, span time.Duration) *RequestLimiter {
	if maxPerWindow <= 0 {
		maxPerWindow = 200
	}
	if span <= 0 {
		span = time.Minute
	}
	perSecond := float64(maxPerWindow) / span.Seconds()
	return &RequestLimiter{
		limiter:     rate.NewLimiter(rate.Limit(perSecond), maxPerWindow/10+1),
		window:      make([]time.Time, 0, maxPerWindow),
		windowSpan:  span,
		maxInWindow: maxPerWindow,
	}
}

// Wait blocks until a request slot is available or ctx is done.
func (l *RequestLimiter) Wait(ctx context.Context) error {
	for {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
		if delay := l.reserve(); delay <= 0 {
			return nil
		} else {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
}

// reserve records a request timestamp if the sliding window has room,
// otherwise returns how long until the oldest entry expires.
func (l *RequestLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.pruneLocked(now)

	if len(l.window) >= l.maxInWindow {
		wait := l.window[0].Add(l.windowSpan).Sub(now)
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		log.Printf("broker: request window full (%d/%d), delaying %v", len(l.window), l.maxInWindow, wait)
		return wait
	}

	l.window = append(l.window, now)
	return 0
}

func (l *RequestLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.windowSpan)
	i := 0
	for i < len(l.window) && l.window[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.window = append(l.window[:0], l.window[i:]...)
	}
}

// InWindow returns the number of requests issued in the current window.
func (l *RequestLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(time.Now())
	return len(l.window)
}

// RecordFailure bumps the consecutive-failure count used to scale rate-limit
// backoff.
func (l *RequestLimiter) RecordFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures++
}

// RecordSuccess resets the consecutive-failure count.
func (l *RequestLimiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = 0
}

// FailureBackoff returns a delay proportional to consecutive failures, capped
// so a long outage does not stall recovery indefinitely.
func (l *RequestLimiter) FailureBackoff(base, max time.Duration) time.Duration {
	l.mu.Lock()
	n := l.failures
	l.mu.Unlock()

	if n <= 0 {
		return base
	}
	d := time.Duration(n) * base
	if d > max {
		return max
	}
	return d
}
