package broker

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRequestLimiterWindowCounts(t *testing.T) {
	l := NewRequestLimiter(50, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if got := l.InWindow(); got != 10 {
		t.Fatalf("InWindow=%d, expected 10", got)
	}
}

// Quotes, bars, and order paths share one limiter; concurrent use must never
// lose or double-count reservations.
func TestRequestLimiterConcurrentUse(t *testing.T) {
	l := NewRequestLimiter(1000, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if err := l.Wait(ctx); err != nil {
					t.Errorf("Wait: %v", err)
					return
				}
				l.RecordFailure()
				l.RecordSuccess()
			}
		}()
	}
	wg.Wait()

	if got := l.InWindow(); got != 200 {
		t.Fatalf("InWindow=%d, expected 200", got)
	}
	if got := l.FailureBackoff(time.Second, time.Minute); got != time.Second {
		t.Fatalf("failures not reset: backoff=%v", got)
	}
}

func TestRequestLimiterWaitHonorsContext(t *testing.T) {
	l := NewRequestLimiter(1, time.Hour)
	ctx := context.Background()

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(cctx); err == nil {
		t.Fatal("expected context deadline error when window is full")
	}
}
