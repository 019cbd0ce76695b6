package compliance

import (
	"testing"
	"testing/quick"
	"time"

	"tradeguard/internal/signal"
)

func fixedClock(t *Tracker, at time.Time) func(time.Time) {
	current := at
	t.now = func() time.Time { return current }
	t.currentDay = current.Format("2006-01-02")
	return func(next time.Time) { current = next }
}

// A Monday morning, so the trailing business-day window is deterministic.
var monday = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

func TestBuysAreNeverBlocked(t *testing.T) {
	tr := NewTracker(DefaultConfig(), nil)
	fixedClock(tr, monday)

	for i := 0; i < 10; i++ {
		d := tr.CheckBeforeTrade("AAPL", signal.ActionBuy, 5, 8000)
		if !d.Allowed || d.Warning != "" {
			t.Fatalf("buy blocked or warned: %+v", d)
		}
		tr.RecordExecution("AAPL", signal.ActionBuy, 5, 100, monday)
	}
}

func TestSellOfSwingPositionIsAlwaysAllowed(t *testing.T) {
	tr := NewTracker(DefaultConfig(), nil)
	fixedClock(tr, monday)

	// No same-day buy lot for the symbol: no day-trade risk.
	d := tr.CheckBeforeTrade("TSLA", signal.ActionSell, 10, 8000)
	if !d.Allowed || d.Reason != "" {
		t.Fatalf("swing sell should be clean: %+v", d)
	}
}

// Scenario: three day trades already in the window, equity under $25k. The
// sell that would create day trade #4 must be blocked.
func TestFourthDayTradeBlockedUnderEquityMinimum(t *testing.T) {
	tr := NewTracker(DefaultConfig(), nil)
	setNow := fixedClock(tr, monday)

	symbols := []string{"AAPL", "TSLA", "NVDA"}
	at := monday
	for _, sym := range symbols {
		tr.RecordExecution(sym, signal.ActionBuy, 10, 100, at)
		tr.RecordExecution(sym, signal.ActionSell, 10, 101, at.Add(30*time.Minute))
		at = at.Add(time.Hour)
		setNow(at)
	}
	if got := tr.DayTradeCount(); got != 3 {
		t.Fatalf("DayTradeCount=%d, expected 3", got)
	}

	tr.RecordExecution("AMD", signal.ActionBuy, 10, 150, at)
	d := tr.CheckBeforeTrade("AMD", signal.ActionSell, 10, 8000)
	if d.Allowed {
		t.Fatal("sell creating day trade #4 must be blocked under $25k equity")
	}
	if d.Reason == "" {
		t.Fatal("block must carry a PDT reason")
	}

	// Same situation with a large account: allowed, tracked only.
	d = tr.CheckBeforeTrade("AMD", signal.ActionSell, 10, 50000)
	if !d.Allowed {
		t.Fatalf("sell must be allowed at $50k equity: %+v", d)
	}
}

func TestWarningNearTheCeiling(t *testing.T) {
	tr := NewTracker(DefaultConfig(), nil)
	fixedClock(tr, monday)

	for _, sym := range []string{"AAPL", "TSLA"} {
		tr.RecordExecution(sym, signal.ActionBuy, 5, 100, monday)
		tr.RecordExecution(sym, signal.ActionSell, 5, 102, monday.Add(10*time.Minute))
	}

	tr.RecordExecution("NVDA", signal.ActionBuy, 5, 100, monday)
	d := tr.CheckBeforeTrade("NVDA", signal.ActionSell, 5, 8000)
	if !d.Allowed {
		t.Fatalf("third day trade should be allowed: %+v", d)
	}
	if d.Warning == "" {
		t.Fatal("third day trade should carry a warning")
	}
}

func TestSellMatchesOldestLotsFirst(t *testing.T) {
	tr := NewTracker(DefaultConfig(), nil)
	fixedClock(tr, monday)

	tr.RecordExecution("AAPL", signal.ActionBuy, 5, 100, monday)
	tr.RecordExecution("AAPL", signal.ActionBuy, 5, 110, monday.Add(time.Minute))

	// Sells 7 shares: consumes the 100-lot fully and 2 from the 110-lot.
	tr.RecordExecution("AAPL", signal.ActionSell, 7, 120, monday.Add(time.Hour))

	if got := tr.DayTradeCount(); got != 2 {
		t.Fatalf("DayTradeCount=%d, expected 2 (one per matched lot)", got)
	}
	if !tr.OpenedToday("AAPL") {
		t.Fatal("3 shares of the second lot should remain open")
	}

	tr.RecordExecution("AAPL", signal.ActionSell, 3, 120, monday.Add(2*time.Hour))
	if tr.OpenedToday("AAPL") {
		t.Fatal("all lots should be exhausted")
	}
}

func TestWindowRollsOffAfterFiveBusinessDays(t *testing.T) {
	tr := NewTracker(DefaultConfig(), nil)
	setNow := fixedClock(tr, monday)

	tr.RecordExecution("AAPL", signal.ActionBuy, 5, 100, monday)
	tr.RecordExecution("AAPL", signal.ActionSell, 5, 101, monday.Add(time.Hour))
	if got := tr.DayTradeCount(); got != 1 {
		t.Fatalf("DayTradeCount=%d, expected 1", got)
	}

	// Friday of the same week: Monday is 4 business days back, still inside.
	setNow(monday.AddDate(0, 0, 4))
	if got := tr.DayTradeCount(); got != 1 {
		t.Fatalf("DayTradeCount on Friday=%d, expected 1", got)
	}

	// The following Monday: 5 business days back, outside the window.
	setNow(monday.AddDate(0, 0, 7))
	if got := tr.DayTradeCount(); got != 0 {
		t.Fatalf("DayTradeCount next Monday=%d, expected 0", got)
	}
}

// Property: under minimum equity, a caller that respects CheckBeforeTrade can
// never push the rolling-window day-trade count past the regulatory ceiling,
// whatever the buy/sell sequence and day spacing.
func TestPropertyWindowCountNeverExceedsCeiling(t *testing.T) {
	cfg := DefaultConfig()

	property := func(steps []uint8) bool {
		if len(steps) > 200 {
			steps = steps[:200]
		}
		tr := NewTracker(cfg, nil)
		setNow := fixedClock(tr, monday)

		symbols := []string{"AAPL", "TSLA", "NVDA", "AMD"}
		at := monday
		for _, step := range steps {
			sym := symbols[int(step)%len(symbols)]
			switch {
			case step%7 == 0:
				// Advance to the next day (sometimes over a weekend).
				at = at.AddDate(0, 0, 1+int(step%3)).Add(time.Hour)
				setNow(at)
			case step%2 == 0:
				tr.RecordExecution(sym, signal.ActionBuy, 10, 100, at)
			default:
				d := tr.CheckBeforeTrade(sym, signal.ActionSell, 10, 8000)
				if d.Allowed {
					tr.RecordExecution(sym, signal.ActionSell, 10, 101, at)
				}
			}
			at = at.Add(time.Minute)
			setNow(at)

			if tr.DayTradeCount() > cfg.MaxDayTrades {
				return false
			}
		}
		return true
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 200}); err != nil {
		t.Fatalf("ceiling property violated: %v", err)
	}
}
