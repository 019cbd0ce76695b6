package compliance

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeguard/internal/signal"
	"tradeguard/pkg/db"
)

// Tracker counts day trades over a rolling business-day window and blocks
// sells that would breach the pattern-day-trading ceiling on sub-minimum
// accounts. Buys are tracked, never blocked.
type Tracker struct {
	cfg      Config
	database *db.Database // nil disables persistence

	mu          sync.Mutex
	openedToday map[string][]buyLot
	dayTrades   []DayTrade
	currentDay  string

	now func() time.Time // test hook
}

// NewTracker creates a compliance tracker, loading the recent day-trade
// history from the database when one is provided.
func NewTracker(cfg Config, database *db.Database) *Tracker {
	t := &Tracker{
		cfg:         cfg,
		database:    database,
		openedToday: make(map[string][]buyLot),
		now:         time.Now,
	}
	t.currentDay = t.now().Format("2006-01-02")

	if database != nil {
		cutoff := t.now().AddDate(0, 0, -cfg.ArchiveDays)
		rows, err := database.ListDayTradesSince(context.Background(), cutoff)
		if err != nil {
			log.Printf("compliance: load day trades: %v", err)
		} else {
			for _, r := range rows {
				t.dayTrades = append(t.dayTrades, DayTrade{
					Symbol: r.Symbol, Qty: r.Qty,
					BuyPrice: r.BuyPrice, SellPrice: r.SellPrice,
					BuyTime: r.BuyTime, SellTime: r.SellTime, PnL: r.PnL,
				})
			}
			log.Printf("compliance: loaded %d day trades from archive", len(rows))
		}
	}
	return t
}

// CheckBeforeTrade evaluates a prospective order against the day-trade rules.
// Equity gates the hard block: accounts at or above the regulatory minimum
// are never blocked, only tracked.
func (t *Tracker) CheckBeforeTrade(symbol string, side signal.Action, qty, accountEquity float64) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDayLocked()

	if side == signal.ActionBuy {
		return Decision{Allowed: true}
	}

	// Selling a position not opened today carries no day-trade risk.
	if len(t.openedToday[symbol]) == 0 {
		return Decision{Allowed: true}
	}

	count := t.countInWindowLocked()
	if accountEquity < t.cfg.MinEquity && count >= t.cfg.MaxDayTrades {
		return Decision{
			Allowed: false,
			Reason: fmt.Sprintf("PDT violation: selling %s would create day trade #%d in the %d-business-day window with equity $%.0f below $%.0f",
				symbol, count+1, t.cfg.WindowBusinessDays, accountEquity, t.cfg.MinEquity),
		}
	}
	if count >= t.cfg.WarnAt {
		return Decision{
			Allowed: true,
			Warning: fmt.Sprintf("day trade #%d of %d in the rolling window", count+1, t.cfg.MaxDayTrades),
		}
	}
	return Decision{Allowed: true}
}

// RecordExecution updates the per-symbol state machine after a confirmed
// fill. Sells are matched against same-day buy lots oldest-first; each match
// creates a DayTrade record.
func (t *Tracker) RecordExecution(symbol string, side signal.Action, qty, price float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDayLocked()

	if side == signal.ActionBuy {
		t.openedToday[symbol] = append(t.openedToday[symbol], buyLot{Qty: qty, Price: price, Time: at})
		return
	}

	lots := t.openedToday[symbol]
	remaining := qty
	for remaining > 0 && len(lots) > 0 {
		lot := &lots[0]
		matched := remaining
		if lot.Qty < matched {
			matched = lot.Qty
		}

		dt := DayTrade{
			Symbol:    symbol,
			Qty:       matched,
			BuyPrice:  lot.Price,
			SellPrice: price,
			BuyTime:   lot.Time,
			SellTime:  at,
			PnL:       (price - lot.Price) * matched,
		}
		t.dayTrades = append(t.dayTrades, dt)
		t.persistDayTrade(dt)
		log.Printf("compliance: day trade recorded: %s qty %.2f pnl %.2f (count now %d)",
			symbol, matched, dt.PnL, t.countInWindowLocked())

		lot.Qty -= matched
		remaining -= matched
		if lot.Qty <= 0 {
			lots = lots[1:]
		}
	}

	if len(lots) == 0 {
		delete(t.openedToday, symbol)
	} else {
		t.openedToday[symbol] = lots
	}
}

// DayTradeCount returns the current rolling-window count.
func (t *Tracker) DayTradeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDayLocked()
	return t.countInWindowLocked()
}

// OpenedToday reports whether the symbol has unmatched same-day buy lots.
func (t *Tracker) OpenedToday(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDayLocked()
	return len(t.openedToday[symbol]) > 0
}

// ResetDaily clears same-day state and purges archived day trades past the
// safety window. Called at the start of each trading day.
func (t *Tracker) ResetDaily() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.currentDay = t.now().Format("2006-01-02")
	t.openedToday = make(map[string][]buyLot)
	t.archiveLocked()
}

func (t *Tracker) rollDayLocked() {
	day := t.now().Format("2006-01-02")
	if day == t.currentDay {
		return
	}
	t.currentDay = day
	t.openedToday = make(map[string][]buyLot)
	t.archiveLocked()
}

func (t *Tracker) archiveLocked() {
	cutoff := t.now().AddDate(0, 0, -t.cfg.ArchiveDays)
	kept := t.dayTrades[:0]
	purged := 0
	for _, dt := range t.dayTrades {
		if dt.SellTime.After(cutoff) {
			kept = append(kept, dt)
		} else {
			purged++
		}
	}
	t.dayTrades = kept

	if purged > 0 {
		log.Printf("compliance: archived %d day trades older than %d days", purged, t.cfg.ArchiveDays)
	}
	if t.database != nil {
		if _, err := t.database.PurgeDayTradesBefore(context.Background(), cutoff); err != nil {
			log.Printf("compliance: purge day trades: %v", err)
		}
	}
}

// countInWindowLocked counts day trades whose sell side falls within the
// trailing business-day window. The window includes today, so the cutoff sits
// WindowBusinessDays-1 business days back.
func (t *Tracker) countInWindowLocked() int {
	cutoff := businessDaysBack(t.now(), t.cfg.WindowBusinessDays-1)
	count := 0
	for _, dt := range t.dayTrades {
		if !dt.SellTime.Before(cutoff) {
			count++
		}
	}
	return count
}

func (t *Tracker) persistDayTrade(dt DayTrade) {
	if t.database == nil {
		return
	}
	row := db.DayTradeRow{
		ID:        uuid.NewString(),
		Symbol:    dt.Symbol,
		Qty:       dt.Qty,
		BuyPrice:  dt.BuyPrice,
		SellPrice: dt.SellPrice,
		BuyTime:   dt.BuyTime,
		SellTime:  dt.SellTime,
		PnL:       dt.PnL,
	}
	if err := t.database.InsertDayTrade(context.Background(), row); err != nil {
		log.Printf("compliance: persist day trade: %v", err)
	}
}

// businessDaysBack returns the start of the day n business days before now,
// skipping weekends.
func businessDaysBack(now time.Time, n int) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	remaining := n
	for remaining > 0 {
		day = day.AddDate(0, 0, -1)
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			remaining--
		}
	}
	return day
}
