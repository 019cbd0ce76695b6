package gaprisk

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"tradeguard/pkg/broker"
)

// Tier classifies the size of an extended-hours gap.
type Tier string

const (
	TierLow      Tier = "LOW"
	TierModerate Tier = "MODERATE"
	TierHigh     Tier = "HIGH"
	TierExtreme  Tier = "EXTREME"
)

// Alert reports a price gap against the last recorded close for an open
// position. Derived, never persisted.
type Alert struct {
	Symbol       string
	GapPercent   float64
	DollarImpact float64
	Tier         Tier
	At           time.Time
}

// Monitor tracks approximate close prices for open positions and tiers
// extended-hours gaps against them. Independent of the execution path.
type Monitor struct {
	mu      sync.Mutex
	closes  map[string]closeRecord
	alerted map[string]bool // (symbol|tier) de-dup per session
	day     string

	now func() time.Time
}

type closeRecord struct {
	Price float64
	Qty   float64
}

func NewMonitor() *Monitor {
	m := &Monitor{
		closes:  make(map[string]closeRecord),
		alerted: make(map[string]bool),
		now:     time.Now,
	}
	m.day = m.now().Format("2006-01-02")
	return m
}

// RecordClose captures a position's approximate close price (market value
// over quantity) once per session. Later calls in the same session keep the
// first recording.
func (m *Monitor) RecordClose(pos broker.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()

	if pos.Qty == 0 {
		return
	}
	if _, exists := m.closes[pos.Symbol]; exists {
		return
	}
	price := pos.MarketValue / pos.Qty
	if price <= 0 {
		return
	}
	m.closes[pos.Symbol] = closeRecord{Price: price, Qty: pos.Qty}
	log.Printf("gaprisk: close recorded for %s: %.2f (qty %.2f)", pos.Symbol, price, pos.Qty)
}

// CalculateGapRisk compares the current price to the recorded close and
// returns a tiered alert, or nil when there is no gap, no recorded close, or
// this tier already alerted this session. Every tier is reported, LOW
// included; callers decide which tiers escalate.
func (m *Monitor) CalculateGapRisk(symbol string, currentPrice float64) *Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()

	rec, ok := m.closes[symbol]
	if !ok || currentPrice <= 0 {
		return nil
	}

	gapPct := (currentPrice - rec.Price) / rec.Price * 100
	if gapPct == 0 {
		return nil
	}
	tier := tierFor(math.Abs(gapPct))

	key := fmt.Sprintf("%s|%s", symbol, tier)
	if m.alerted[key] {
		return nil
	}
	m.alerted[key] = true

	return &Alert{
		Symbol:       symbol,
		GapPercent:   gapPct,
		DollarImpact: (currentPrice - rec.Price) * rec.Qty,
		Tier:         tier,
		At:           m.now(),
	}
}

// ResetDaily clears close tracking and alert de-duplication.
func (m *Monitor) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.day = m.now().Format("2006-01-02")
	m.closes = make(map[string]closeRecord)
	m.alerted = make(map[string]bool)
}

func (m *Monitor) rollDayLocked() {
	day := m.now().Format("2006-01-02")
	if day == m.day {
		return
	}
	m.day = day
	m.closes = make(map[string]closeRecord)
	m.alerted = make(map[string]bool)
}

func tierFor(absGapPct float64) Tier {
	switch {
	case absGapPct < 2:
		return TierLow
	case absGapPct < 5:
		return TierModerate
	case absGapPct < 10:
		return TierHigh
	default:
		return TierExtreme
	}
}
