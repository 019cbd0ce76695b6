package risk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"tradeguard/internal/signal"
	"tradeguard/pkg/broker"
	"tradeguard/pkg/db"
)

// Gate performs pre-trade risk scoring and monitors the daily-drawdown and
// circuit-breaker loss guards. Pure decision logic; its only I/O is the
// optional metrics persistence.
type Gate struct {
	cfg      Config
	database *db.Database // nil disables persistence

	mu            sync.Mutex
	initialEquity float64
	metrics       Metrics
}

// NewGate creates a risk gate. initialEquity anchors the circuit breaker and
// must be the account value at deployment, not today's equity.
func NewGate(cfg Config, initialEquity float64, database *db.Database) *Gate {
	g := &Gate{
		cfg:           cfg,
		database:      database,
		initialEquity: initialEquity,
	}
	g.metrics.Day = today()
	g.metrics.StartingEquity = initialEquity
	g.metrics.DailyHighEquity = initialEquity

	if database != nil {
		if row, err := database.GetRiskMetrics(context.Background(), g.metrics.Day); err == nil {
			g.metrics.DailyPnL = row.DailyPnL
			g.metrics.TradesToday = row.Trades
			g.metrics.DrawdownHit = row.DrawdownHit
			g.metrics.CircuitBreakerHit = row.CircuitBreakerHit
			if row.StartingEquity > 0 {
				g.metrics.StartingEquity = row.StartingEquity
				g.metrics.DailyHighEquity = row.StartingEquity
			}
		} else if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("risk: load metrics: %v", err)
		}
	}

	log.Printf("risk: gate initialized (initial equity %.2f, drawdown limit %.1f%%, breaker %.1f%%)",
		initialEquity, cfg.DailyDrawdownLimit*100, cfg.CircuitBreakerLimit*100)
	return g
}

// Assess evaluates a trading signal against portfolio state and returns a
// scored decision. It never submits anything.
func (g *Gate) Assess(sig signal.TradingSignal, accountEquity float64, openPositions []broker.Position) Assessment {
	g.mu.Lock()
	blocked := g.metrics.DrawdownHit || g.metrics.CircuitBreakerHit
	g.mu.Unlock()

	if blocked {
		return Assessment{
			Approved:  false,
			RiskScore: 1.0,
			Reasoning: "trading halted: daily drawdown or circuit breaker tripped",
		}
	}

	// Hard floor: poor risk/reward is never worth a partial acceptance.
	if sig.RiskReward < g.cfg.MinRiskReward {
		return Assessment{
			Approved:  false,
			RiskScore: 1.0,
			Reasoning: fmt.Sprintf("risk/reward %.2f below minimum %.2f", sig.RiskReward, g.cfg.MinRiskReward),
		}
	}

	var warnings []string
	sizeFraction := sig.PositionSize
	if sizeFraction > g.cfg.MaxPositionFraction {
		warnings = append(warnings, fmt.Sprintf("requested size %.1f%% capped to %.1f%%",
			sizeFraction*100, g.cfg.MaxPositionFraction*100))
		sizeFraction = g.cfg.MaxPositionFraction
	}
	baseRisk := sizeFraction / g.cfg.MaxPositionFraction

	// Portfolio concentration: more open names, less appetite for another.
	concentration := 0.0
	if g.cfg.MaxPositions > 0 {
		concentration = float64(len(openPositions)) / float64(g.cfg.MaxPositions)
		if concentration >= 1 {
			return Assessment{
				Approved:  false,
				RiskScore: 1.0,
				Warnings:  warnings,
				Reasoning: fmt.Sprintf("position limit reached: %d/%d", len(openPositions), g.cfg.MaxPositions),
			}
		}
	}

	// Sector concentration: a breach halves the requested size rather than
	// rejecting the signal.
	sector := g.sectorOf(sig.Symbol)
	sameSector := 0
	for _, pos := range openPositions {
		if g.sectorOf(pos.Symbol) == sector && sector != "UNKNOWN" {
			sameSector++
		}
	}
	sectorFraction := 0.0
	if len(openPositions) > 0 {
		sectorFraction = float64(sameSector) / float64(len(openPositions))
	}
	if sectorFraction > g.cfg.MaxSectorFraction {
		sizeFraction /= 2
		warnings = append(warnings, fmt.Sprintf("sector %s concentration %.0f%%: size halved", sector, sectorFraction*100))
	}

	correlationRisk := float64(sameSector) * g.cfg.CorrelationWeight

	// Volatility: shrink size when ATR as a fraction of price runs hot.
	volatilityRisk := 0.0
	if sig.HasATR() && sig.EntryPrice > 0 {
		atrPct := sig.ATR / sig.EntryPrice
		if atrPct > g.cfg.VolatilityThreshold {
			scale := g.cfg.VolatilityThreshold / atrPct
			sizeFraction *= scale
			volatilityRisk = atrPct - g.cfg.VolatilityThreshold
			warnings = append(warnings, fmt.Sprintf("elevated volatility (ATR %.1f%% of price): size scaled to %.1f%%",
				atrPct*100, sizeFraction*100))
		}
	}

	score := 0.4*baseRisk + 0.25*concentration + 0.2*correlationRisk + 0.15*volatilityRisk
	score -= sig.Confidence * g.cfg.ConfidenceBonus
	if score < 0 {
		score = 0
	}

	positionValue := sizeFraction * accountEquity
	approved := score <= g.cfg.MaxRiskScore && positionValue >= g.cfg.MinPositionValue

	reasoning := fmt.Sprintf("score %.2f (base %.2f, portfolio %.2f, correlation %.2f, volatility %.2f), size %.1f%% ≈ $%.0f",
		score, baseRisk, concentration, correlationRisk, volatilityRisk, sizeFraction*100, positionValue)
	if !approved {
		if positionValue < g.cfg.MinPositionValue {
			reasoning = fmt.Sprintf("position value $%.0f below minimum $%.0f; %s",
				positionValue, g.cfg.MinPositionValue, reasoning)
		} else {
			reasoning = fmt.Sprintf("score %.2f above ceiling %.2f; %s", score, g.cfg.MaxRiskScore, reasoning)
		}
	}

	return Assessment{
		Approved:        approved,
		RiskScore:       score,
		MaxPositionSize: sizeFraction,
		Warnings:        warnings,
		Reasoning:       reasoning,
	}
}

// CheckDailyDrawdown compares equity against the floor derived from today's
// high-water mark. Returns false once the floor is breached; the trip is
// sticky until the next trading day resets metrics.
func (g *Gate) CheckDailyDrawdown(equity float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDayLocked(equity)

	if equity > g.metrics.DailyHighEquity {
		g.metrics.DailyHighEquity = equity
	}
	floor := g.metrics.DailyHighEquity * (1 - g.cfg.DailyDrawdownLimit)
	if equity < floor && !g.metrics.DrawdownHit {
		g.metrics.DrawdownHit = true
		log.Printf("risk: daily drawdown hit: equity %.2f below floor %.2f (high %.2f)",
			equity, floor, g.metrics.DailyHighEquity)
		g.persistLocked()
	}
	return !g.metrics.DrawdownHit
}

// CheckCircuitBreaker is the one-shot severe guard against the *initial*
// account value, independent of day boundaries. Returns false once tripped.
func (g *Gate) CheckCircuitBreaker(equity float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.metrics.CircuitBreakerHit {
		return false
	}
	floor := g.initialEquity * (1 - g.cfg.CircuitBreakerLimit)
	if equity < floor {
		g.metrics.CircuitBreakerHit = true
		log.Printf("risk: CIRCUIT BREAKER: equity %.2f below %.2f (%.0f%% of initial %.2f)",
			equity, floor, (1-g.cfg.CircuitBreakerLimit)*100, g.initialEquity)
		g.persistLocked()
		return false
	}
	return true
}

// RecordExecution updates daily metrics after a completed execution. realized
// is the P&L contribution, zero for an entry.
func (g *Gate) RecordExecution(symbol string, realized float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.metrics.TradesToday++
	g.metrics.DailyPnL += realized
	g.persistLocked()
}

// Metrics returns a snapshot of today's risk state.
func (g *Gate) Metrics() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics
}

// ResetDaily clears daily counters at the start of a new trading day. The
// circuit breaker flag survives resets on purpose.
func (g *Gate) ResetDaily(equity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	log.Printf("risk: daily reset (prev pnl %.2f, trades %d)", g.metrics.DailyPnL, g.metrics.TradesToday)
	breaker := g.metrics.CircuitBreakerHit
	g.metrics = Metrics{
		Day:               today(),
		StartingEquity:    equity,
		DailyHighEquity:   equity,
		CircuitBreakerHit: breaker,
	}
	g.persistLocked()
}

func (g *Gate) rollDayLocked(equity float64) {
	day := today()
	if g.metrics.Day == day {
		return
	}
	breaker := g.metrics.CircuitBreakerHit
	g.metrics = Metrics{
		Day:               day,
		StartingEquity:    equity,
		DailyHighEquity:   equity,
		CircuitBreakerHit: breaker,
	}
}

func (g *Gate) sectorOf(symbol string) string {
	if s, ok := g.cfg.Sectors[strings.ToUpper(symbol)]; ok {
		return s
	}
	return "UNKNOWN"
}

func (g *Gate) persistLocked() {
	if g.database == nil {
		return
	}
	row := db.RiskMetricsRow{
		Date:              g.metrics.Day,
		StartingEquity:    g.metrics.StartingEquity,
		DailyPnL:          g.metrics.DailyPnL,
		Trades:            g.metrics.TradesToday,
		DrawdownHit:       g.metrics.DrawdownHit,
		CircuitBreakerHit: g.metrics.CircuitBreakerHit,
	}
	if err := g.database.UpsertRiskMetrics(context.Background(), row); err != nil {
		log.Printf("risk: persist metrics: %v", err)
	}
}

func today() string {
	return time.Now().Format("2006-01-02")
}
