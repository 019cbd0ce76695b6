// Package engine wires the risk gate, compliance tracker, and execution
// coordinator into one signal-handling pipeline and runs the background
// safety loops around it.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"tradeguard/internal/alert"
	"tradeguard/internal/compliance"
	"tradeguard/internal/coordinator"
	"tradeguard/internal/events"
	"tradeguard/internal/gaprisk"
	"tradeguard/internal/indicators"
	"tradeguard/internal/risk"
	"tradeguard/internal/signal"
	"tradeguard/pkg/broker"
	"tradeguard/pkg/marketdata"
)

// Config holds the engine's loop cadence and watchlist.
type Config struct {
	Symbols               []string
	PositionCheckInterval time.Duration
	GapCheckInterval      time.Duration
}

// DefaultConfig returns engine loop defaults.
func DefaultConfig() Config {
	return Config{
		PositionCheckInterval: 60 * time.Second,
		GapCheckInterval:      5 * time.Minute,
	}
}

// Engine is the top-level pipeline: every trading signal passes the loss
// guards, the risk gate, and the compliance tracker before the coordinator
// is allowed to touch the broker.
type Engine struct {
	cfg        Config
	gateway    broker.Gateway
	data       marketdata.Provider
	gate       *risk.Gate
	compliance *compliance.Tracker
	coord      *coordinator.Coordinator
	gap        *gaprisk.Monitor
	bus        *events.Bus
}

// New assembles the engine from its collaborators.
func New(cfg Config, gateway broker.Gateway, data marketdata.Provider, gate *risk.Gate,
	tracker *compliance.Tracker, coord *coordinator.Coordinator, gap *gaprisk.Monitor, bus *events.Bus) *Engine {
	return &Engine{
		cfg:        cfg,
		gateway:    gateway,
		data:       data,
		gate:       gate,
		compliance: tracker,
		coord:      coord,
		gap:        gap,
		bus:        bus,
	}
}

// HandleSignal runs one signal through the full decision chain. Buys go
// through the coordinator's bracket pipeline; sells close the existing
// position after the compliance check.
func (e *Engine) HandleSignal(ctx context.Context, sig signal.TradingSignal) (*coordinator.ExecutedTrade, error) {
	account, err := e.gateway.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("handle %s: account: %w", sig.Symbol, err)
	}

	if !e.gate.CheckCircuitBreaker(account.Equity) {
		return nil, fmt.Errorf("handle %s: circuit breaker tripped, trading halted", sig.Symbol)
	}
	if !e.gate.CheckDailyDrawdown(account.Equity) {
		return nil, fmt.Errorf("handle %s: daily drawdown limit hit, trading halted", sig.Symbol)
	}

	if sig.Action == signal.ActionSell {
		return nil, e.handleSell(ctx, sig, account)
	}
	return e.handleBuy(ctx, sig, account)
}

func (e *Engine) handleBuy(ctx context.Context, sig signal.TradingSignal, account broker.Account) (*coordinator.ExecutedTrade, error) {
	if !sig.HasATR() {
		if atr := e.lookupATR(ctx, sig.Symbol); atr > 0 {
			sig.ATR = atr
			log.Printf("engine: %s ATR backfilled from daily bars: %.2f", sig.Symbol, atr)
		}
	}

	positions, err := e.gateway.GetAllPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("handle %s: positions: %w", sig.Symbol, err)
	}

	assessment := e.gate.Assess(sig, account.Equity, positions)
	for _, w := range assessment.Warnings {
		log.Printf("engine: %s risk warning: %s", sig.Symbol, w)
	}
	if !assessment.Approved {
		e.bus.Publish(events.EventOrderRejected, sig.Symbol)
		return nil, fmt.Errorf("handle %s: risk gate rejected: %s", sig.Symbol, assessment.Reasoning)
	}

	decision := e.compliance.CheckBeforeTrade(sig.Symbol, sig.Action, 0, account.Equity)
	if decision.Warning != "" {
		log.Printf("engine: %s compliance warning: %s", sig.Symbol, decision.Warning)
	}

	trade, err := e.coord.Execute(ctx, sig)
	if trade != nil && trade.ActualQty > 0 {
		e.compliance.RecordExecution(trade.Symbol, signal.ActionBuy, trade.ActualQty, trade.ActualPrice, trade.ExecutedAt)
		e.gate.RecordExecution(trade.Symbol, 0)
	}
	return trade, err
}

func (e *Engine) handleSell(ctx context.Context, sig signal.TradingSignal, account broker.Account) error {
	pos := e.lookupPosition(ctx, sig.Symbol)
	decision := e.compliance.CheckBeforeTrade(sig.Symbol, signal.ActionSell, pos.Qty, account.Equity)
	if !decision.Allowed {
		e.bus.Publish(events.EventComplianceAlert, alert.Alert{
			Kind:     alert.KindPDTViolation,
			Severity: alert.SeverityWarning,
			Symbol:   sig.Symbol,
			Issue:    decision.Reason,
			Action:   "sell blocked, position held",
		})
		return fmt.Errorf("handle %s: %s", sig.Symbol, decision.Reason)
	}
	if decision.Warning != "" {
		log.Printf("engine: %s compliance warning: %s", sig.Symbol, decision.Warning)
	}

	if err := e.coord.ClosePosition(ctx, sig.Symbol, "strategy sell signal"); err != nil {
		return err
	}
	e.compliance.RecordExecution(sig.Symbol, signal.ActionSell, pos.Qty, e.exitPrice(ctx, sig, pos), time.Now())
	e.gate.RecordExecution(sig.Symbol, 0)
	return nil
}

// exitPrice approximates what a market exit realized. Sell signals carry no
// reliable price, so prefer the live quote, then the position's last mark,
// and only then whatever the signal said.
func (e *Engine) exitPrice(ctx context.Context, sig signal.TradingSignal, pos broker.Position) float64 {
	if quote, err := e.data.GetQuote(ctx, sig.Symbol); err == nil && quote.Price > 0 {
		return quote.Price
	}
	if pos.Qty > 0 && pos.MarketValue > 0 {
		return pos.MarketValue / pos.Qty
	}
	return sig.EntryPrice
}

// lookupATR estimates volatility from daily bars for signals that arrive
// without one. Zero means no estimate; sizing falls back to percentages.
func (e *Engine) lookupATR(ctx context.Context, symbol string) float64 {
	bars, err := e.data.GetBars(ctx, symbol, indicators.DefaultATRPeriod+1)
	if err != nil {
		log.Printf("engine: bars for %s: %v", symbol, err)
		return 0
	}
	return indicators.ATR(bars, indicators.DefaultATRPeriod)
}

func (e *Engine) lookupPosition(ctx context.Context, symbol string) broker.Position {
	positions, err := e.gateway.GetAllPositions(ctx)
	if err != nil {
		return broker.Position{}
	}
	for _, pos := range positions {
		if pos.Symbol == symbol {
			return pos
		}
	}
	return broker.Position{}
}
