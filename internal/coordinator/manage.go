package coordinator

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"

	"tradeguard/internal/alert"
	"tradeguard/internal/events"
	"tradeguard/pkg/broker"
)

// ManagePositions runs one safety pass over the open positions: cut losers
// past the loss threshold, take profit once per configured tier, and trim
// oversized concentration. Intended to be called periodically.
func (c *Coordinator) ManagePositions(ctx context.Context) error {
	positions, err := c.gateway.GetAllPositions(ctx)
	if err != nil {
		return fmt.Errorf("manage positions: %w", err)
	}
	account, err := c.gateway.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("manage positions: account: %w", err)
	}

	open := make(map[string]bool, len(positions))
	for _, pos := range positions {
		if pos.Qty <= 0 {
			continue
		}
		open[pos.Symbol] = true
		c.managePosition(ctx, pos, account)
	}

	c.pruneClosed(ctx, open)
	return nil
}

func (c *Coordinator) managePosition(ctx context.Context, pos broker.Position, account broker.Account) {
	costBasis := pos.AvgEntryPrice * pos.Qty
	if costBasis <= 0 {
		return
	}
	pnlPct := pos.UnrealizedPL / costBasis
	price := pos.MarketValue / pos.Qty

	if pnlPct <= c.cfg.LossCutPct {
		log.Printf("coordinator: %s down %.2f%%, cutting the position", pos.Symbol, pnlPct*100)
		c.exitPosition(ctx, pos, fmt.Sprintf("loss cut at %.2f%%", pnlPct*100))
		return
	}

	for i, threshold := range c.cfg.ProfitTakePcts {
		if pnlPct < threshold || c.tierTaken(pos.Symbol, i) {
			continue
		}
		sellQty := math.Floor(pos.Qty * c.cfg.ProfitTakeFraction)
		if sellQty < 1 {
			sellQty = 1
		}
		if sellQty >= pos.Qty {
			c.exitPosition(ctx, pos, fmt.Sprintf("profit take at %.0f%% closes the position", threshold*100))
			return
		}
		log.Printf("coordinator: %s up %.2f%%, taking profit on %.0f shares (tier %.0f%%)",
			pos.Symbol, pnlPct*100, sellQty, threshold*100)
		if c.trimPosition(ctx, pos, sellQty) {
			c.markTierTaken(pos.Symbol, i)
			pos.Qty -= sellQty
			pos.MarketValue = pos.Qty * price
		}
	}

	if account.Equity > 0 && pos.MarketValue > account.Equity*c.cfg.MaxConcentration {
		excess := pos.MarketValue - account.Equity*c.cfg.MaxConcentration
		sellQty := math.Ceil(excess / price)
		if sellQty >= pos.Qty {
			sellQty = pos.Qty - 1
		}
		if sellQty >= 1 {
			log.Printf("coordinator: %s at %.1f%% of equity, trimming %.0f shares",
				pos.Symbol, pos.MarketValue/account.Equity*100, sellQty)
			c.trimPosition(ctx, pos, sellQty)
		}
	}
}

// ClosePosition exits the named position at market, canceling its working
// orders first. Used for strategy-driven sells and end-of-day exits.
func (c *Coordinator) ClosePosition(ctx context.Context, symbol, reason string) error {
	positions, err := c.gateway.GetAllPositions(ctx)
	if err != nil {
		return fmt.Errorf("close %s: %w", symbol, err)
	}
	for _, pos := range positions {
		if pos.Symbol == symbol && pos.Qty > 0 {
			c.exitPosition(ctx, pos, reason)
			return nil
		}
	}
	return fmt.Errorf("close %s: no open position", symbol)
}

// exitPosition closes the whole position at market. Open orders for the
// symbol are canceled first so the sell cannot be rejected for held shares.
func (c *Coordinator) exitPosition(ctx context.Context, pos broker.Position, reason string) {
	c.cancelConflictingOrders(ctx, pos.Symbol, "")

	_, err := c.gateway.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:      pos.Symbol,
		Side:        broker.SideSell,
		Type:        broker.OrderTypeMarket,
		Qty:         pos.Qty,
		TimeInForce: broker.TIFDay,
		ClientID:    uuid.NewString(),
		Class:       broker.ClassSimple,
	})
	if err != nil {
		log.Printf("coordinator: exit %s: %v", pos.Symbol, err)
		if liqErr := c.emergencyLiquidate(ctx, pos.Symbol, pos.Qty); liqErr != nil {
			return
		}
	}

	c.removeActive(pos.Symbol)
	c.clearTiers(pos.Symbol)
	c.bus.Publish(events.EventPositionChange, pos.Symbol)
	c.publishAlert(ctx, alert.Alert{
		Kind:     alert.KindPositionSafety,
		Severity: alert.SeverityWarning,
		Symbol:   pos.Symbol,
		Issue:    reason,
		Action:   fmt.Sprintf("sold %.0f shares at market", pos.Qty),
	})
}

// trimPosition sells part of the position and re-arms a protective stop for
// the remainder. The bracket legs held the full quantity, so they must be
// canceled before the partial sell and cannot simply be restored after it.
func (c *Coordinator) trimPosition(ctx context.Context, pos broker.Position, sellQty float64) bool {
	c.cancelConflictingOrders(ctx, pos.Symbol, "")

	_, err := c.gateway.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:      pos.Symbol,
		Side:        broker.SideSell,
		Type:        broker.OrderTypeMarket,
		Qty:         sellQty,
		TimeInForce: broker.TIFDay,
		ClientID:    uuid.NewString(),
		Class:       broker.ClassSimple,
	})
	if err != nil {
		log.Printf("coordinator: trim %s by %.0f: %v", pos.Symbol, sellQty, err)
		return false
	}

	remaining := pos.Qty - sellQty
	stopPrice := c.stopPriceFor(pos)
	if _, err := c.placeEmergencyStop(ctx, pos.Symbol, remaining, stopPrice); err != nil {
		log.Printf("coordinator: re-arm stop for %s: %v", pos.Symbol, err)
	} else {
		c.setStatus(pos.Symbol, StatusEmergencyProtected)
	}
	c.bus.Publish(events.EventPositionChange, pos.Symbol)
	return true
}

// stopPriceFor picks the stop for a managed position: the original signal's
// stop when an active record still carries one, otherwise a fixed fraction
// under the average entry.
func (c *Coordinator) stopPriceFor(pos broker.Position) float64 {
	c.mu.Lock()
	rec, ok := c.active[pos.Symbol]
	c.mu.Unlock()
	if ok && rec.Signal.StopLoss > 0 && rec.Signal.StopLoss < pos.AvgEntryPrice {
		return rec.Signal.StopLoss
	}
	return roundToTick(pos.AvgEntryPrice*(1-c.cfg.RediscoveryStopPct), c.cfg.MinTick)
}

// pruneClosed drops bookkeeping for symbols that no longer have a position
// and no live orders at the broker.
func (c *Coordinator) pruneClosed(ctx context.Context, open map[string]bool) {
	c.mu.Lock()
	var stale []string
	for sym := range c.active {
		if !open[sym] {
			stale = append(stale, sym)
		}
	}
	for sym := range c.tiersTaken {
		if !open[sym] {
			delete(c.tiersTaken, sym)
		}
	}
	c.mu.Unlock()

	for _, sym := range stale {
		orders, err := c.gateway.GetOpenOrders(ctx, sym)
		if err != nil {
			continue
		}
		live := false
		for _, o := range orders {
			if o.Status.IsLive() {
				live = true
				break
			}
		}
		if !live {
			log.Printf("coordinator: %s closed, dropping active record", sym)
			c.removeActive(sym)
		}
	}
}

func (c *Coordinator) tierTaken(symbol string, tier int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tiersTaken[symbol][tier]
}

func (c *Coordinator) markTierTaken(symbol string, tier int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tiersTaken[symbol] == nil {
		c.tiersTaken[symbol] = make(map[int]bool)
	}
	c.tiersTaken[symbol][tier] = true
}

func (c *Coordinator) clearTiers(symbol string) {
	c.mu.Lock()
	delete(c.tiersTaken, symbol)
	c.mu.Unlock()
}
