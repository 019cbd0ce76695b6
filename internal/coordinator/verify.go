package coordinator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tradeguard/internal/alert"
	"tradeguard/pkg/broker"
)

// ensureProtection waits for the parent order to resolve, then verifies the
// protective legs are live at the broker. A filled position without live
// protection goes down the emergency path. The returned order is the last
// broker view of the parent, used for reconciliation.
func (c *Coordinator) ensureProtection(ctx context.Context, rec *ActiveOrderRecord) (broker.Order, error) {
	order, err := c.waitForFill(ctx, rec)
	if err != nil {
		return order, err
	}
	if order.FilledQty <= 0 {
		return order, nil
	}

	if stopLegLive(order) {
		log.Printf("coordinator: %s protective legs verified for order %s", rec.Symbol, rec.OrderID)
		return order, nil
	}

	// Leg activation can lag the parent fill at the broker. Give the legs
	// the monitoring window before intervening.
	order = c.awaitLegActivation(ctx, rec, order)
	if stopLegLive(order) {
		log.Printf("coordinator: %s protective legs went live after the fill", rec.Symbol)
		return order, nil
	}
	return order, c.protectNakedPosition(ctx, rec, order)
}

// awaitLegActivation polls the parent order until a stop leg reports live or
// the monitoring window expires, returning the last broker view.
func (c *Coordinator) awaitLegActivation(ctx context.Context, rec *ActiveOrderRecord, last broker.Order) broker.Order {
	deadline := c.now().Add(c.cfg.MonitorWindow)
	for c.now().Before(deadline) {
		if err := sleepCtx(ctx, c.cfg.MonitorPoll); err != nil {
			return last
		}
		order, err := c.gateway.GetOrderByID(ctx, rec.OrderID)
		if err != nil {
			log.Printf("coordinator: leg poll for %s: %v", rec.Symbol, err)
			continue
		}
		last = order
		if stopLegLive(order) {
			return order
		}
	}
	return last
}

// waitForFill polls the parent order: a few quick verification attempts with
// growing delays, then a slower extended-monitoring window. An order still
// unfilled when the window closes is canceled.
func (c *Coordinator) waitForFill(ctx context.Context, rec *ActiveOrderRecord) (broker.Order, error) {
	var last broker.Order
	last.ID = rec.OrderID

	for attempt := 1; attempt <= c.cfg.VerifyAttempts; attempt++ {
		if err := sleepCtx(ctx, time.Duration(attempt)*c.cfg.VerifyBaseDelay); err != nil {
			return last, err
		}
		order, err := c.gateway.GetOrderByID(ctx, rec.OrderID)
		if err != nil {
			log.Printf("coordinator: verify attempt %d for %s: %v", attempt, rec.Symbol, err)
			continue
		}
		last = order
		if order.FilledQty > 0 || order.Status.IsTerminal() {
			return order, nil
		}
	}

	log.Printf("coordinator: %s order %s unfilled after verification, monitoring for %s",
		rec.Symbol, rec.OrderID, c.cfg.MonitorWindow)
	deadline := c.now().Add(c.cfg.MonitorWindow)
	for c.now().Before(deadline) {
		if err := sleepCtx(ctx, c.cfg.MonitorPoll); err != nil {
			return last, err
		}
		order, err := c.gateway.GetOrderByID(ctx, rec.OrderID)
		if err != nil {
			log.Printf("coordinator: monitor poll for %s: %v", rec.Symbol, err)
			continue
		}
		last = order
		if order.FilledQty > 0 || order.Status.IsTerminal() {
			return order, nil
		}
	}

	log.Printf("coordinator: %s order %s expired the monitoring window, canceling", rec.Symbol, rec.OrderID)
	if err := c.gateway.CancelOrder(ctx, rec.OrderID); err != nil {
		log.Printf("coordinator: cancel %s: %v", rec.OrderID, err)
	}
	// One last look: the cancel may have raced a partial fill.
	if order, err := c.gateway.GetOrderByID(ctx, rec.OrderID); err == nil {
		last = order
	}
	return last, nil
}

// protectNakedPosition guards a filled position whose broker legs never went
// live. Conflicting open orders are canceled first so the synthesized stop
// cannot be rejected for held shares; the stop is sized to the actual filled
// quantity. When the stop cannot be placed the position is liquidated.
func (c *Coordinator) protectNakedPosition(ctx context.Context, rec *ActiveOrderRecord, order broker.Order) error {
	log.Printf("coordinator: %s filled %.0f with no live stop leg, synthesizing protection",
		rec.Symbol, order.FilledQty)

	c.cancelConflictingOrders(ctx, rec.Symbol, rec.OrderID)

	stopPrice := rec.Signal.StopLoss
	if stopPrice <= 0 || stopPrice >= order.FilledAvgPrice {
		stopPrice = roundToTick(order.FilledAvgPrice*(1-c.cfg.RediscoveryStopPct), c.cfg.MinTick)
	}

	stopID, err := c.placeEmergencyStop(ctx, rec.Symbol, order.FilledQty, stopPrice)
	if err == nil {
		// Best effort only: most brokers reject a second sell committing the
		// same shares, and the stop is the one that matters.
		if tp := rec.Signal.TargetPrice; tp > order.FilledAvgPrice {
			if tpErr := c.placeTakeProfit(ctx, rec.Symbol, order.FilledQty, tp); tpErr != nil {
				log.Printf("coordinator: best-effort take profit for %s: %v", rec.Symbol, tpErr)
			}
		}
		c.setStatus(rec.Symbol, StatusEmergencyProtected)
		c.publishAlert(ctx, alert.Alert{
			Kind:     alert.KindPositionSafety,
			Severity: alert.SeverityCritical,
			Symbol:   rec.Symbol,
			Issue:    fmt.Sprintf("bracket legs missing for %.0f filled shares", order.FilledQty),
			Action:   fmt.Sprintf("emergency stop %s placed at %.2f", stopID, stopPrice),
		})
		return nil
	}

	log.Printf("coordinator: emergency stop for %s failed (%v), liquidating", rec.Symbol, err)
	if liqErr := c.emergencyLiquidate(ctx, rec.Symbol, order.FilledQty); liqErr != nil {
		return liqErr
	}
	c.removeActive(rec.Symbol)
	c.publishAlert(ctx, alert.Alert{
		Kind:     alert.KindPositionSafety,
		Severity: alert.SeverityCritical,
		Symbol:   rec.Symbol,
		Issue:    fmt.Sprintf("emergency stop could not be placed: %v", err),
		Action:   "position liquidated at market",
	})
	return fmt.Errorf("protect %s: stop placement failed, position liquidated", rec.Symbol)
}

// cancelConflictingOrders cancels every live order for the symbol except the
// one identified by keepID.
func (c *Coordinator) cancelConflictingOrders(ctx context.Context, symbol, keepID string) {
	open, err := c.gateway.GetOpenOrders(ctx, symbol)
	if err != nil {
		log.Printf("coordinator: list open orders for %s: %v", symbol, err)
		return
	}
	for _, o := range open {
		if o.ID == keepID || !o.Status.IsLive() {
			continue
		}
		if err := c.gateway.CancelOrder(ctx, o.ID); err != nil {
			log.Printf("coordinator: cancel conflicting order %s: %v", o.ID, err)
		} else {
			log.Printf("coordinator: canceled conflicting order %s for %s", o.ID, symbol)
		}
	}
}

// placeEmergencyStop submits a plain GTC stop sell for the given quantity.
func (c *Coordinator) placeEmergencyStop(ctx context.Context, symbol string, qty, stopPrice float64) (string, error) {
	result, err := c.gateway.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:      symbol,
		Side:        broker.SideSell,
		Type:        broker.OrderTypeStop,
		Qty:         qty,
		StopPrice:   stopPrice,
		TimeInForce: broker.TIFGTC,
		ClientID:    uuid.NewString(),
		Class:       broker.ClassSimple,
	})
	if err != nil {
		return "", fmt.Errorf("emergency stop %s: %w", symbol, err)
	}
	return result.OrderID, nil
}

// placeTakeProfit submits a GTC limit sell at the target price.
func (c *Coordinator) placeTakeProfit(ctx context.Context, symbol string, qty, limitPrice float64) error {
	_, err := c.gateway.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:      symbol,
		Side:        broker.SideSell,
		Type:        broker.OrderTypeLimit,
		Qty:         qty,
		LimitPrice:  limitPrice,
		TimeInForce: broker.TIFGTC,
		ClientID:    uuid.NewString(),
		Class:       broker.ClassSimple,
	})
	return err
}

// emergencyLiquidate market-sells the position with bounded retries. An
// insufficient-quantity rejection triggers a re-read of the real position so
// the next attempt sells what is actually there. Exhausting the retries
// raises the fatal, human-actionable alert.
func (c *Coordinator) emergencyLiquidate(ctx context.Context, symbol string, qty float64) error {
	remaining := qty
	for attempt := 1; attempt <= c.cfg.LiquidationAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, c.cfg.LiquidationDelay); err != nil {
				return err
			}
		}

		_, err := c.gateway.SubmitOrder(ctx, broker.OrderRequest{
			Symbol:      symbol,
			Side:        broker.SideSell,
			Type:        broker.OrderTypeMarket,
			Qty:         remaining,
			TimeInForce: broker.TIFDay,
			ClientID:    uuid.NewString(),
			Class:       broker.ClassSimple,
		})
		if err == nil {
			log.Printf("coordinator: %s liquidated (%.0f shares, attempt %d)", symbol, remaining, attempt)
			return nil
		}

		log.Printf("coordinator: liquidation attempt %d for %s: %v", attempt, symbol, err)
		if broker.IsInsufficientQuantity(err) {
			actual, ok := c.lookupPositionQty(ctx, symbol)
			if ok && actual <= 0 {
				log.Printf("coordinator: %s already flat, liquidation unnecessary", symbol)
				return nil
			}
			if ok {
				remaining = actual
			}
		}
	}

	c.publishAlert(ctx, alert.Alert{
		Kind:     alert.KindLiquidationExhausted,
		Severity: alert.SeverityFatal,
		Symbol:   symbol,
		Issue:    fmt.Sprintf("liquidation failed %d times, %.0f shares still unprotected", c.cfg.LiquidationAttempts, remaining),
		Action:   "manual intervention required",
	})
	return fmt.Errorf("liquidate %s: %d attempts exhausted", symbol, c.cfg.LiquidationAttempts)
}

func (c *Coordinator) lookupPositionQty(ctx context.Context, symbol string) (float64, bool) {
	positions, err := c.gateway.GetAllPositions(ctx)
	if err != nil {
		log.Printf("coordinator: position lookup for %s: %v", symbol, err)
		return 0, false
	}
	for _, pos := range positions {
		if pos.Symbol == symbol {
			return pos.Qty, true
		}
	}
	return 0, true
}

// stopLegLive reports whether the order carries a live stop leg. HELD legs
// are not live protection; a missing take-profit leg is tolerable, a missing
// stop is not.
func stopLegLive(order broker.Order) bool {
	for _, leg := range order.Legs {
		if leg.StopPrice > 0 && leg.Status.IsLive() {
			return true
		}
	}
	return false
}
