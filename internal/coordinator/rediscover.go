package coordinator

import (
	"context"
	"fmt"
	"log"

	"tradeguard/internal/alert"
	"tradeguard/internal/signal"
	"tradeguard/pkg/broker"
)

// Rediscover rebuilds the in-flight state from the broker after a restart.
// Open parent orders become active records again, and any position found
// without a live stop gets one immediately. The broker is the source of
// truth; nothing local survives a restart. Returns how many records this
// pass created.
func (c *Coordinator) Rediscover(ctx context.Context) (int, error) {
	orders, err := c.gateway.GetOpenOrders(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("rediscover: open orders: %w", err)
	}
	positions, err := c.gateway.GetAllPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("rediscover: positions: %w", err)
	}

	stops := make(map[string]bool)
	for _, o := range orders {
		if o.Side == broker.SideSell && o.StopPrice > 0 && o.Status.IsLive() {
			stops[o.Symbol] = true
		}
	}

	recovered := 0
	c.mu.Lock()
	for _, o := range orders {
		if o.Side != broker.SideBuy || !o.Status.IsLive() {
			continue
		}
		if _, exists := c.active[o.Symbol]; exists {
			continue
		}
		recovered++
		c.active[o.Symbol] = &ActiveOrderRecord{
			Symbol:  o.Symbol,
			OrderID: o.ID,
			Signal: signal.TradingSignal{
				Symbol:     o.Symbol,
				Action:     signal.ActionBuy,
				EntryPrice: o.LimitPrice,
			},
			IntendedQty: o.Qty,
			Status:      StatusActive,
			SubmittedAt: o.SubmittedAt,
		}
		log.Printf("coordinator: rediscovered open order %s for %s (qty %.0f)", o.ID, o.Symbol, o.Qty)
	}
	c.mu.Unlock()

	protected := 0
	for _, pos := range positions {
		if pos.Qty <= 0 || stops[pos.Symbol] {
			continue
		}
		stopPrice := roundToTick(pos.AvgEntryPrice*(1-c.cfg.RediscoveryStopPct), c.cfg.MinTick)
		stopID, err := c.placeEmergencyStop(ctx, pos.Symbol, pos.Qty, stopPrice)
		if err != nil {
			log.Printf("coordinator: rediscovery stop for %s: %v", pos.Symbol, err)
			c.publishAlert(ctx, alert.Alert{
				Kind:     alert.KindPositionSafety,
				Severity: alert.SeverityCritical,
				Symbol:   pos.Symbol,
				Issue:    fmt.Sprintf("unprotected position of %.0f shares found at startup, stop placement failed: %v", pos.Qty, err),
				Action:   "retry on the next management pass",
			})
			continue
		}
		protected++
		c.setStatus(pos.Symbol, StatusEmergencyProtected)
		c.publishAlert(ctx, alert.Alert{
			Kind:     alert.KindPositionSafety,
			Severity: alert.SeverityWarning,
			Symbol:   pos.Symbol,
			Issue:    fmt.Sprintf("position of %.0f shares had no live stop at startup", pos.Qty),
			Action:   fmt.Sprintf("protective stop %s placed at %.2f", stopID, stopPrice),
		})
	}

	log.Printf("coordinator: rediscovery complete: %d open orders tracked, %d positions re-protected",
		recovered, protected)
	return recovered, nil
}
