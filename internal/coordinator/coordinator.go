package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeguard/internal/alert"
	"tradeguard/internal/events"
	"tradeguard/internal/signal"
	"tradeguard/pkg/broker"
	"tradeguard/pkg/db"
)

// Coordinator owns the execution pipeline: sizing, bracket submission,
// protective-leg verification, emergency protection, and fill reconciliation.
// It holds the only mutable record of in-flight orders, keyed by symbol.
type Coordinator struct {
	cfg      Config
	gateway  broker.Gateway
	bus      *events.Bus
	database *db.Database // nil disables persistence

	mu         sync.Mutex
	active     map[string]*ActiveOrderRecord
	tiersTaken map[string]map[int]bool // profit tiers already sold, per symbol

	now func() time.Time // test hook
}

// New creates an execution coordinator.
func New(cfg Config, gateway broker.Gateway, bus *events.Bus, database *db.Database) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		gateway:    gateway,
		bus:        bus,
		database:   database,
		active:     make(map[string]*ActiveOrderRecord),
		tiersTaken: make(map[string]map[int]bool),
		now:        time.Now,
	}
}

// Execute runs one signal through the full pipeline and returns the
// reconciled trade. A nil trade with a non-nil error means nothing was
// executed; a non-nil trade with a non-nil error means a position exists but
// ended in a degraded state (emergency protection or worse).
func (c *Coordinator) Execute(ctx context.Context, sig signal.TradingSignal) (*ExecutedTrade, error) {
	account, err := c.gateway.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("execute %s: account snapshot: %w", sig.Symbol, err)
	}

	qty, method, err := c.computeQuantity(sig, account)
	if err != nil {
		c.bus.Publish(events.EventOrderRejected, sig.Symbol)
		return nil, err
	}

	if err := c.checkDuplicate(ctx, sig.Symbol); err != nil {
		c.bus.Publish(events.EventOrderRejected, sig.Symbol)
		return nil, err
	}

	stop, target := c.adjustBracketPrices(sig)
	req := broker.OrderRequest{
		Symbol:      sig.Symbol,
		Side:        broker.SideBuy,
		Type:        broker.OrderTypeLimit,
		Qty:         qty,
		LimitPrice:  sig.EntryPrice,
		TimeInForce: broker.TIFDay,
		ClientID:    uuid.NewString(),
		Class:       broker.ClassBracket,
		Bracket:     &broker.BracketLegs{StopLossPrice: stop, TakeProfitPrice: target},
	}

	log.Printf("coordinator: submitting %s bracket: qty %.0f @ %.2f stop %.2f target %.2f (%s)",
		sig.Symbol, qty, sig.EntryPrice, stop, target, method)

	result, err := c.gateway.SubmitOrder(ctx, req)
	if err != nil {
		c.bus.Publish(events.EventOrderRejected, sig.Symbol)
		return nil, fmt.Errorf("execute %s: submit: %w", sig.Symbol, err)
	}

	rec := &ActiveOrderRecord{
		Symbol:      sig.Symbol,
		OrderID:     result.OrderID,
		Signal:      sig,
		IntendedQty: qty,
		Status:      StatusActive,
		SubmittedAt: c.now(),
	}
	c.mu.Lock()
	c.active[sig.Symbol] = rec
	c.mu.Unlock()
	c.bus.Publish(events.EventOrderSubmitted, *rec)

	order, protErr := c.ensureProtection(ctx, rec)
	if order.FilledQty <= 0 {
		// Nothing filled: the record is gone (order canceled or rejected).
		c.removeActive(sig.Symbol)
		if protErr != nil {
			return nil, protErr
		}
		return nil, fmt.Errorf("execute %s: order %s expired unfilled", sig.Symbol, result.OrderID)
	}

	trade := c.reconcileFill(ctx, sig, qty, order)
	c.bus.Publish(events.EventOrderFilled, *trade)
	return trade, protErr
}

// checkDuplicate rejects a signal when the symbol already has an in-flight
// order or an open position at the broker.
func (c *Coordinator) checkDuplicate(ctx context.Context, symbol string) error {
	c.mu.Lock()
	_, inflight := c.active[symbol]
	c.mu.Unlock()
	if inflight {
		return fmt.Errorf("execute %s: an order is already in flight", symbol)
	}

	positions, err := c.gateway.GetAllPositions(ctx)
	if err != nil {
		return fmt.Errorf("execute %s: position check: %w", symbol, err)
	}
	for _, pos := range positions {
		if pos.Symbol == symbol && pos.Qty != 0 {
			return fmt.Errorf("execute %s: position already open (qty %.2f)", symbol, pos.Qty)
		}
	}
	return nil
}

// ActiveOrders returns a snapshot of the in-flight records.
func (c *Coordinator) ActiveOrders() []ActiveOrderRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActiveOrderRecord, 0, len(c.active))
	for _, rec := range c.active {
		out = append(out, *rec)
	}
	return out
}

// ActiveOrder returns the in-flight record for a symbol, if any.
func (c *Coordinator) ActiveOrder(symbol string) (ActiveOrderRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.active[symbol]
	if !ok {
		return ActiveOrderRecord{}, false
	}
	return *rec, true
}

func (c *Coordinator) removeActive(symbol string) {
	c.mu.Lock()
	delete(c.active, symbol)
	c.mu.Unlock()
}

func (c *Coordinator) setStatus(symbol string, status LifecycleStatus) {
	c.mu.Lock()
	if rec, ok := c.active[symbol]; ok {
		rec.Status = status
	}
	c.mu.Unlock()
}

// publishAlert routes a structured alert through the bus and mirrors
// emergency actions into the durable audit trail.
func (c *Coordinator) publishAlert(ctx context.Context, a alert.Alert) {
	a.Timestamp = c.now()
	c.bus.Publish(events.EventProtectionAlert, a)

	if c.database != nil && a.Kind != alert.KindPoorFill {
		row := db.ProtectionEventRow{
			Symbol: a.Symbol,
			Kind:   string(a.Kind),
			Detail: a.Issue,
			Action: a.Action,
		}
		if err := c.database.InsertProtectionEvent(ctx, row); err != nil {
			log.Printf("coordinator: persist protection event: %v", err)
		}
	}
}

// sleepCtx waits for d or until the context ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
