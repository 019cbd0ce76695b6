package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tradeguard/internal/alert"
	"tradeguard/internal/compliance"
	"tradeguard/internal/coordinator"
	"tradeguard/internal/engine"
	"tradeguard/internal/events"
	"tradeguard/internal/gaprisk"
	"tradeguard/internal/risk"
	"tradeguard/internal/signal"
	"tradeguard/pkg/broker"
	"tradeguard/pkg/marketdata"
)

// dry_run_demo pushes a few signals through the full pipeline against an
// in-memory simulated broker. Nothing touches the network or a database.
//
// Usage:
//   go run ./scripts/dry_run_demo
func main() {
	log.Println("=== dry-run demo starting ===")

	sim := newSimBroker(10000)
	data := marketdata.NewMockProvider()
	data.SetPrice("AAPL", 100)
	data.SetPrice("TSLA", 250)

	bus := events.NewBus()
	defer bus.Close()
	dispatcher := &alert.Dispatcher{Bus: bus, Sink: alert.LogSink{}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	dispatcher.Start(ctx)

	coordCfg := coordinator.DefaultConfig()
	coordCfg.VerifyBaseDelay = 100 * time.Millisecond
	coordCfg.MonitorWindow = 2 * time.Second
	coordCfg.MonitorPoll = 200 * time.Millisecond

	gate := risk.NewGate(risk.DefaultConfig(), 10000, nil)
	tracker := compliance.NewTracker(compliance.DefaultConfig(), nil)
	coord := coordinator.New(coordCfg, sim, bus, nil)
	eng := engine.New(engine.DefaultConfig(), sim, data, gate, tracker, coord, gaprisk.NewMonitor(), bus)

	// 1) A clean entry: ATR-sized bracket, fills immediately in the sim.
	trade, err := eng.HandleSignal(ctx, signal.TradingSignal{
		Symbol: "AAPL", Action: signal.ActionBuy,
		EntryPrice: 100, StopLoss: 95, TargetPrice: 115,
		PositionSize: 0.05, Confidence: 0.8, RiskReward: 3, ATR: 2,
	})
	if err != nil {
		log.Printf("demo 1: %v", err)
	} else {
		log.Printf("demo 1: executed %s %.0f @ %.2f quality %s",
			trade.Symbol, trade.ActualQty, trade.ActualPrice, trade.Quality)
	}

	// 2) A signal the risk gate should reject on risk/reward.
	_, err = eng.HandleSignal(ctx, signal.TradingSignal{
		Symbol: "TSLA", Action: signal.ActionBuy,
		EntryPrice: 250, StopLoss: 240, TargetPrice: 255,
		PositionSize: 0.05, Confidence: 0.5, RiskReward: 0.5,
	})
	log.Printf("demo 2: expected rejection: %v", err)

	// 3) A management pass over the simulated book.
	if err := coord.ManagePositions(ctx); err != nil {
		log.Printf("demo 3: %v", err)
	}

	for _, pos := range sim.book() {
		log.Printf("final position: %s qty %.0f avg %.2f", pos.Symbol, pos.Qty, pos.AvgEntryPrice)
	}
	log.Println("=== dry-run demo complete ===")
}

// simBroker is a minimal in-memory gateway: bracket buys fill instantly at
// the limit price with live protective legs, sells reduce the position.
type simBroker struct {
	mu        sync.Mutex
	equity    float64
	nextID    int
	orders    map[string]broker.Order
	positions map[string]*broker.Position
}

func newSimBroker(equity float64) *simBroker {
	return &simBroker{
		equity:    equity,
		orders:    make(map[string]broker.Order),
		positions: make(map[string]*broker.Position),
	}
}

func (s *simBroker) book() []broker.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []broker.Position
	for _, pos := range s.positions {
		out = append(out, *pos)
	}
	return out
}

func (s *simBroker) SubmitOrder(_ context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := fmt.Sprintf("sim-%d", s.nextID)
	now := time.Now()

	order := broker.Order{
		ID: id, ClientID: req.ClientID, Symbol: req.Symbol, Side: req.Side,
		Type: req.Type, Qty: req.Qty, Status: broker.StatusNew, SubmittedAt: now,
	}

	switch {
	case req.Side == broker.SideBuy && req.Class == broker.ClassBracket:
		order.Status = broker.StatusFilled
		order.FilledQty = req.Qty
		order.FilledAvgPrice = req.LimitPrice
		order.FilledAt = now.Add(time.Second)
		order.Legs = []broker.Order{
			{ID: id + "-stop", Symbol: req.Symbol, Side: broker.SideSell,
				StopPrice: req.Bracket.StopLossPrice, Qty: req.Qty, Status: broker.StatusNew},
			{ID: id + "-tp", Symbol: req.Symbol, Side: broker.SideSell,
				LimitPrice: req.Bracket.TakeProfitPrice, Qty: req.Qty, Status: broker.StatusHeld},
		}
		pos := s.positions[req.Symbol]
		if pos == nil {
			pos = &broker.Position{Symbol: req.Symbol}
			s.positions[req.Symbol] = pos
		}
		pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Qty + req.LimitPrice*req.Qty) / (pos.Qty + req.Qty)
		pos.Qty += req.Qty
		pos.MarketValue = pos.Qty * req.LimitPrice

	case req.Side == broker.SideSell && req.Type == broker.OrderTypeMarket:
		pos := s.positions[req.Symbol]
		if pos == nil || pos.Qty < req.Qty {
			return broker.OrderResult{}, &broker.ValidationError{
				Op: "submit", Code: broker.ReasonInsufficientQuantity, Message: "insufficient qty available"}
		}
		pos.Qty -= req.Qty
		if pos.Qty == 0 {
			delete(s.positions, req.Symbol)
		}
		order.Status = broker.StatusFilled
		order.FilledQty = req.Qty
		order.FilledAvgPrice = pos.AvgEntryPrice
		order.FilledAt = now
	}

	s.orders[id] = order
	return broker.OrderResult{OrderID: id, ClientID: req.ClientID, Status: order.Status}, nil
}

func (s *simBroker) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order, ok := s.orders[orderID]; ok && !order.Status.IsTerminal() {
		order.Status = broker.StatusCanceled
		s.orders[orderID] = order
	}
	return nil
}

func (s *simBroker) GetOrderByID(_ context.Context, orderID string) (broker.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return broker.Order{}, fmt.Errorf("sim: unknown order %s", orderID)
	}
	return order, nil
}

func (s *simBroker) GetOpenOrders(_ context.Context, symbol string) ([]broker.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []broker.Order
	for _, order := range s.orders {
		if order.Status.IsLive() && (symbol == "" || order.Symbol == symbol) {
			out = append(out, order)
		}
	}
	return out, nil
}

func (s *simBroker) GetAllPositions(_ context.Context) ([]broker.Position, error) {
	return s.book(), nil
}

func (s *simBroker) GetAccount(_ context.Context) (broker.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return broker.Account{Equity: s.equity, Cash: s.equity, BuyingPower: s.equity * 2}, nil
}

var _ broker.Gateway = (*simBroker)(nil)
