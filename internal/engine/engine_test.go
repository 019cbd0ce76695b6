package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeguard/internal/compliance"
	"tradeguard/internal/coordinator"
	"tradeguard/internal/events"
	"tradeguard/internal/gaprisk"
	"tradeguard/internal/risk"
	"tradeguard/internal/signal"
	"tradeguard/pkg/broker"
	"tradeguard/pkg/db"
	"tradeguard/pkg/marketdata"
)

type stubGateway struct {
	mu         sync.Mutex
	account    broker.Account
	positions  []broker.Position
	orderViews []broker.Order
	viewCalls  int
	submits    []broker.OrderRequest
	canceled   []string
}

func (s *stubGateway) SubmitOrder(_ context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits = append(s.submits, req)
	return broker.OrderResult{OrderID: fmt.Sprintf("ord-%d", len(s.submits)), Status: broker.StatusNew}, nil
}

func (s *stubGateway) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = append(s.canceled, orderID)
	return nil
}

func (s *stubGateway) GetOrderByID(_ context.Context, orderID string) (broker.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.orderViews) == 0 {
		return broker.Order{ID: orderID, Status: broker.StatusNew}, nil
	}
	idx := s.viewCalls
	if idx >= len(s.orderViews) {
		idx = len(s.orderViews) - 1
	}
	s.viewCalls++
	return s.orderViews[idx], nil
}

func (s *stubGateway) GetOpenOrders(_ context.Context, _ string) ([]broker.Order, error) {
	return nil, nil
}

func (s *stubGateway) GetAllPositions(_ context.Context) ([]broker.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]broker.Position(nil), s.positions...), nil
}

func (s *stubGateway) GetAccount(_ context.Context) (broker.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account, nil
}

func (s *stubGateway) sells() []broker.OrderRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []broker.OrderRequest
	for _, req := range s.submits {
		if req.Side == broker.SideSell {
			out = append(out, req)
		}
	}
	return out
}

func newTestEngine(gw *stubGateway, initialEquity float64) (*Engine, *compliance.Tracker, *events.Bus) {
	coordCfg := coordinator.DefaultConfig()
	coordCfg.VerifyBaseDelay = time.Millisecond
	coordCfg.MonitorWindow = 20 * time.Millisecond
	coordCfg.MonitorPoll = 2 * time.Millisecond
	coordCfg.LiquidationDelay = time.Millisecond

	bus := events.NewBus()
	gate := risk.NewGate(risk.DefaultConfig(), initialEquity, nil)
	tracker := compliance.NewTracker(compliance.DefaultConfig(), nil)
	coord := coordinator.New(coordCfg, gw, bus, nil)
	e := New(DefaultConfig(), gw, marketdata.NewMockProvider(), gate, tracker, coord, gaprisk.NewMonitor(), bus)
	return e, tracker, bus
}

func approvedBuy() signal.TradingSignal {
	return signal.TradingSignal{
		Symbol:       "AAPL",
		Action:       signal.ActionBuy,
		EntryPrice:   100,
		StopLoss:     95,
		TargetPrice:  115,
		PositionSize: 0.05,
		Confidence:   0.8,
		RiskReward:   3,
		ATR:          2,
	}
}

func TestBuyPipelineRecordsCompliance(t *testing.T) {
	now := time.Now()
	gw := &stubGateway{
		account: broker.Account{Equity: 10000, BuyingPower: 20000},
		orderViews: []broker.Order{{
			ID: "ord-1", Symbol: "AAPL", Side: broker.SideBuy,
			Qty: 5, FilledQty: 5, FilledAvgPrice: 100.01,
			Status: broker.StatusFilled, SubmittedAt: now.Add(-2 * time.Second), FilledAt: now,
			Legs: []broker.Order{{ID: "leg-stop", StopPrice: 95, Status: broker.StatusNew}},
		}},
	}
	e, tracker, _ := newTestEngine(gw, 10000)

	trade, err := e.HandleSignal(context.Background(), approvedBuy())
	require.NoError(t, err)
	require.NotNil(t, trade)
	require.Equal(t, 5.0, trade.ActualQty)
	require.True(t, tracker.OpenedToday("AAPL"), "the fill must register as a same-day buy lot")
}

func TestBuyRejectedByRiskGate(t *testing.T) {
	gw := &stubGateway{account: broker.Account{Equity: 10000, BuyingPower: 20000}}
	e, _, _ := newTestEngine(gw, 10000)

	sig := approvedBuy()
	sig.RiskReward = 1.2

	trade, err := e.HandleSignal(context.Background(), sig)
	require.Error(t, err)
	require.Contains(t, err.Error(), "risk gate rejected")
	require.Nil(t, trade)
	require.Empty(t, gw.submits)
}

// Three day trades already in the window on a sub-minimum account: the sell
// that would create the fourth is blocked and the position held.
func TestSellBlockedByPatternDayTradingRule(t *testing.T) {
	gw := &stubGateway{
		account:   broker.Account{Equity: 8000},
		positions: []broker.Position{{Symbol: "AMD", Qty: 10, AvgEntryPrice: 150, MarketValue: 1520}},
	}
	e, tracker, bus := newTestEngine(gw, 8000)
	alerts, unsub := bus.Subscribe(events.EventComplianceAlert, 4)
	defer unsub()

	now := time.Now()
	for _, sym := range []string{"AAPL", "TSLA", "NVDA"} {
		tracker.RecordExecution(sym, signal.ActionBuy, 10, 100, now)
		tracker.RecordExecution(sym, signal.ActionSell, 10, 101, now.Add(time.Minute))
	}
	tracker.RecordExecution("AMD", signal.ActionBuy, 10, 150, now)

	_, err := e.HandleSignal(context.Background(), signal.TradingSignal{
		Symbol: "AMD", Action: signal.ActionSell, EntryPrice: 152,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "PDT")
	require.Empty(t, gw.sells(), "the position must be held, not sold")

	select {
	case v := <-alerts:
		// Alert payload carries the block for the delivery collaborator.
		_ = v
	default:
		t.Fatal("expected a compliance alert")
	}
}

// A sell signal carries no reliable price, so the recorded day trade must
// use the market price at exit, not whatever the signal said.
func TestSellRecordsMarketExitPrice(t *testing.T) {
	gw := &stubGateway{
		account:   broker.Account{Equity: 10000},
		positions: []broker.Position{{Symbol: "AAPL", Qty: 5, AvgEntryPrice: 100, MarketValue: 540}},
	}
	database, err := db.New(":memory:")
	require.NoError(t, err)
	defer database.Close()

	coordCfg := coordinator.DefaultConfig()
	coordCfg.VerifyBaseDelay = time.Millisecond
	coordCfg.MonitorWindow = 20 * time.Millisecond
	coordCfg.MonitorPoll = 2 * time.Millisecond
	coordCfg.LiquidationDelay = time.Millisecond

	bus := events.NewBus()
	gate := risk.NewGate(risk.DefaultConfig(), 10000, nil)
	tracker := compliance.NewTracker(compliance.DefaultConfig(), database)
	coord := coordinator.New(coordCfg, gw, bus, nil)
	data := marketdata.NewMockProvider()
	data.Step = 0 // deterministic quote
	data.SetPrice("AAPL", 107)
	e := New(DefaultConfig(), gw, data, gate, tracker, coord, gaprisk.NewMonitor(), bus)

	now := time.Now()
	tracker.RecordExecution("AAPL", signal.ActionBuy, 5, 100, now)

	_, err = e.HandleSignal(context.Background(), signal.TradingSignal{
		Symbol: "AAPL", Action: signal.ActionSell,
	})
	require.NoError(t, err)
	require.Len(t, gw.sells(), 1)

	trades, err := database.ListDayTradesSince(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.InDelta(t, 107.0, trades[0].SellPrice, 1e-9)
	require.InDelta(t, 35.0, trades[0].PnL, 1e-9)
}

func TestCircuitBreakerHaltsThePipeline(t *testing.T) {
	gw := &stubGateway{account: broker.Account{Equity: 8500}}
	e, _, _ := newTestEngine(gw, 10000)

	trade, err := e.HandleSignal(context.Background(), approvedBuy())
	require.Error(t, err)
	require.Contains(t, err.Error(), "circuit breaker")
	require.Nil(t, trade)
	require.Empty(t, gw.submits)
}
