package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeguard/internal/alert"
	"tradeguard/internal/events"
	"tradeguard/internal/signal"
	"tradeguard/pkg/broker"
)

// fakeGateway is a scriptable in-memory broker. GetOrderByID serves the
// configured views in order, repeating the last one; submitHook lets a test
// fail specific submissions.
type fakeGateway struct {
	mu sync.Mutex

	account    broker.Account
	positions  []broker.Position
	openOrders []broker.Order

	orderViews []broker.Order
	viewCalls  int

	submitHook func(req broker.OrderRequest) (broker.OrderResult, error)
	submits    []broker.OrderRequest
	canceled   []string
}

func (f *fakeGateway) SubmitOrder(_ context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	f.mu.Lock()
	f.submits = append(f.submits, req)
	n := len(f.submits)
	f.mu.Unlock()

	if f.submitHook != nil {
		return f.submitHook(req)
	}
	return broker.OrderResult{OrderID: fmt.Sprintf("ord-%d", n), ClientID: req.ClientID, Status: broker.StatusNew}, nil
}

func (f *fakeGateway) CancelOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, orderID)
	return nil
}

func (f *fakeGateway) GetOrderByID(_ context.Context, orderID string) (broker.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.orderViews) == 0 {
		return broker.Order{ID: orderID, Status: broker.StatusNew}, nil
	}
	idx := f.viewCalls
	if idx >= len(f.orderViews) {
		idx = len(f.orderViews) - 1
	}
	f.viewCalls++
	return f.orderViews[idx], nil
}

func (f *fakeGateway) GetOpenOrders(_ context.Context, symbol string) ([]broker.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broker.Order
	for _, o := range f.openOrders {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeGateway) GetAllPositions(_ context.Context) ([]broker.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broker.Position(nil), f.positions...), nil
}

func (f *fakeGateway) GetAccount(_ context.Context) (broker.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account, nil
}

func (f *fakeGateway) submitted() []broker.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broker.OrderRequest(nil), f.submits...)
}

// fastConfig keeps production ratios but shrinks every delay so the pipeline
// runs in milliseconds.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.VerifyBaseDelay = time.Millisecond
	cfg.MonitorWindow = 20 * time.Millisecond
	cfg.MonitorPoll = 2 * time.Millisecond
	cfg.LiquidationDelay = time.Millisecond
	return cfg
}

func buySignal() signal.TradingSignal {
	return signal.TradingSignal{
		Symbol:      "AAPL",
		Action:      signal.ActionBuy,
		EntryPrice:  100,
		StopLoss:    95,
		TargetPrice: 115,
		Confidence:  0.8,
		RiskReward:  3,
		ATR:         2,
	}
}

func filledView(qty, avgPrice float64, legs []broker.Order) broker.Order {
	now := time.Now()
	return broker.Order{
		ID:             "ord-1",
		Symbol:         "AAPL",
		Side:           broker.SideBuy,
		Qty:            qty,
		FilledQty:      qty,
		FilledAvgPrice: avgPrice,
		Status:         broker.StatusFilled,
		SubmittedAt:    now.Add(-2 * time.Second),
		FilledAt:       now,
		Legs:           legs,
	}
}

func liveStopLeg() broker.Order {
	return broker.Order{ID: "leg-stop", Symbol: "AAPL", Side: broker.SideSell, StopPrice: 95, Status: broker.StatusNew}
}

func drainAlerts(ch <-chan any) []alert.Alert {
	var out []alert.Alert
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			if a, isAlert := v.(alert.Alert); isAlert {
				out = append(out, a)
			}
		default:
			return out
		}
	}
}

func TestExecuteHappyPath(t *testing.T) {
	fg := &fakeGateway{
		account:    broker.Account{Equity: 10000, BuyingPower: 20000},
		orderViews: []broker.Order{filledView(5, 100.02, []broker.Order{liveStopLeg()})},
	}
	c := New(fastConfig(), fg, events.NewBus(), nil)

	trade, err := c.Execute(context.Background(), buySignal())
	require.NoError(t, err)
	require.NotNil(t, trade)
	require.Equal(t, 5.0, trade.ActualQty)
	require.Equal(t, QualityExcellent, trade.Quality)

	rec, ok := c.ActiveOrder("AAPL")
	require.True(t, ok)
	require.Equal(t, StatusActive, rec.Status)

	submits := fg.submitted()
	require.Len(t, submits, 1)
	req := submits[0]
	require.Equal(t, broker.ClassBracket, req.Class)
	require.Equal(t, 5.0, req.Qty)
	require.NotNil(t, req.Bracket)
	require.Equal(t, 95.0, req.Bracket.StopLossPrice)
	require.Equal(t, 115.0, req.Bracket.TakeProfitPrice)
}

func TestExecuteRejectsDuplicatePosition(t *testing.T) {
	fg := &fakeGateway{
		account:   broker.Account{Equity: 10000, BuyingPower: 20000},
		positions: []broker.Position{{Symbol: "AAPL", Qty: 10, AvgEntryPrice: 90, MarketValue: 950}},
	}
	c := New(fastConfig(), fg, events.NewBus(), nil)

	trade, err := c.Execute(context.Background(), buySignal())
	require.Error(t, err)
	require.Nil(t, trade)
	require.Empty(t, fg.submitted())
}

func TestUnfilledOrderCanceledAfterWindow(t *testing.T) {
	fg := &fakeGateway{
		account:    broker.Account{Equity: 10000, BuyingPower: 20000},
		orderViews: []broker.Order{{ID: "ord-1", Symbol: "AAPL", Status: broker.StatusNew}},
	}
	c := New(fastConfig(), fg, events.NewBus(), nil)

	trade, err := c.Execute(context.Background(), buySignal())
	require.Error(t, err)
	require.Nil(t, trade)
	require.Contains(t, fg.canceled, "ord-1")

	_, ok := c.ActiveOrder("AAPL")
	require.False(t, ok, "record must not survive an unfilled order")
}

// Bracket parent fills but the broker never activates the legs. The position
// must end up guarded by a synthesized stop sized to the actual fill.
func TestMissingLegsSynthesizeEmergencyStop(t *testing.T) {
	fg := &fakeGateway{
		account:    broker.Account{Equity: 10000, BuyingPower: 20000},
		orderViews: []broker.Order{filledView(5, 100.05, nil)},
		openOrders: []broker.Order{
			{ID: "tp-1", Symbol: "AAPL", Side: broker.SideSell, Type: broker.OrderTypeLimit, LimitPrice: 115, Status: broker.StatusNew},
		},
	}
	bus := events.NewBus()
	alerts, unsub := bus.Subscribe(events.EventProtectionAlert, 8)
	defer unsub()
	c := New(fastConfig(), fg, bus, nil)

	trade, err := c.Execute(context.Background(), buySignal())
	require.NoError(t, err)
	require.NotNil(t, trade)

	rec, ok := c.ActiveOrder("AAPL")
	require.True(t, ok)
	require.Equal(t, StatusEmergencyProtected, rec.Status)

	require.Contains(t, fg.canceled, "tp-1", "conflicting order must be canceled before the stop")

	var stop *broker.OrderRequest
	for _, req := range fg.submitted() {
		if req.Type == broker.OrderTypeStop {
			r := req
			stop = &r
		}
	}
	require.NotNil(t, stop, "emergency stop must be submitted")
	require.Equal(t, broker.SideSell, stop.Side)
	require.Equal(t, 5.0, stop.Qty, "stop must cover the actual filled quantity")
	require.Equal(t, 95.0, stop.StopPrice)

	got := drainAlerts(alerts)
	require.NotEmpty(t, got)
	require.Equal(t, alert.KindPositionSafety, got[0].Kind)
	require.Equal(t, alert.SeverityCritical, got[0].Severity)
}

// Stop placement fails outright, so the coordinator liquidates instead and
// reports a protected-by-exit outcome.
func TestLiquidationAfterStopFailure(t *testing.T) {
	fg := &fakeGateway{
		account:    broker.Account{Equity: 10000, BuyingPower: 20000},
		orderViews: []broker.Order{filledView(5, 100, nil)},
	}
	fg.submitHook = func(req broker.OrderRequest) (broker.OrderResult, error) {
		if req.Type == broker.OrderTypeStop {
			return broker.OrderResult{}, &broker.ValidationError{Op: "submit", Code: broker.ReasonBadBracketPricing, Message: "stop rejected"}
		}
		return broker.OrderResult{OrderID: fmt.Sprintf("ord-%d", len(fg.submitted())), Status: broker.StatusNew}, nil
	}
	c := New(fastConfig(), fg, events.NewBus(), nil)

	trade, err := c.Execute(context.Background(), buySignal())
	require.Error(t, err)
	require.Contains(t, err.Error(), "liquidated")
	require.NotNil(t, trade, "the fill still gets reconciled")

	var marketSells int
	for _, req := range fg.submitted() {
		if req.Type == broker.OrderTypeMarket && req.Side == broker.SideSell {
			marketSells++
		}
	}
	require.Equal(t, 1, marketSells)

	_, ok := c.ActiveOrder("AAPL")
	require.False(t, ok, "liquidated position must drop its record")
}

// Every liquidation attempt is rejected for insufficient quantity while the
// broker still shows the position open. The retries must exhaust and raise
// the fatal, human-actionable alert.
func TestLiquidationExhaustedRaisesFatalAlert(t *testing.T) {
	fg := &fakeGateway{
		account:    broker.Account{Equity: 10000, BuyingPower: 20000},
		orderViews: []broker.Order{filledView(5, 100, nil)},
	}
	fg.submitHook = func(req broker.OrderRequest) (broker.OrderResult, error) {
		if req.Side == broker.SideSell {
			return broker.OrderResult{}, &broker.ValidationError{Op: "submit", Code: broker.ReasonInsufficientQuantity, Message: "insufficient qty available"}
		}
		// The bracket buy went through; the broker now shows the position.
		fg.mu.Lock()
		fg.positions = []broker.Position{{Symbol: "AAPL", Qty: 5, AvgEntryPrice: 100, MarketValue: 500}}
		fg.mu.Unlock()
		return broker.OrderResult{OrderID: "ord-1", Status: broker.StatusNew}, nil
	}

	bus := events.NewBus()
	alerts, unsub := bus.Subscribe(events.EventProtectionAlert, 8)
	defer unsub()
	cfg := fastConfig()
	c := New(cfg, fg, bus, nil)

	trade, err := c.Execute(context.Background(), buySignal())
	require.Error(t, err)
	require.Contains(t, err.Error(), "attempts exhausted")
	require.NotNil(t, trade)

	var marketSells int
	for _, req := range fg.submitted() {
		if req.Type == broker.OrderTypeMarket && req.Side == broker.SideSell {
			marketSells++
		}
	}
	require.Equal(t, cfg.LiquidationAttempts, marketSells)

	var fatal *alert.Alert
	for _, a := range drainAlerts(alerts) {
		if a.Kind == alert.KindLiquidationExhausted {
			found := a
			fatal = &found
		}
	}
	require.NotNil(t, fatal, "exhaustion must raise the fatal alert")
	require.Equal(t, alert.SeverityFatal, fatal.Severity)
}

// An insufficient-quantity rejection re-reads the real position so the next
// attempt sells what is actually there.
func TestLiquidationAdjustsToActualQuantity(t *testing.T) {
	fg := &fakeGateway{
		account:   broker.Account{Equity: 10000},
		positions: []broker.Position{{Symbol: "AAPL", Qty: 3, AvgEntryPrice: 100, MarketValue: 300}},
	}
	attempts := 0
	fg.submitHook = func(req broker.OrderRequest) (broker.OrderResult, error) {
		attempts++
		if attempts == 1 {
			return broker.OrderResult{}, &broker.ValidationError{Op: "submit", Code: broker.ReasonInsufficientQuantity, Message: "insufficient qty available"}
		}
		return broker.OrderResult{OrderID: "liq-1", Status: broker.StatusNew}, nil
	}
	c := New(fastConfig(), fg, events.NewBus(), nil)

	err := c.emergencyLiquidate(context.Background(), "AAPL", 5)
	require.NoError(t, err)

	submits := fg.submitted()
	require.Len(t, submits, 2)
	require.Equal(t, 5.0, submits[0].Qty)
	require.Equal(t, 3.0, submits[1].Qty, "second attempt must use the broker's actual quantity")
}
