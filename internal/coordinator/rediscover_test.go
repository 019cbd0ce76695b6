package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeguard/internal/events"
	"tradeguard/pkg/broker"
)

func TestRediscoverRebuildsStateFromBroker(t *testing.T) {
	submitted := time.Date(2025, 6, 2, 9, 45, 0, 0, time.UTC)
	fg := &fakeGateway{
		account: broker.Account{Equity: 10000},
		openOrders: []broker.Order{
			// An in-flight entry from before the restart.
			{ID: "ord-7", Symbol: "MSFT", Side: broker.SideBuy, Type: broker.OrderTypeLimit,
				Qty: 4, LimitPrice: 310, Status: broker.StatusAccepted, SubmittedAt: submitted},
			// TSLA already has live stop protection.
			{ID: "stop-2", Symbol: "TSLA", Side: broker.SideSell, Type: broker.OrderTypeStop,
				Qty: 10, StopPrice: 94, Status: broker.StatusNew},
		},
		positions: []broker.Position{
			{Symbol: "TSLA", Qty: 10, AvgEntryPrice: 100, MarketValue: 1020},
			// NVDA has no stop anywhere: naked after the restart.
			{Symbol: "NVDA", Qty: 4, AvgEntryPrice: 50, MarketValue: 210},
		},
	}
	bus := events.NewBus()
	alerts, unsub := bus.Subscribe(events.EventProtectionAlert, 8)
	defer unsub()
	c := New(fastConfig(), fg, bus, nil)

	recovered, err := c.Rediscover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	rec, ok := c.ActiveOrder("MSFT")
	require.True(t, ok, "open entry order must become an active record")
	require.Equal(t, "ord-7", rec.OrderID)
	require.Equal(t, 4.0, rec.IntendedQty)

	var stops []broker.OrderRequest
	for _, req := range fg.submitted() {
		if req.Type == broker.OrderTypeStop {
			stops = append(stops, req)
		}
	}
	require.Len(t, stops, 1, "only the naked position gets a new stop")
	require.Equal(t, "NVDA", stops[0].Symbol)
	require.Equal(t, 4.0, stops[0].Qty)
	require.InDelta(t, 47.5, stops[0].StopPrice, 1e-9)

	require.NotEmpty(t, drainAlerts(alerts), "re-protection is surfaced to the alert stream")
}

// Records that already exist must not inflate the recovery count.
func TestRediscoverCountsOnlyNewRecords(t *testing.T) {
	fg := &fakeGateway{
		account: broker.Account{Equity: 10000},
		openOrders: []broker.Order{
			{ID: "ord-7", Symbol: "MSFT", Side: broker.SideBuy, Type: broker.OrderTypeLimit,
				Qty: 4, LimitPrice: 310, Status: broker.StatusAccepted},
		},
	}
	c := New(fastConfig(), fg, events.NewBus(), nil)
	c.active["AAPL"] = &ActiveOrderRecord{Symbol: "AAPL", OrderID: "ord-1", Status: StatusActive}

	recovered, err := c.Rediscover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, recovered, "only the MSFT order is new to this pass")
	require.Len(t, c.ActiveOrders(), 2)
}
