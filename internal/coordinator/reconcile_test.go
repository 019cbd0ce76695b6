package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeguard/internal/signal"
	"tradeguard/pkg/broker"
)

func reconcileOrder(filledQty, avgPrice float64, duration time.Duration) broker.Order {
	submitted := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	return broker.Order{
		ID:             "ord-1",
		Symbol:         "AAPL",
		Side:           broker.SideBuy,
		Qty:            10,
		FilledQty:      filledQty,
		FilledAvgPrice: avgPrice,
		Status:         broker.StatusFilled,
		SubmittedAt:    submitted,
		FilledAt:       submitted.Add(duration),
	}
}

func TestFillReportMetrics(t *testing.T) {
	sig := signal.TradingSignal{Symbol: "AAPL", Action: signal.ActionBuy, EntryPrice: 100}

	trade := buildFillReport(sig, 10, reconcileOrder(10, 100.5, 30*time.Second))
	require.Equal(t, 1.0, trade.FillRatio)
	require.InDelta(t, 0.5, trade.SlippagePct, 1e-9)
	require.InDelta(t, 5.0, trade.SlippageCost, 1e-9)
	require.Equal(t, 30*time.Second, trade.FillDuration)
}

func TestFillQualityTiers(t *testing.T) {
	sig := signal.TradingSignal{Symbol: "AAPL", Action: signal.ActionBuy, EntryPrice: 100}

	tests := []struct {
		name  string
		order broker.Order
		want  FillQuality
	}{
		{
			// Full fill, favorable price, fast: near-perfect score.
			name:  "full fast fill",
			order: reconcileOrder(10, 99.5, 30*time.Second),
			want:  QualityExcellent,
		},
		{
			// Half the intended size, half a percent of adverse slippage,
			// and the full five minutes to fill.
			name:  "slow partial with slippage",
			order: reconcileOrder(5, 100.5, 5*time.Minute),
			want:  QualityPoor,
		},
		{
			// A sliver of the intent, a full percent of slippage.
			name:  "tiny fill heavy slippage",
			order: reconcileOrder(1, 101, 5*time.Minute),
			want:  QualityVeryPoor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := buildFillReport(sig, 10, tt.order)
			require.Equal(t, tt.want, trade.Quality)
		})
	}
}

// Reconciliation is pure: replaying the same broker order yields an
// identical report.
func TestFillReportDeterministic(t *testing.T) {
	sig := signal.TradingSignal{Symbol: "AAPL", Action: signal.ActionBuy, EntryPrice: 100}
	order := reconcileOrder(7, 100.25, time.Minute)

	first := buildFillReport(sig, 10, order)
	second := buildFillReport(sig, 10, order)
	require.Equal(t, first, second)
}

// Favorable slippage on a sell is measured from the other side.
func TestSellSlippageSign(t *testing.T) {
	sig := signal.TradingSignal{Symbol: "AAPL", Action: signal.ActionSell, EntryPrice: 100}

	trade := buildFillReport(sig, 10, reconcileOrder(10, 99.5, 30*time.Second))
	require.InDelta(t, 0.5, trade.SlippagePct, 1e-9, "selling under the intent is adverse")
}
