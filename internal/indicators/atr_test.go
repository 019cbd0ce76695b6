package indicators

import (
	"math"
	"testing"

	"tradeguard/pkg/marketdata"
)

func TestTrueRangeUsesGaps(t *testing.T) {
	tests := []struct {
		name      string
		bar       marketdata.Bar
		prevClose float64
		want      float64
	}{
		{
			name:      "plain range",
			bar:       marketdata.Bar{High: 105, Low: 100, Close: 102},
			prevClose: 103,
			want:      5,
		},
		{
			name:      "gap up dominates",
			bar:       marketdata.Bar{High: 120, Low: 118, Close: 119},
			prevClose: 110,
			want:      10,
		},
		{
			name:      "gap down dominates",
			bar:       marketdata.Bar{High: 95, Low: 93, Close: 94},
			prevClose: 100,
			want:      7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrueRange(tt.bar, tt.prevClose)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("TrueRange=%v, expected %v", got, tt.want)
			}
		})
	}
}

func TestATRRequiresEnoughHistory(t *testing.T) {
	bars := make([]marketdata.Bar, 5)
	if got := ATR(bars, 14); got != 0 {
		t.Fatalf("ATR with short history=%v, expected 0", got)
	}
}

func TestATRConstantRange(t *testing.T) {
	// 20 bars each with a 2-point range and no gaps: ATR must be 2.
	bars := make([]marketdata.Bar, 20)
	for i := range bars {
		bars[i] = marketdata.Bar{High: 101, Low: 99, Close: 100}
	}
	if got := ATR(bars, 14); math.Abs(got-2) > 1e-9 {
		t.Fatalf("ATR=%v, expected 2", got)
	}
	if got := ATRPercent(bars, 14); math.Abs(got-0.02) > 1e-9 {
		t.Fatalf("ATRPercent=%v, expected 0.02", got)
	}
}
