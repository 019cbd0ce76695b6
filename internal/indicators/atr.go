package indicators

import (
	"math"

	"tradeguard/pkg/marketdata"
)

// DefaultATRPeriod is the conventional 14-bar window.
const DefaultATRPeriod = 14

// TrueRange computes the true range of a bar given the prior close.
func TrueRange(bar marketdata.Bar, prevClose float64) float64 {
	hl := bar.High - bar.Low
	hc := math.Abs(bar.High - prevClose)
	lc := math.Abs(bar.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// ATR returns the average true range over the final period bars. Returns 0
// when there is not enough history, which callers treat as "no volatility
// estimate available" and fall back to percentage sizing.
func ATR(bars []marketdata.Bar, period int) float64 {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(bars) < period+1 {
		return 0
	}

	start := len(bars) - period
	sum := 0.0
	for i := start; i < len(bars); i++ {
		sum += TrueRange(bars[i], bars[i-1].Close)
	}
	return sum / float64(period)
}

// ATRPercent expresses ATR as a fraction of the latest close, the volatility
// measure the risk gate thresholds against.
func ATRPercent(bars []marketdata.Bar, period int) float64 {
	if len(bars) == 0 {
		return 0
	}
	last := bars[len(bars)-1].Close
	if last <= 0 {
		return 0
	}
	return ATR(bars, period) / last
}
