package coordinator

import (
	"fmt"
	"math"

	"tradeguard/internal/signal"
	"tradeguard/pkg/broker"
)

// computeQuantity sizes an entry in whole shares. ATR-based dollar-risk
// sizing when the signal carries volatility data, percentage-of-equity
// sizing otherwise. The position-value ceiling and buying power always cap
// the result. Returns the quantity and the sizing method used.
func (c *Coordinator) computeQuantity(sig signal.TradingSignal, account broker.Account) (float64, string, error) {
	entry := sig.EntryPrice
	if entry <= 0 {
		return 0, "", fmt.Errorf("sizing %s: entry price %.2f is not positive", sig.Symbol, entry)
	}

	var qty float64
	method := "pct_of_equity"
	if sig.HasATR() {
		method = "atr_risk"
		riskDollars := account.Equity * c.cfg.RiskPerTrade
		stopDistance := sig.ATR * c.cfg.StopATRMultiple
		qty = math.Floor(riskDollars / stopDistance)
	} else {
		fraction := sig.PositionSize
		if fraction <= 0 {
			fraction = c.cfg.MaxPositionValuePct
		}
		qty = math.Floor(account.Equity * fraction / entry)
	}

	maxValue := account.Equity * c.cfg.MaxPositionValuePct
	if qty*entry > maxValue {
		qty = math.Floor(maxValue / entry)
	}
	if qty*entry > account.BuyingPower {
		qty = math.Floor(account.BuyingPower / entry)
	}

	if qty >= 1 {
		return qty, method, nil
	}

	// Single-share fallback, only while one share stays a conservative
	// fraction of the account.
	limit := account.Equity * singleShareTierFraction(account.Equity)
	if entry <= limit && entry <= account.BuyingPower {
		return 1, "single_share", nil
	}
	return 0, "", fmt.Errorf("sizing %s: one share at %.2f exceeds the %.2f single-share budget", sig.Symbol, entry, limit)
}

// adjustBracketPrices clamps the protective prices to valid broker geometry:
// the stop strictly below entry, the target strictly above, both rounded to
// the minimum tick.
func (c *Coordinator) adjustBracketPrices(sig signal.TradingSignal) (stop, target float64) {
	tick := c.cfg.MinTick
	stop = roundToTick(sig.StopLoss, tick)
	target = roundToTick(sig.TargetPrice, tick)

	if stop >= sig.EntryPrice {
		stop = roundToTick(sig.EntryPrice-tick, tick)
	}
	if target <= sig.EntryPrice {
		target = roundToTick(sig.EntryPrice+tick, tick)
	}
	return stop, target
}

func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}
