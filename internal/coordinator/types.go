package coordinator

import (
	"time"

	"tradeguard/internal/signal"
)

// LifecycleStatus tracks an active order record through its life.
type LifecycleStatus string

const (
	// StatusActive means the bracket order was submitted and its protective
	// legs are believed live.
	StatusActive LifecycleStatus = "ACTIVE"
	// StatusEmergencyProtected means the broker legs went missing and a
	// synthesized stop order is guarding the position instead.
	StatusEmergencyProtected LifecycleStatus = "EMERGENCY_PROTECTED"
)

// ActiveOrderRecord is the single live record per symbol. Owned exclusively
// by the Coordinator; outside packages only see copies.
type ActiveOrderRecord struct {
	Symbol      string
	OrderID     string
	Signal      signal.TradingSignal
	IntendedQty float64
	Status      LifecycleStatus
	SubmittedAt time.Time
}

// FillQuality tiers a reconciled execution.
type FillQuality string

const (
	QualityExcellent  FillQuality = "EXCELLENT"
	QualityGood       FillQuality = "GOOD"
	QualityAcceptable FillQuality = "ACCEPTABLE"
	QualityPoor       FillQuality = "POOR"
	QualityVeryPoor   FillQuality = "VERY_POOR"
)

// ExecutedTrade is the immutable record of one reconciled execution. Actual
// quantity and price always come from confirmed broker fill data.
type ExecutedTrade struct {
	Symbol        string
	Side          signal.Action
	IntendedQty   float64
	ActualQty     float64
	IntendedPrice float64
	ActualPrice   float64
	FillRatio     float64
	SlippagePct   float64
	SlippageCost  float64
	FillDuration  time.Duration
	Quality       FillQuality
	ExecutedAt    time.Time
}

// Config holds execution tunables.
type Config struct {
	// Sizing
	RiskPerTrade        float64 // fraction of equity risked per trade
	StopATRMultiple     float64 // stop distance in ATR multiples
	MaxPositionValuePct float64 // hard ceiling on position value vs equity
	MinTick             float64 // broker minimum price increment

	// Leg verification
	VerifyAttempts  int
	VerifyBaseDelay time.Duration // grows linearly per attempt

	// Extended post-fill monitoring
	MonitorWindow time.Duration
	MonitorPoll   time.Duration

	// Emergency liquidation
	LiquidationAttempts int
	LiquidationDelay    time.Duration

	// Startup rediscovery: stop distance applied to unprotected positions
	// found at boot, as a fraction of the average entry price.
	RediscoveryStopPct float64

	// Position management
	LossCutPct         float64   // negative, e.g. -0.08
	ProfitTakePcts     []float64 // ascending positive thresholds
	ProfitTakeFraction float64   // fraction sold at each threshold
	MaxConcentration   float64   // max position value as fraction of equity
}

// DefaultConfig returns execution defaults for a small equities account.
func DefaultConfig() Config {
	return Config{
		RiskPerTrade:        0.01,
		StopATRMultiple:     2.0,
		MaxPositionValuePct: 0.05,
		MinTick:             0.01,
		VerifyAttempts:      3,
		VerifyBaseDelay:     2 * time.Second,
		MonitorWindow:       60 * time.Second,
		MonitorPoll:         10 * time.Second,
		LiquidationAttempts: 10,
		LiquidationDelay:    3 * time.Second,
		RediscoveryStopPct:  0.05,
		LossCutPct:          -0.08,
		ProfitTakePcts:      []float64{0.10, 0.20},
		ProfitTakeFraction:  0.25,
		MaxConcentration:    0.20,
	}
}

// singleShareTierFraction returns the conservative fraction of equity a
// single-share fallback purchase may consume, scaled by account size.
func singleShareTierFraction(equity float64) float64 {
	switch {
	case equity < 5000:
		return 0.02
	case equity < 25000:
		return 0.03
	default:
		return 0.05
	}
}
