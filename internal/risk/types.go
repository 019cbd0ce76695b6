package risk

// Config defines risk gate parameters.
type Config struct {
	// Position limits
	MaxPositionFraction float64 // max fraction of equity per position
	MaxPositions        int     // portfolio position count ceiling

	// Concentration
	MaxSectorFraction float64 // max fraction of positions in one sector
	CorrelationWeight float64 // penalty weight per same-sector holding

	// Signal quality
	MinRiskReward   float64 // signals below this are rejected outright
	MaxRiskScore    float64 // approval ceiling for the weighted score
	ConfidenceBonus float64 // score reduction at full confidence

	// Volatility
	VolatilityThreshold float64 // ATR as fraction of price above which size shrinks

	// Notional floor
	MinPositionValue float64 // dollar floor below which a trade is pointless

	// Loss guards
	DailyDrawdownLimit  float64 // fraction below the daily high-water mark
	CircuitBreakerLimit float64 // fraction below the *initial* account value

	// Sector lookup for concentration checks; symbols not present map to
	// "UNKNOWN" and never group together.
	Sectors map[string]string
}

// DefaultConfig returns conservative defaults for a small swing account.
func DefaultConfig() Config {
	return Config{
		MaxPositionFraction: 0.10,
		MaxPositions:        8,
		MaxSectorFraction:   0.40,
		CorrelationWeight:   0.05,
		MinRiskReward:       2.0,
		MaxRiskScore:        0.70,
		ConfidenceBonus:     0.15,
		VolatilityThreshold: 0.04,
		MinPositionValue:    100.0,
		DailyDrawdownLimit:  0.03,
		CircuitBreakerLimit: 0.10,
		Sectors:             map[string]string{},
	}
}

// Assessment is the risk gate's decision for one signal. Produced once per
// signal, never persisted beyond the decision.
type Assessment struct {
	Approved        bool
	RiskScore       float64
	MaxPositionSize float64 // capped fraction of equity, after all scaling
	Warnings        []string
	Reasoning       string
}

// Metrics tracks daily risk state.
type Metrics struct {
	Day               string
	StartingEquity    float64
	DailyHighEquity   float64
	DailyPnL          float64
	TradesToday       int
	DrawdownHit       bool
	CircuitBreakerHit bool
}
