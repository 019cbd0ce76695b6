package signal

// Action denotes the direction of a trading signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// TradingSignal is an approved trading decision from the upstream strategy
// collaborator. Immutable once issued; the execution core never edits it.
type TradingSignal struct {
	Symbol       string
	Action       Action
	EntryPrice   float64
	StopLoss     float64
	TargetPrice  float64
	PositionSize float64 // fraction of equity requested by the strategy
	Confidence   float64 // 0..1
	RiskReward   float64
	MaxHoldDays  int
	ATR          float64 // optional volatility estimate; 0 means unknown
}

// HasATR reports whether the signal carries a usable volatility estimate.
func (s TradingSignal) HasATR() bool {
	return s.ATR > 0
}
