package db

import "time"

// ExecutedTradeRow mirrors the executed_trades table.
type ExecutedTradeRow struct {
	ID             string
	Symbol         string
	Side           string
	IntendedQty    float64
	ActualQty      float64
	IntendedPrice  float64
	ActualPrice    float64
	FillRatio      float64
	SlippagePct    float64
	SlippageCost   float64
	FillDurationMS int64
	Quality        string
	ExecutedAt     time.Time
}

// DayTradeRow mirrors the day_trades table.
type DayTradeRow struct {
	ID        string
	Symbol    string
	Qty       float64
	BuyPrice  float64
	SellPrice float64
	BuyTime   time.Time
	SellTime  time.Time
	PnL       float64
}

// RiskMetricsRow mirrors the risk_metrics table, one row per trading day.
type RiskMetricsRow struct {
	Date              string
	StartingEquity    float64
	DailyPnL          float64
	Trades            int
	DrawdownHit       bool
	CircuitBreakerHit bool
}

// ProtectionEventRow records an emergency-protection action for audit.
type ProtectionEventRow struct {
	ID        int64
	Symbol    string
	Kind      string
	Detail    string
	Action    string
	CreatedAt time.Time
}
