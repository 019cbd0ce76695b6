package marketdata

import (
	"context"
	"time"
)

// Quote is the latest trade/quote view for a symbol.
type Quote struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// Bar is one OHLCV aggregate.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Provider supplies read-only market data. The execution core uses it only for
// ATR-based sizing inputs and gap-risk close comparison, never for signal
// generation.
type Provider interface {
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetBars(ctx context.Context, symbol string, limit int) ([]Bar, error)
}
