package compliance

import "time"

// Config defines pattern-day-trading guard parameters.
type Config struct {
	// MaxDayTrades is the regulatory ceiling inside the rolling window for
	// accounts under MinEquity. The trade that would exceed it is blocked.
	MaxDayTrades int
	// WarnAt is the conservative count at which sells are still allowed but
	// produce a warning.
	WarnAt int
	// MinEquity is the regulatory minimum below which the ceiling applies.
	MinEquity float64
	// WindowBusinessDays is the rolling window length.
	WindowBusinessDays int
	// ArchiveDays is how long matched day trades are kept before purge,
	// slightly longer than the window for safety.
	ArchiveDays int
}

// DefaultConfig returns the FINRA pattern-day-trading parameters.
func DefaultConfig() Config {
	return Config{
		MaxDayTrades:       3,
		WarnAt:             2,
		MinEquity:          25000,
		WindowBusinessDays: 5,
		ArchiveDays:        7,
	}
}

// DayTrade is one matched same-day round trip.
type DayTrade struct {
	Symbol    string
	Qty       float64
	BuyPrice  float64
	SellPrice float64
	BuyTime   time.Time
	SellTime  time.Time
	PnL       float64
}

// buyLot is an open same-day purchase, consumed oldest-first by sells.
type buyLot struct {
	Qty   float64
	Price float64
	Time  time.Time
}

// Decision is the pre-trade compliance verdict.
type Decision struct {
	Allowed bool
	Warning string // non-blocking caution, empty when clean
	Reason  string // set when blocked
}
