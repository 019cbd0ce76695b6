package broker

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderClass distinguishes simple orders from bracket submissions.
type OrderClass string

const (
	ClassSimple  OrderClass = "SIMPLE"
	ClassBracket OrderClass = "BRACKET"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
)

// OrderStatus normalizes broker status into a small set. The parsing layer is
// the only place allowed to produce these; call sites never infer status from
// raw payloads.
type OrderStatus string

const (
	StatusNew           OrderStatus = "NEW"
	StatusAccepted      OrderStatus = "ACCEPTED"
	StatusPartial       OrderStatus = "PARTIALLY_FILLED"
	StatusFilled        OrderStatus = "FILLED"
	StatusCanceled      OrderStatus = "CANCELED"
	StatusRejected      OrderStatus = "REJECTED"
	StatusExpired       OrderStatus = "EXPIRED"
	StatusHeld          OrderStatus = "HELD"
	StatusPendingNew    OrderStatus = "PENDING_NEW"
	StatusPendingCancel OrderStatus = "PENDING_CANCEL"
	StatusUnknown       OrderStatus = "UNKNOWN"
)

// IsTerminal reports whether no further fills can occur.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// IsLive reports whether the order is working at the broker. HELD orders are
// accepted but not yet active, so they do not count as live protection.
func (s OrderStatus) IsLive() bool {
	switch s {
	case StatusNew, StatusAccepted, StatusPartial:
		return true
	}
	return false
}

// BracketLegs carries the dependent protective prices for a bracket order.
type BracketLegs struct {
	StopLossPrice   float64
	TakeProfitPrice float64
}

// OrderRequest captures an order intent to be sent to the broker.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Type        OrderType
	Qty         float64
	LimitPrice  float64 // required for LIMIT / STOP_LIMIT
	StopPrice   float64 // required for STOP / STOP_LIMIT
	TimeInForce TimeInForce
	ClientID    string // optional client order id
	Class       OrderClass
	Bracket     *BracketLegs // required when Class == ClassBracket
}

// OrderResult returns the broker ack for a submission.
type OrderResult struct {
	OrderID  string
	ClientID string
	Status   OrderStatus
}

// Order is the normalized view of a broker order.
type Order struct {
	ID             string
	ClientID       string
	Symbol         string
	Side           Side
	Type           OrderType
	Qty            float64
	FilledQty      float64
	LimitPrice     float64
	StopPrice      float64
	FilledAvgPrice float64
	Status         OrderStatus
	SubmittedAt    time.Time
	FilledAt       time.Time
	Legs           []Order // dependent bracket children, if any
}

// Position is a normalized broker position.
type Position struct {
	Symbol        string
	Qty           float64
	MarketValue   float64
	UnrealizedPL  float64
	AvgEntryPrice float64
}

// Account is the normalized account snapshot.
type Account struct {
	Equity           float64
	Cash             float64
	BuyingPower      float64
	DayTradeCount    int
	PatternDayTrader bool
}
