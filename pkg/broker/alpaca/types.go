package alpaca

import (
	"strconv"
	"time"

	"tradeguard/pkg/broker"
)

// Wire DTOs. Alpaca encodes all numerics as JSON strings; conversion happens
// here and nowhere else, and missing required fields become a typed ParseError
// instead of a silent zero.

type orderJSON struct {
	ID             string      `json:"id"`
	ClientOrderID  string      `json:"client_order_id"`
	Symbol         string      `json:"symbol"`
	Side           string      `json:"side"`
	Type           string      `json:"type"`
	Qty            string      `json:"qty"`
	FilledQty      string      `json:"filled_qty"`
	LimitPrice     string      `json:"limit_price"`
	StopPrice      string      `json:"stop_price"`
	FilledAvgPrice string      `json:"filled_avg_price"`
	Status         string      `json:"status"`
	SubmittedAt    string      `json:"submitted_at"`
	FilledAt       string      `json:"filled_at"`
	Legs           []orderJSON `json:"legs"`
}

type positionJSON struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	MarketValue   string `json:"market_value"`
	UnrealizedPL  string `json:"unrealized_pl"`
	AvgEntryPrice string `json:"avg_entry_price"`
}

type accountJSON struct {
	Equity           string `json:"equity"`
	Cash             string `json:"cash"`
	BuyingPower      string `json:"buying_power"`
	DaytradeCount    int    `json:"daytrade_count"`
	PatternDayTrader bool   `json:"pattern_day_trader"`
}

type apiErrorJSON struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Submission payloads.

type takeProfitJSON struct {
	LimitPrice string `json:"limit_price"`
}

type stopLossJSON struct {
	StopPrice string `json:"stop_price"`
}

type orderRequestJSON struct {
	Symbol        string          `json:"symbol"`
	Qty           string          `json:"qty"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	TimeInForce   string          `json:"time_in_force"`
	LimitPrice    string          `json:"limit_price,omitempty"`
	StopPrice     string          `json:"stop_price,omitempty"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	OrderClass    string          `json:"order_class,omitempty"`
	TakeProfit    *takeProfitJSON `json:"take_profit,omitempty"`
	StopLoss      *stopLossJSON   `json:"stop_loss,omitempty"`
}

func (o orderJSON) toOrder(op string) (broker.Order, error) {
	if o.ID == "" {
		return broker.Order{}, &broker.ParseError{Op: op, Field: "id"}
	}
	if o.Symbol == "" {
		return broker.Order{}, &broker.ParseError{Op: op, Field: "symbol"}
	}
	if o.Status == "" {
		return broker.Order{}, &broker.ParseError{Op: op, Field: "status"}
	}

	qty, err := requiredFloat(op, "qty", o.Qty)
	if err != nil {
		return broker.Order{}, err
	}

	out := broker.Order{
		ID:             o.ID,
		ClientID:       o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           mapSide(o.Side),
		Type:           mapType(o.Type),
		Qty:            qty,
		FilledQty:      optionalFloat(o.FilledQty),
		LimitPrice:     optionalFloat(o.LimitPrice),
		StopPrice:      optionalFloat(o.StopPrice),
		FilledAvgPrice: optionalFloat(o.FilledAvgPrice),
		Status:         mapStatus(o.Status),
		SubmittedAt:    optionalTime(o.SubmittedAt),
		FilledAt:       optionalTime(o.FilledAt),
	}

	for _, leg := range o.Legs {
		conv, err := leg.toOrder(op)
		if err != nil {
			return broker.Order{}, err
		}
		out.Legs = append(out.Legs, conv)
	}
	return out, nil
}

func (p positionJSON) toPosition(op string) (broker.Position, error) {
	if p.Symbol == "" {
		return broker.Position{}, &broker.ParseError{Op: op, Field: "symbol"}
	}
	qty, err := requiredFloat(op, "qty", p.Qty)
	if err != nil {
		return broker.Position{}, err
	}
	return broker.Position{
		Symbol:        p.Symbol,
		Qty:           qty,
		MarketValue:   optionalFloat(p.MarketValue),
		UnrealizedPL:  optionalFloat(p.UnrealizedPL),
		AvgEntryPrice: optionalFloat(p.AvgEntryPrice),
	}, nil
}

func (a accountJSON) toAccount(op string) (broker.Account, error) {
	equity, err := requiredFloat(op, "equity", a.Equity)
	if err != nil {
		return broker.Account{}, err
	}
	return broker.Account{
		Equity:           equity,
		Cash:             optionalFloat(a.Cash),
		BuyingPower:      optionalFloat(a.BuyingPower),
		DayTradeCount:    a.DaytradeCount,
		PatternDayTrader: a.PatternDayTrader,
	}, nil
}

func requiredFloat(op, field, v string) (float64, error) {
	if v == "" {
		return 0, &broker.ParseError{Op: op, Field: field}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &broker.ParseError{Op: op, Field: field}
	}
	return f, nil
}

func optionalFloat(v string) float64 {
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func optionalTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func mapSide(s string) broker.Side {
	if s == "sell" {
		return broker.SideSell
	}
	return broker.SideBuy
}

func mapType(t string) broker.OrderType {
	switch t {
	case "limit":
		return broker.OrderTypeLimit
	case "stop":
		return broker.OrderTypeStop
	case "stop_limit":
		return broker.OrderTypeStopLimit
	default:
		return broker.OrderTypeMarket
	}
}

func mapStatus(s string) broker.OrderStatus {
	switch s {
	case "new":
		return broker.StatusNew
	case "accepted", "pending_replace", "calculated":
		return broker.StatusAccepted
	case "partially_filled":
		return broker.StatusPartial
	case "filled":
		return broker.StatusFilled
	case "canceled", "done_for_day", "replaced":
		return broker.StatusCanceled
	case "rejected", "stopped", "suspended":
		return broker.StatusRejected
	case "expired":
		return broker.StatusExpired
	case "held":
		return broker.StatusHeld
	case "pending_new", "accepted_for_bidding":
		return broker.StatusPendingNew
	case "pending_cancel":
		return broker.StatusPendingCancel
	default:
		return broker.StatusUnknown
	}
}
