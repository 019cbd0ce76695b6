package coordinator

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"tradeguard/internal/alert"
	"tradeguard/internal/events"
	"tradeguard/internal/signal"
	"tradeguard/pkg/broker"
	"tradeguard/pkg/db"
)

// Quality score weights: getting filled matters most, then price, then speed.
const (
	weightCompleteness = 0.5
	weightSlippage     = 0.3
	weightSpeed        = 0.2

	slippageFloorPct = 1.0 // 1% adverse slippage scores zero
	speedFloor       = 5 * time.Minute
)

// buildFillReport derives the execution record from intended values and
// confirmed broker fill data. Pure and deterministic: reconciling the same
// order twice yields the same report.
func buildFillReport(sig signal.TradingSignal, intendedQty float64, order broker.Order) ExecutedTrade {
	trade := ExecutedTrade{
		Symbol:        sig.Symbol,
		Side:          sig.Action,
		IntendedQty:   intendedQty,
		ActualQty:     order.FilledQty,
		IntendedPrice: sig.EntryPrice,
		ActualPrice:   order.FilledAvgPrice,
		ExecutedAt:    order.FilledAt,
	}
	if trade.ExecutedAt.IsZero() {
		trade.ExecutedAt = order.SubmittedAt
	}

	if intendedQty > 0 {
		trade.FillRatio = order.FilledQty / intendedQty
	}
	if sig.EntryPrice > 0 && order.FilledAvgPrice > 0 {
		diff := order.FilledAvgPrice - sig.EntryPrice
		if sig.Action == signal.ActionSell {
			diff = -diff
		}
		trade.SlippagePct = diff / sig.EntryPrice * 100
		trade.SlippageCost = diff * order.FilledQty
	}
	if !order.FilledAt.IsZero() && order.FilledAt.After(order.SubmittedAt) {
		trade.FillDuration = order.FilledAt.Sub(order.SubmittedAt)
	}

	trade.Quality = qualityFor(trade)
	return trade
}

func qualityFor(trade ExecutedTrade) FillQuality {
	completeness := clamp01(trade.FillRatio)
	slippage := 1 - clamp01(math.Max(trade.SlippagePct, 0)/slippageFloorPct)
	speed := 1 - clamp01(float64(trade.FillDuration)/float64(speedFloor))

	score := weightCompleteness*completeness + weightSlippage*slippage + weightSpeed*speed
	switch {
	case score >= 0.9:
		return QualityExcellent
	case score >= 0.75:
		return QualityGood
	case score >= 0.6:
		return QualityAcceptable
	case score >= 0.4:
		return QualityPoor
	default:
		return QualityVeryPoor
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// reconcileFill builds the execution record, persists it, and flags poor
// executions for review.
func (c *Coordinator) reconcileFill(ctx context.Context, sig signal.TradingSignal, intendedQty float64, order broker.Order) *ExecutedTrade {
	trade := buildFillReport(sig, intendedQty, order)

	log.Printf("coordinator: reconciled %s: %.0f/%.0f @ %.2f (intended %.2f) slippage %.3f%% quality %s",
		trade.Symbol, trade.ActualQty, trade.IntendedQty, trade.ActualPrice,
		trade.IntendedPrice, trade.SlippagePct, trade.Quality)

	if c.database != nil {
		row := db.ExecutedTradeRow{
			ID:             uuid.NewString(),
			Symbol:         trade.Symbol,
			Side:           string(trade.Side),
			IntendedQty:    trade.IntendedQty,
			ActualQty:      trade.ActualQty,
			IntendedPrice:  trade.IntendedPrice,
			ActualPrice:    trade.ActualPrice,
			FillRatio:      trade.FillRatio,
			SlippagePct:    trade.SlippagePct,
			SlippageCost:   trade.SlippageCost,
			FillDurationMS: trade.FillDuration.Milliseconds(),
			Quality:        string(trade.Quality),
			ExecutedAt:     trade.ExecutedAt,
		}
		if err := c.database.InsertExecutedTrade(ctx, row); err != nil {
			log.Printf("coordinator: persist executed trade: %v", err)
		}
	}

	if trade.Quality == QualityPoor || trade.Quality == QualityVeryPoor {
		a := alert.Alert{
			Kind:      alert.KindPoorFill,
			Severity:  alert.SeverityWarning,
			Symbol:    trade.Symbol,
			Issue:     fmt.Sprintf("fill quality %s: ratio %.2f, slippage %.3f%%", trade.Quality, trade.FillRatio, trade.SlippagePct),
			Action:    "recorded for execution review",
			Timestamp: c.now(),
		}
		c.bus.Publish(events.EventFillQualityAlert, a)
	}

	return &trade
}
