package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"tradeguard/internal/alert"
	"tradeguard/internal/events"
	"tradeguard/internal/gaprisk"
)

// Run blocks until the context ends, driving the periodic safety loops:
// position management, gap-risk checks, and the daily reset.
func (e *Engine) Run(ctx context.Context) {
	manage := time.NewTicker(e.cfg.PositionCheckInterval)
	gap := time.NewTicker(e.cfg.GapCheckInterval)
	daily := time.NewTicker(time.Minute)
	defer manage.Stop()
	defer gap.Stop()
	defer daily.Stop()

	day := time.Now().Format("2006-01-02")
	log.Printf("engine: loops running (manage every %s, gap every %s)",
		e.cfg.PositionCheckInterval, e.cfg.GapCheckInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("engine: loops stopped: %v", ctx.Err())
			return
		case <-manage.C:
			if err := e.coord.ManagePositions(ctx); err != nil {
				log.Printf("engine: manage positions: %v", err)
			}
			e.checkGuards(ctx)
		case <-gap.C:
			e.checkGapRisk(ctx)
		case <-daily.C:
			if now := time.Now().Format("2006-01-02"); now != day {
				day = now
				e.resetDaily(ctx)
			}
		}
	}
}

// checkGuards polls equity against the loss guards so a halt is detected
// even when no signals arrive.
func (e *Engine) checkGuards(ctx context.Context) {
	account, err := e.gateway.GetAccount(ctx)
	if err != nil {
		log.Printf("engine: guard check: %v", err)
		return
	}
	e.gate.CheckCircuitBreaker(account.Equity)
	e.gate.CheckDailyDrawdown(account.Equity)
}

// checkGapRisk snapshots open positions as reference closes, then measures
// the current price of each against them.
func (e *Engine) checkGapRisk(ctx context.Context) {
	positions, err := e.gateway.GetAllPositions(ctx)
	if err != nil {
		log.Printf("engine: gap check: positions: %v", err)
		return
	}

	for _, pos := range positions {
		if pos.Qty <= 0 {
			continue
		}
		e.gap.RecordClose(pos)

		quote, err := e.data.GetQuote(ctx, pos.Symbol)
		if err != nil {
			log.Printf("engine: gap check: quote %s: %v", pos.Symbol, err)
			continue
		}
		ga := e.gap.CalculateGapRisk(pos.Symbol, quote.Price)
		if ga == nil {
			continue
		}
		if ga.Tier == gaprisk.TierLow {
			log.Printf("engine: gap on %s: %.2f%% (LOW), no action", ga.Symbol, ga.GapPercent)
			continue
		}

		severity := alert.SeverityWarning
		if ga.Tier == gaprisk.TierHigh || ga.Tier == gaprisk.TierExtreme {
			severity = alert.SeverityCritical
		}
		log.Printf("engine: gap risk on %s: %.2f%% (%s), impact %.2f",
			ga.Symbol, ga.GapPercent, ga.Tier, ga.DollarImpact)
		e.bus.Publish(events.EventGapRiskAlert, alert.Alert{
			Kind:     alert.KindGapRisk,
			Severity: severity,
			Symbol:   ga.Symbol,
			Issue:    fmt.Sprintf("price gapped %.2f%% against the last close (tier %s, impact $%.0f)", ga.GapPercent, ga.Tier, ga.DollarImpact),
			Action:   "review position before the open",
		})
	}
}

func (e *Engine) resetDaily(ctx context.Context) {
	account, err := e.gateway.GetAccount(ctx)
	if err != nil {
		log.Printf("engine: daily reset: account: %v", err)
		return
	}
	log.Printf("engine: new trading day, resetting daily state")
	e.gate.ResetDaily(account.Equity)
	e.compliance.ResetDaily()
	e.gap.ResetDaily()
}
