package db

import (
	"context"
	"fmt"
	"time"
)

// InsertExecutedTrade appends one reconciled execution to the durable log.
func (d *Database) InsertExecutedTrade(ctx context.Context, row ExecutedTradeRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO executed_trades (
			id, symbol, side, intended_qty, actual_qty, intended_price, actual_price,
			fill_ratio, slippage_pct, slippage_cost, fill_duration_ms, quality, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.ID, row.Symbol, row.Side, row.IntendedQty, row.ActualQty,
		row.IntendedPrice, row.ActualPrice, row.FillRatio, row.SlippagePct,
		row.SlippageCost, row.FillDurationMS, row.Quality, row.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert executed trade: %w", err)
	}
	return nil
}

// ListExecutedTrades returns the most recent executions, newest first.
func (d *Database) ListExecutedTrades(ctx context.Context, limit int) ([]ExecutedTradeRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, side, intended_qty, actual_qty, intended_price, actual_price,
		       fill_ratio, slippage_pct, slippage_cost, fill_duration_ms, quality, executed_at
		FROM executed_trades ORDER BY executed_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list executed trades: %w", err)
	}
	defer rows.Close()

	var out []ExecutedTradeRow
	for rows.Next() {
		var r ExecutedTradeRow
		if err := rows.Scan(
			&r.ID, &r.Symbol, &r.Side, &r.IntendedQty, &r.ActualQty,
			&r.IntendedPrice, &r.ActualPrice, &r.FillRatio, &r.SlippagePct,
			&r.SlippageCost, &r.FillDurationMS, &r.Quality, &r.ExecutedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertDayTrade records a matched same-day round trip.
func (d *Database) InsertDayTrade(ctx context.Context, row DayTradeRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO day_trades (id, symbol, qty, buy_price, sell_price, buy_time, sell_time, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.Symbol, row.Qty, row.BuyPrice, row.SellPrice, row.BuyTime, row.SellTime, row.PnL)
	if err != nil {
		return fmt.Errorf("insert day trade: %w", err)
	}
	return nil
}

// ListDayTradesSince returns day trades whose sell side is at or after cutoff.
func (d *Database) ListDayTradesSince(ctx context.Context, cutoff time.Time) ([]DayTradeRow, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, qty, buy_price, sell_price, buy_time, sell_time, pnl
		FROM day_trades WHERE sell_time >= ? ORDER BY sell_time
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list day trades: %w", err)
	}
	defer rows.Close()

	var out []DayTradeRow
	for rows.Next() {
		var r DayTradeRow
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Qty, &r.BuyPrice, &r.SellPrice, &r.BuyTime, &r.SellTime, &r.PnL); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PurgeDayTradesBefore deletes archived day trades older than cutoff.
func (d *Database) PurgeDayTradesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.DB.ExecContext(ctx, `DELETE FROM day_trades WHERE sell_time < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge day trades: %w", err)
	}
	return res.RowsAffected()
}

// UpsertRiskMetrics writes the daily risk row, accumulating P&L and trades.
func (d *Database) UpsertRiskMetrics(ctx context.Context, row RiskMetricsRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO risk_metrics (date, starting_equity, daily_pnl, trades, drawdown_hit, circuit_breaker_hit)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			daily_pnl = excluded.daily_pnl,
			trades = excluded.trades,
			drawdown_hit = MAX(drawdown_hit, excluded.drawdown_hit),
			circuit_breaker_hit = MAX(circuit_breaker_hit, excluded.circuit_breaker_hit)
	`,
		row.Date, row.StartingEquity, row.DailyPnL, row.Trades,
		boolToInt(row.DrawdownHit), boolToInt(row.CircuitBreakerHit),
	)
	if err != nil {
		return fmt.Errorf("upsert risk metrics: %w", err)
	}
	return nil
}

// GetRiskMetrics loads the daily risk row, if present.
func (d *Database) GetRiskMetrics(ctx context.Context, date string) (RiskMetricsRow, error) {
	var (
		row          RiskMetricsRow
		ddHit, cbHit int
	)
	err := d.DB.QueryRowContext(ctx, `
		SELECT date, starting_equity, daily_pnl, trades, drawdown_hit, circuit_breaker_hit
		FROM risk_metrics WHERE date = ?
	`, date).Scan(&row.Date, &row.StartingEquity, &row.DailyPnL, &row.Trades, &ddHit, &cbHit)
	if err != nil {
		return RiskMetricsRow{}, err
	}
	row.DrawdownHit = ddHit == 1
	row.CircuitBreakerHit = cbHit == 1
	return row, nil
}

// InsertProtectionEvent appends one emergency action to the audit trail.
func (d *Database) InsertProtectionEvent(ctx context.Context, row ProtectionEventRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO protection_events (symbol, kind, detail, action) VALUES (?, ?, ?, ?)
	`, row.Symbol, row.Kind, row.Detail, row.Action)
	if err != nil {
		return fmt.Errorf("insert protection event: %w", err)
	}
	return nil
}

// ListProtectionEvents returns recent protection events, newest first.
func (d *Database) ListProtectionEvents(ctx context.Context, limit int) ([]ProtectionEventRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, kind, detail, action, created_at
		FROM protection_events ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list protection events: %w", err)
	}
	defer rows.Close()

	var out []ProtectionEventRow
	for rows.Next() {
		var r ProtectionEventRow
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Kind, &r.Detail, &r.Action, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
