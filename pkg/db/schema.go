package db

import "fmt"

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS executed_trades (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    intended_qty REAL NOT NULL,
    actual_qty REAL NOT NULL,
    intended_price REAL NOT NULL,
    actual_price REAL NOT NULL,
    fill_ratio REAL NOT NULL,
    slippage_pct REAL NOT NULL,
    slippage_cost REAL NOT NULL,
    fill_duration_ms INTEGER NOT NULL,
    quality TEXT NOT NULL,
    executed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS day_trades (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    qty REAL NOT NULL,
    buy_price REAL NOT NULL,
    sell_price REAL NOT NULL,
    buy_time DATETIME NOT NULL,
    sell_time DATETIME NOT NULL,
    pnl REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_day_trades_sell_time ON day_trades(sell_time);

CREATE TABLE IF NOT EXISTS risk_metrics (
    date TEXT PRIMARY KEY,
    starting_equity REAL NOT NULL,
    daily_pnl REAL NOT NULL DEFAULT 0,
    trades INTEGER NOT NULL DEFAULT 0,
    drawdown_hit INTEGER NOT NULL DEFAULT 0,
    circuit_breaker_hit INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS protection_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    kind TEXT NOT NULL,
    detail TEXT NOT NULL,
    action TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// applyMigrations creates tables when missing. New runs it on every open so
// a fresh database is usable immediately.
func applyMigrations(d *Database) error {
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
