package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

// verify_schema opens an execution database and checks that every expected
// table and index exists.
//
// Usage:
//   go run ./scripts/verify_schema.go [path/to/tradeguard.db]
func main() {
	dbPath := "./data/tradeguard.db"
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}
	fmt.Printf("verifying database at %s\n", dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	expected := map[string][]string{
		"executed_trades":   {"id", "symbol", "side", "intended_qty", "actual_qty", "intended_price", "actual_price", "fill_ratio", "slippage_pct", "slippage_cost", "fill_duration_ms", "quality", "executed_at"},
		"day_trades":        {"id", "symbol", "qty", "buy_price", "sell_price", "buy_time", "sell_time", "pnl"},
		"risk_metrics":      {"date", "starting_equity", "daily_pnl", "trades", "drawdown_hit", "circuit_breaker_hit"},
		"protection_events": {"id", "symbol", "kind", "detail", "action", "created_at"},
	}

	failures := 0
	for table, columns := range expected {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			fmt.Printf("MISSING table %s: %v\n", table, err)
			failures++
			continue
		}

		rows, err := conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			log.Fatalf("table_info %s: %v", table, err)
		}
		present := map[string]bool{}
		for rows.Next() {
			var (
				cid        int
				col, ctype string
				notnull    int
				dflt       any
				pk         int
			)
			if err := rows.Scan(&cid, &col, &ctype, &notnull, &dflt, &pk); err != nil {
				log.Fatalf("scan table_info: %v", err)
			}
			present[col] = true
		}
		rows.Close()

		var missing []string
		for _, col := range columns {
			if !present[col] {
				missing = append(missing, col)
			}
		}
		if len(missing) > 0 {
			fmt.Printf("TABLE %s missing columns: %s\n", table, strings.Join(missing, ", "))
			failures++
		} else {
			fmt.Printf("table %s OK (%d columns)\n", table, len(present))
		}
	}

	var idx string
	if err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='index' AND name='idx_day_trades_sell_time'`).Scan(&idx); err != nil {
		fmt.Println("MISSING index idx_day_trades_sell_time")
		failures++
	} else {
		fmt.Println("index idx_day_trades_sell_time OK")
	}

	if failures > 0 {
		log.Fatalf("schema verification failed: %d problems", failures)
	}
	fmt.Println("schema verification passed")
}
