package main

import (
	"context"
	"log"
	"time"

	"tradeguard/pkg/broker/alpaca"
	"tradeguard/pkg/config"
)

// trading_api_check verifies broker connectivity with read-only calls:
// account snapshot, open positions, and open orders. It submits nothing.
//
// Usage:
//   go run ./scripts/trading_api_check
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.AlpacaAPIKey == "" || cfg.AlpacaAPISecret == "" {
		log.Fatal("ALPACA_API_KEY / ALPACA_API_SECRET must be set")
	}

	client := alpaca.New(alpaca.Config{
		APIKey:            cfg.AlpacaAPIKey,
		APISecret:         cfg.AlpacaAPISecret,
		Paper:             cfg.AlpacaPaper,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	account, err := client.GetAccount(ctx)
	if err != nil {
		log.Fatalf("account: %v", err)
	}
	log.Printf("account OK: equity %.2f, cash %.2f, buying power %.2f, day trades %d, PDT flag %v",
		account.Equity, account.Cash, account.BuyingPower, account.DayTradeCount, account.PatternDayTrader)

	positions, err := client.GetAllPositions(ctx)
	if err != nil {
		log.Fatalf("positions: %v", err)
	}
	log.Printf("positions OK: %d open", len(positions))
	for _, pos := range positions {
		log.Printf("  %s qty %.2f avg %.2f value %.2f upl %.2f",
			pos.Symbol, pos.Qty, pos.AvgEntryPrice, pos.MarketValue, pos.UnrealizedPL)
	}

	orders, err := client.GetOpenOrders(ctx, "")
	if err != nil {
		log.Fatalf("open orders: %v", err)
	}
	log.Printf("open orders OK: %d working", len(orders))
	for _, o := range orders {
		log.Printf("  %s %s %s qty %.2f status %s", o.ID, o.Symbol, o.Side, o.Qty, o.Status)
	}

	log.Println("broker connectivity check passed")
}
