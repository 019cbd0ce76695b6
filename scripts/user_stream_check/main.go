package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"tradeguard/pkg/config"
	"tradeguard/pkg/marketdata"
)

// user_stream_check connects to the market data websocket, subscribes the
// configured watchlist, and prints trade prints until interrupted or the
// timeout elapses.
//
// Usage:
//   WATCH_SYMBOLS=AAPL,TSLA go run ./scripts/user_stream_check
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if len(cfg.Symbols) == 0 {
		log.Fatal("WATCH_SYMBOLS must list at least one symbol")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	stream := marketdata.NewStreamClient(cfg.AlpacaAPIKey, cfg.AlpacaAPISecret)
	trades, stopStream, err := stream.SubscribeTrades(ctx, cfg.Symbols)
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}
	defer stopStream()

	log.Printf("streaming %v, interrupt to stop", cfg.Symbols)
	count := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("done: %d trades received", count)
			return
		case trade, ok := <-trades:
			if !ok {
				log.Printf("stream closed: %d trades received", count)
				return
			}
			count++
			log.Printf("%s %.2f @ %s", trade.Symbol, trade.Price, trade.Timestamp.Format(time.RFC3339))
		}
	}
}
