package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradeguard/internal/alert"
	"tradeguard/internal/compliance"
	"tradeguard/internal/coordinator"
	"tradeguard/internal/engine"
	"tradeguard/internal/events"
	"tradeguard/internal/gaprisk"
	"tradeguard/internal/risk"
	"tradeguard/pkg/broker/alpaca"
	"tradeguard/pkg/config"
	"tradeguard/pkg/db"
	"tradeguard/pkg/marketdata"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.Println("tradeguard starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	profile, err := config.LoadRiskProfile(cfg.RiskProfilePath)
	if err != nil {
		log.Fatalf("load risk profile: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	client := alpaca.New(alpaca.Config{
		APIKey:            cfg.AlpacaAPIKey,
		APISecret:         cfg.AlpacaAPISecret,
		Paper:             cfg.AlpacaPaper,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})

	var data marketdata.Provider
	if cfg.UseMockData {
		mock := marketdata.NewMockProvider()
		for _, sym := range cfg.Symbols {
			mock.SetPrice(sym, 100)
		}
		data = mock
		log.Println("market data: mock provider")
	} else {
		data = marketdata.NewRESTClient(cfg.AlpacaAPIKey, cfg.AlpacaAPISecret, client.Limiter())
		log.Println("market data: alpaca REST")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	account, err := client.GetAccount(ctx)
	if err != nil {
		log.Fatalf("account snapshot: %v", err)
	}
	log.Printf("account: equity %.2f, buying power %.2f, day trades %d",
		account.Equity, account.BuyingPower, account.DayTradeCount)

	bus := events.NewBus()
	defer bus.Close()

	dispatcher := &alert.Dispatcher{Bus: bus, Sink: alert.LogSink{}}
	dispatcher.Start(ctx)

	gate := risk.NewGate(riskConfig(profile), account.Equity, database)
	tracker := compliance.NewTracker(compliance.DefaultConfig(), database)
	coord := coordinator.New(coordinatorConfig(profile), client, bus, database)
	gapMon := gaprisk.NewMonitor()

	if _, err := coord.Rediscover(ctx); err != nil {
		log.Printf("rediscovery: %v", err)
	}

	eng := engine.New(engineConfig(cfg), client, data, gate, tracker, coord, gapMon, bus)

	if cfg.EnableDataStream && !cfg.UseMockData {
		startPriceStream(ctx, cfg, bus, gapMon)
	}

	eng.Run(ctx)
	log.Println("tradeguard stopped")
}

// startPriceStream feeds live trade prints onto the bus and runs gap checks
// against them, so large moves surface between the slower REST polls.
func startPriceStream(ctx context.Context, cfg *config.Config, bus *events.Bus, gapMon *gaprisk.Monitor) {
	stream := marketdata.NewStreamClient(cfg.AlpacaAPIKey, cfg.AlpacaAPISecret)
	trades, stopStream, err := stream.SubscribeTrades(ctx, cfg.Symbols)
	if err != nil {
		log.Printf("data stream: %v (continuing without it)", err)
		return
	}
	go func() {
		defer stopStream()
		for {
			select {
			case <-ctx.Done():
				return
			case trade, ok := <-trades:
				if !ok {
					return
				}
				bus.Publish(events.EventPriceTick, trade)
				if ga := gapMon.CalculateGapRisk(trade.Symbol, trade.Price); ga != nil && ga.Tier != gaprisk.TierLow {
					severity := alert.SeverityWarning
					if ga.Tier == gaprisk.TierHigh || ga.Tier == gaprisk.TierExtreme {
						severity = alert.SeverityCritical
					}
					bus.Publish(events.EventGapRiskAlert, alert.Alert{
						Kind:     alert.KindGapRisk,
						Severity: severity,
						Symbol:   ga.Symbol,
						Issue:    "streamed price gapped against the last close",
						Action:   "review position before the open",
					})
				}
			}
		}
	}()
}

func riskConfig(profile *config.RiskProfile) risk.Config {
	rc := risk.DefaultConfig()
	if v := profile.Risk.MaxPositionFraction; v > 0 {
		rc.MaxPositionFraction = v
	}
	if v := profile.Risk.MaxPositions; v > 0 {
		rc.MaxPositions = v
	}
	if v := profile.Risk.MaxSectorFraction; v > 0 {
		rc.MaxSectorFraction = v
	}
	if v := profile.Risk.MinRiskReward; v > 0 {
		rc.MinRiskReward = v
	}
	if v := profile.Risk.MaxRiskScore; v > 0 {
		rc.MaxRiskScore = v
	}
	if v := profile.Risk.MinPositionValue; v > 0 {
		rc.MinPositionValue = v
	}
	if v := profile.Risk.DailyDrawdownLimit; v > 0 {
		rc.DailyDrawdownLimit = v
	}
	if v := profile.Risk.CircuitBreakerLimit; v > 0 {
		rc.CircuitBreakerLimit = v
	}
	if v := profile.Risk.VolatilityThreshold; v > 0 {
		rc.VolatilityThreshold = v
	}
	return rc
}

func coordinatorConfig(profile *config.RiskProfile) coordinator.Config {
	cc := coordinator.DefaultConfig()
	if v := profile.Execution.RiskPerTrade; v > 0 {
		cc.RiskPerTrade = v
	}
	if v := profile.Execution.StopATRMultiple; v > 0 {
		cc.StopATRMultiple = v
	}
	if v := profile.Execution.MaxPositionValuePct; v > 0 {
		cc.MaxPositionValuePct = v
	}
	if v := profile.Execution.LossCutPct; v < 0 {
		cc.LossCutPct = v
	}
	if v := profile.Execution.ProfitTakePcts; len(v) > 0 {
		cc.ProfitTakePcts = v
	}
	if v := profile.Execution.MaxConcentrationPct; v > 0 {
		cc.MaxConcentration = v
	}
	if v := profile.Execution.VerifyAttempts; v > 0 {
		cc.VerifyAttempts = v
	}
	if v := profile.Execution.MonitorWindowSeconds; v > 0 {
		cc.MonitorWindow = time.Duration(v) * time.Second
	}
	if v := profile.Execution.LiquidationAttempts; v > 0 {
		cc.LiquidationAttempts = v
	}
	return cc
}

func engineConfig(cfg *config.Config) engine.Config {
	ec := engine.DefaultConfig()
	ec.Symbols = cfg.Symbols
	if cfg.PositionCheckSeconds > 0 {
		ec.PositionCheckInterval = time.Duration(cfg.PositionCheckSeconds) * time.Second
	}
	if cfg.GapCheckSeconds > 0 {
		ec.GapCheckInterval = time.Duration(cfg.GapCheckSeconds) * time.Second
	}
	return ec
}
