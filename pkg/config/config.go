package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the execution core.
type Config struct {
	// Alpaca
	AlpacaAPIKey      string
	AlpacaAPISecret   string
	AlpacaPaper       bool
	RequestsPerMinute int

	// Market data
	UseMockData      bool
	EnableDataStream bool
	Symbols          []string

	// Database
	DBPath string

	// Risk profile overrides (YAML), optional
	RiskProfilePath string

	// Monitoring cadence
	PositionCheckSeconds int
	GapCheckSeconds      int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the process still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		AlpacaAPIKey:         os.Getenv("ALPACA_API_KEY"),
		AlpacaAPISecret:      os.Getenv("ALPACA_API_SECRET"),
		AlpacaPaper:          getEnv("ALPACA_PAPER", "true") == "true",
		RequestsPerMinute:    getEnvInt("ALPACA_REQUESTS_PER_MINUTE", 200),
		UseMockData:          getEnv("USE_MOCK_DATA", "false") == "true",
		EnableDataStream:     getEnv("ENABLE_DATA_STREAM", "false") == "true",
		Symbols:              splitAndTrim(getEnv("WATCH_SYMBOLS", "")),
		DBPath:               getEnv("DB_PATH", "./data/tradeguard.db"),
		RiskProfilePath:      getEnv("RISK_PROFILE_PATH", ""),
		PositionCheckSeconds: getEnvInt("POSITION_CHECK_SECONDS", 300),
		GapCheckSeconds:      getEnvInt("GAP_CHECK_SECONDS", 600),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
