package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RiskProfile is the YAML override file for risk, compliance, and execution
// tunables. Zero values mean "keep the default"; pointers are used where zero
// is itself a meaningful override.
type RiskProfile struct {
	Risk struct {
		MaxPositionFraction float64 `yaml:"max_position_fraction"`
		MaxPositions        int     `yaml:"max_positions"`
		MaxSectorFraction   float64 `yaml:"max_sector_fraction"`
		MinRiskReward       float64 `yaml:"min_risk_reward"`
		MaxRiskScore        float64 `yaml:"max_risk_score"`
		MinPositionValue    float64 `yaml:"min_position_value"`
		DailyDrawdownLimit  float64 `yaml:"daily_drawdown_limit"`
		CircuitBreakerLimit float64 `yaml:"circuit_breaker_limit"`
		VolatilityThreshold float64 `yaml:"volatility_threshold"`
	} `yaml:"risk"`

	Execution struct {
		RiskPerTrade         float64   `yaml:"risk_per_trade"`
		StopATRMultiple      float64   `yaml:"stop_atr_multiple"`
		MaxPositionValuePct  float64   `yaml:"max_position_value_pct"`
		LossCutPct           float64   `yaml:"loss_cut_pct"`
		ProfitTakePcts       []float64 `yaml:"profit_take_pcts"`
		MaxConcentrationPct  float64   `yaml:"max_concentration_pct"`
		VerifyAttempts       int       `yaml:"verify_attempts"`
		MonitorWindowSeconds int       `yaml:"monitor_window_seconds"`
		LiquidationAttempts  int       `yaml:"liquidation_attempts"`
	} `yaml:"execution"`
}

// LoadRiskProfile reads a YAML profile; a missing path returns an empty
// profile so defaults apply.
func LoadRiskProfile(path string) (*RiskProfile, error) {
	profile := &RiskProfile{}
	if path == "" {
		return profile, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read risk profile: %w", err)
	}
	if err := yaml.Unmarshal(raw, profile); err != nil {
		return nil, fmt.Errorf("parse risk profile: %w", err)
	}
	return profile, nil
}
