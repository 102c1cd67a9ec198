// Package config loads the strategy/scorer/queue/executor/recovery/
// capital configuration surface from a single YAML file, following
// this system's original flat, defaults-filled Load pattern.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Mode   string `yaml:"mode"`
	DryRun bool   `yaml:"dry_run"`

	Pairs []PairConfig `yaml:"pairs"`

	Strategy StrategyConfig `yaml:"strategy"`
	Scorer   ScorerConfig   `yaml:"scorer"`
	Queue    QueueConfig    `yaml:"queue"`
	Executor ExecutorConfig `yaml:"executor"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Capital  CapitalConfig  `yaml:"capital"`
	Logging  LoggingConfig  `yaml:"logging"`
	Redis    RedisConfig    `yaml:"redis"`
}

// RedisConfig points the events.Bus's optional Redis Streams sink at a
// server; leaving Addr empty disables the sink entirely.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// PairConfig names one traded instrument and its per-tier spread floors.
type PairConfig struct {
	Base              string             `yaml:"base"`
	Quote             string             `yaml:"quote"`
	VenueSymbol       string             `yaml:"venue_symbol"`
	TokenAddress      string             `yaml:"token_address"`
	QuoteTokenAddress string             `yaml:"quote_token_address"`
	PoolFeeTierHint   uint32             `yaml:"pool_fee_tier_hint"`
	MinTradableBase   float64            `yaml:"min_tradable_base"`
	TierMinSpreadBps  map[uint32]float64 `yaml:"tier_min_spread_bps"`
}

// StrategyConfig tunes the generator.
type StrategyConfig struct {
	MinSpreadBps     float64 `yaml:"min_spread_bps"`
	MinProfitUSD     float64 `yaml:"min_profit_usd"`
	MaxPositionUSD   float64 `yaml:"max_position_usd"`
	SignalTTLSeconds int     `yaml:"signal_ttl_seconds"`
	CooldownSeconds  int     `yaml:"cooldown_seconds"`
}

// ScorerConfig mirrors scorer.Config's YAML surface.
type ScorerConfig struct {
	WeightSpread    float64 `yaml:"weight_spread"`
	WeightDepth     float64 `yaml:"weight_depth"`
	WeightInventory float64 `yaml:"weight_inventory"`
	WeightHistory   float64 `yaml:"weight_history"`
	WeightFreshness float64 `yaml:"weight_freshness"`
	HistoryMinSamples int   `yaml:"history_min_samples"`
}

// QueueConfig mirrors queue.Config's YAML surface.
type QueueConfig struct {
	MaxDepth   int     `yaml:"max_depth"`
	MaxPerPair int     `yaml:"max_per_pair"`
	MinScore   float64 `yaml:"min_score"`
}

// ExecutorConfig mirrors executor.Config's YAML surface.
type ExecutorConfig struct {
	LegOrder                 string  `yaml:"leg_order"`
	MaxLeg1Retries           int     `yaml:"max_leg1_retries"`
	MaxLeg2Retries           int     `yaml:"max_leg2_retries"`
	RetryBaseDelayMs         int     `yaml:"retry_base_delay_ms"`
	RetryCapDelayMs          int     `yaml:"retry_cap_delay_ms"`
	Leg1TimeoutSeconds       int     `yaml:"leg1_timeout_seconds"`
	Leg2TimeoutSeconds       int     `yaml:"leg2_timeout_seconds"`
	MinFillRatio             float64 `yaml:"min_fill_ratio"`
	MaxConcurrentExecutions  int     `yaml:"max_concurrent_executions"`
	SimulationMode           bool    `yaml:"simulation_mode"`
	DexSlippageBps           float64 `yaml:"dex_slippage_bps"`
	DexDeadlineSeconds       int     `yaml:"dex_deadline_seconds"`
	PollIntervalMs           int     `yaml:"poll_interval_ms"`
	CancelTimeoutSeconds     int     `yaml:"cancel_timeout_seconds"`
}

// RecoveryConfig mirrors recovery.Config plus breaker/replay tuning.
type RecoveryConfig struct {
	FailureThreshold   int     `yaml:"failure_threshold"`
	WindowSeconds      int     `yaml:"window_seconds"`
	MaxDrawdownUSD     float64 `yaml:"max_drawdown_usd"`
	CooldownSeconds    int     `yaml:"cooldown_seconds"`
	HalfOpenAfterPct   float64 `yaml:"half_open_after_pct"`
	PerPair            bool    `yaml:"per_pair"`
	ReplayTTLSeconds   int     `yaml:"replay_ttl_seconds"`
	ReplayMaxEntries   int     `yaml:"replay_max_entries"`
	ReplayMaxAgeSeconds int    `yaml:"replay_max_age_seconds"`
}

// CapitalConfig mirrors capital.Config's YAML surface.
type CapitalConfig struct {
	StartingCexUSD           float64 `yaml:"starting_cex_usd"`
	StartingChainUSD         float64 `yaml:"starting_chain_usd"`
	BridgeThresholdUSD       float64 `yaml:"bridge_threshold_usd"`
	MinTradableUSD           float64 `yaml:"min_tradable_usd"`
	BridgeFixedCostUSD       float64 `yaml:"bridge_fixed_cost_usd"`
	AmortizationTargetTrades int     `yaml:"amortization_target_trades"`
}

// LoggingConfig tunes the zap logger construction.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Production bool   `yaml:"production"`
}

// Load reads and parses the YAML file at path, filling in defaults for
// any zero-valued field this system always expects to be set.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Strategy.SignalTTLSeconds == 0 {
		c.Strategy.SignalTTLSeconds = 10
	}
	if c.Strategy.CooldownSeconds == 0 {
		c.Strategy.CooldownSeconds = 5
	}
	if c.Scorer.WeightSpread == 0 && c.Scorer.WeightDepth == 0 {
		c.Scorer.WeightSpread = 0.40
		c.Scorer.WeightDepth = 0.20
		c.Scorer.WeightInventory = 0.15
		c.Scorer.WeightHistory = 0.15
		c.Scorer.WeightFreshness = 0.10
	}
	if c.Scorer.HistoryMinSamples == 0 {
		c.Scorer.HistoryMinSamples = 5
	}
	if c.Queue.MaxDepth == 0 {
		c.Queue.MaxDepth = 200
	}
	if c.Queue.MaxPerPair == 0 {
		c.Queue.MaxPerPair = 5
	}
	if c.Executor.LegOrder == "" {
		c.Executor.LegOrder = "dex_first"
	}
	if c.Executor.MaxLeg1Retries == 0 {
		c.Executor.MaxLeg1Retries = 2
	}
	if c.Executor.RetryBaseDelayMs == 0 {
		c.Executor.RetryBaseDelayMs = 500
	}
	if c.Executor.RetryCapDelayMs == 0 {
		c.Executor.RetryCapDelayMs = 8000
	}
	if c.Executor.Leg1TimeoutSeconds == 0 {
		c.Executor.Leg1TimeoutSeconds = 5
	}
	if c.Executor.Leg2TimeoutSeconds == 0 {
		c.Executor.Leg2TimeoutSeconds = 60
	}
	if c.Executor.MinFillRatio == 0 {
		c.Executor.MinFillRatio = 0.8
	}
	if c.Executor.MaxConcurrentExecutions == 0 {
		c.Executor.MaxConcurrentExecutions = 3
	}
	if c.Executor.PollIntervalMs == 0 {
		c.Executor.PollIntervalMs = 200
	}
	if c.Executor.CancelTimeoutSeconds == 0 {
		c.Executor.CancelTimeoutSeconds = 5
	}
	if c.Recovery.FailureThreshold == 0 {
		c.Recovery.FailureThreshold = 3
	}
	if c.Recovery.WindowSeconds == 0 {
		c.Recovery.WindowSeconds = 300
	}
	if c.Recovery.CooldownSeconds == 0 {
		c.Recovery.CooldownSeconds = 600
	}
	if c.Recovery.HalfOpenAfterPct == 0 {
		c.Recovery.HalfOpenAfterPct = 0.8
	}
	if c.Recovery.ReplayTTLSeconds == 0 {
		c.Recovery.ReplayTTLSeconds = 60
	}
	if c.Recovery.ReplayMaxEntries == 0 {
		c.Recovery.ReplayMaxEntries = 10000
	}
	if c.Recovery.ReplayMaxAgeSeconds == 0 {
		c.Recovery.ReplayMaxAgeSeconds = 30
	}
	if c.Capital.StartingCexUSD == 0 {
		c.Capital.StartingCexUSD = 50
	}
	if c.Capital.StartingChainUSD == 0 {
		c.Capital.StartingChainUSD = 50
	}
	if c.Capital.BridgeThresholdUSD == 0 {
		c.Capital.BridgeThresholdUSD = 20
	}
	if c.Capital.MinTradableUSD == 0 {
		c.Capital.MinTradableUSD = 5
	}
	if c.Capital.BridgeFixedCostUSD == 0 {
		c.Capital.BridgeFixedCostUSD = 0.05
	}
	if c.Capital.AmortizationTargetTrades == 0 {
		c.Capital.AmortizationTargetTrades = 20
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// SignalTTL returns the configured signal lifetime as a time.Duration.
func (c *Config) SignalTTL() time.Duration {
	return time.Duration(c.Strategy.SignalTTLSeconds) * time.Second
}

// Cooldown returns the configured per-pair cooldown as a time.Duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Strategy.CooldownSeconds) * time.Second
}
