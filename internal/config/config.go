// Package config loads the process's runtime configuration: exchange
// secrets from a .env file (the concern the teacher's env.go covers,
// here backed by godotenv instead of a hand-rolled scanner) and the
// richer nested strategy configuration — timeframes, risk manager,
// analyzers, take-profit ladder — from a YAML file, because a flat
// env-var allowlist cannot express `analyzers: [...]`. Config loading
// itself is an external concern per spec §1; this package only owns
// producing the typed struct the core consumes.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ExchangeConfig names the venue and its credentials/mode.
type ExchangeConfig struct {
	Name       string  `yaml:"name"`
	Symbol     string  `yaml:"symbol"`
	Demo       bool    `yaml:"demo"`
	Testnet    bool    `yaml:"testnet"`
	FeeRatePct float64 `yaml:"fee_rate_pct"` // taker fee charged on every entry and exit fill
	APIKey     string  `yaml:"-"`            // populated from .env, never from the yaml file
	APISecret  string  `yaml:"-"`
}

// TimeframeSpec binds a role to an interval and candle count.
type TimeframeSpec struct {
	Interval     string `yaml:"interval"`
	CandleLimit  int    `yaml:"candle_limit"`
}

// DailyLimitsConfig is risk_manager.daily_limits.
type DailyLimitsConfig struct {
	MaxDailyLossPercent   float64 `yaml:"max_daily_loss_percent"`
	EmergencyStopOnLimit  bool    `yaml:"emergency_stop_on_limit"`
}

// LossStreakConfig is risk_manager.loss_streak.
type LossStreakConfig struct {
	StopAfterLosses int             `yaml:"stop_after_losses"`
	Reductions      ReductionConfig `yaml:"reductions"`
}

// ReductionConfig is the worked reduction table from the spec.
type ReductionConfig struct {
	After2 float64 `yaml:"after2"`
	After3 float64 `yaml:"after3"`
	After4 float64 `yaml:"after4"`
}

// AsMap converts the named fields to the streak->multiplier map the
// risk package expects.
func (r ReductionConfig) AsMap() map[int]float64 {
	m := map[int]float64{}
	if r.After2 > 0 {
		m[2] = r.After2
	}
	if r.After3 > 0 {
		m[3] = r.After3
	}
	if r.After4 > 0 {
		m[4] = r.After4
	}
	return m
}

// ConcurrentRiskConfig is risk_manager.concurrent_risk.
type ConcurrentRiskConfig struct {
	Enabled                 bool    `yaml:"enabled"`
	MaxPositions            int     `yaml:"max_positions"`
	MaxRiskPerPosition      float64 `yaml:"max_risk_per_position"`
	MaxTotalExposurePercent float64 `yaml:"max_total_exposure_percent"`
}

// PositionSizingConfig is risk_manager.position_sizing.
type PositionSizingConfig struct {
	RiskPerTradePercent   float64 `yaml:"risk_per_trade_percent"`
	MinUSDT               float64 `yaml:"min_usdt"`
	MaxUSDT               float64 `yaml:"max_usdt"`
	MaxLeverageMultiplier float64 `yaml:"max_leverage_multiplier"`
}

// RiskManagerConfig is the full risk_manager config block.
type RiskManagerConfig struct {
	DailyLimits    DailyLimitsConfig    `yaml:"daily_limits"`
	LossStreak     LossStreakConfig     `yaml:"loss_streak"`
	ConcurrentRisk ConcurrentRiskConfig `yaml:"concurrent_risk"`
	PositionSizing PositionSizingConfig `yaml:"position_sizing"`
}

// StopLossConfig is risk_management.stop_loss.
type StopLossConfig struct {
	ATRMultiplier      float64 `yaml:"atr_multiplier"`
	MinDistancePercent float64 `yaml:"min_distance_percent"`
}

// TakeProfitConfig is one entry of risk_management.take_profits.
type TakeProfitConfig struct {
	Level       int     `yaml:"level"`
	Percent     float64 `yaml:"percent"`
	SizePercent float64 `yaml:"size_percent"`
}

// RiskManagementConfig is the stop-loss/take-profit/trailing ladder config.
type RiskManagementConfig struct {
	StopLoss              StopLossConfig     `yaml:"stop_loss"`
	TakeProfits           []TakeProfitConfig `yaml:"take_profits"`
	TrailingStopPercent   float64            `yaml:"trailing_stop_percent"`
	BreakevenOffsetPercent float64           `yaml:"breakeven_offset_percent"`
}

// AnalyzerConfig is one entry of the analyzers list.
type AnalyzerConfig struct {
	Name         string             `yaml:"name"`
	Enabled      bool               `yaml:"enabled"`
	Weight       float64            `yaml:"weight"`
	Priority     int                `yaml:"priority"`
	MinConfidence float64           `yaml:"min_confidence"`
	Params       map[string]float64 `yaml:"params"`
}

// WeightMatrixConfig is the weight_matrix block.
type WeightMatrixConfig struct {
	MinConfidenceToEnter float64 `yaml:"min_confidence_to_enter"`
}

// MTFSnapshotConfig is the mtf_snapshot block; TTLMs defaults to
// 120000. The snapshot gate does not read it (snapshot.TTL is a fixed
// 120s); cmd/trader passes it to the indicator pre-calculator as the
// indicator cache TTL.
type MTFSnapshotConfig struct {
	TTLMs int64 `yaml:"ttl_ms"`
}

// GracefulShutdownConfig is the graceful_shutdown block.
type GracefulShutdownConfig struct {
	Enabled                bool `yaml:"enabled"`
	ShutdownTimeoutSeconds int  `yaml:"shutdown_timeout_seconds"`
	CancelOrdersOnShutdown bool `yaml:"cancel_orders_on_shutdown"`
	ClosePositionsOnShutdown bool `yaml:"close_positions_on_shutdown"`
}

// Config is the fully assembled runtime configuration.
type Config struct {
	Exchange         ExchangeConfig           `yaml:"exchange"`
	Timeframes       map[string]TimeframeSpec `yaml:"timeframes"`
	RiskManager      RiskManagerConfig        `yaml:"risk_manager"`
	RiskManagement   RiskManagementConfig     `yaml:"risk_management"`
	Analyzers        []AnalyzerConfig         `yaml:"analyzers"`
	WeightMatrix     WeightMatrixConfig       `yaml:"weight_matrix"`
	MTFSnapshot      MTFSnapshotConfig        `yaml:"mtf_snapshot"`
	GracefulShutdown GracefulShutdownConfig   `yaml:"graceful_shutdown"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
	Port      int    `yaml:"port"`
	DataDir   string `yaml:"data_dir"`
}

// Load reads envPath (tolerating a missing file — exchange credentials
// may already be in the process environment) then unmarshals yamlPath
// into a Config, filling exchange credentials from the environment.
func Load(envPath, yamlPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load .env: %w", err)
		}
	}

	bs, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("config: read strategy yaml: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse strategy yaml: %w", err)
	}

	cfg.Exchange.APIKey = os.Getenv("API_KEY")
	cfg.Exchange.APISecret = os.Getenv("API_SECRET")

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.MTFSnapshot.TTLMs == 0 {
		cfg.MTFSnapshot.TTLMs = 120_000
	}
	if cfg.GracefulShutdown.ShutdownTimeoutSeconds == 0 {
		cfg.GracefulShutdown.ShutdownTimeoutSeconds = 30
	}
	if cfg.Exchange.FeeRatePct == 0 {
		cfg.Exchange.FeeRatePct = 0.055 // typical perpetual-futures taker fee
	}
}

// Category maps the exchange name to Bybit's "linear"/"inverse"
// category terminology, used only by the Bybit adapter.
func (e ExchangeConfig) Category() string {
	if e.Name == "bybit" {
		return "linear"
	}
	return ""
}
