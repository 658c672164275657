package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
exchange:
  name: bybit
  symbol: BTCUSDT
  testnet: true
timeframes:
  primary:
    interval: "5m"
    candle_limit: 200
  entry:
    interval: "1m"
    candle_limit: 100
risk_manager:
  daily_limits:
    max_daily_loss_percent: 5
    emergency_stop_on_limit: true
  loss_streak:
    stop_after_losses: 4
    reductions:
      after2: 0.75
      after3: 0.50
      after4: 0.25
  position_sizing:
    risk_per_trade_percent: 1
    min_usdt: 50
    max_usdt: 200
    max_leverage_multiplier: 5
risk_management:
  stop_loss:
    atr_multiplier: 1.5
    min_distance_percent: 0.5
  take_profits:
    - level: 1
      percent: 1
      size_percent: 60
    - level: 2
      percent: 2
      size_percent: 30
    - level: 3
      percent: 3
      size_percent: 10
  trailing_stop_percent: 0.5
analyzers:
  - name: micro_model
    enabled: true
    weight: 0.4
    priority: 2
  - name: ma_regime
    enabled: true
    weight: 0.3
    priority: 1
weight_matrix:
  min_confidence_to_enter: 60
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadParsesNestedStrategyConfig(t *testing.T) {
	yamlPath := writeTemp(t, "strategy.yaml", sampleYAML)

	cfg, err := Load("", yamlPath)
	require.NoError(t, err)

	assert.Equal(t, "bybit", cfg.Exchange.Name)
	assert.Equal(t, "linear", cfg.Exchange.Category())
	assert.Equal(t, "5m", cfg.Timeframes["primary"].Interval)
	assert.Equal(t, 4, cfg.RiskManager.LossStreak.StopAfterLosses)
	assert.Equal(t, map[int]float64{2: 0.75, 3: 0.50, 4: 0.25}, cfg.RiskManager.LossStreak.Reductions.AsMap())
	assert.Len(t, cfg.RiskManagement.TakeProfits, 3)
	assert.Len(t, cfg.Analyzers, 2)
	assert.Equal(t, int64(120_000), cfg.MTFSnapshot.TTLMs)
	assert.Equal(t, 30, cfg.GracefulShutdown.ShutdownTimeoutSeconds)
}

func TestLoadReadsExchangeCredentialsFromEnvFile(t *testing.T) {
	yamlPath := writeTemp(t, "strategy.yaml", sampleYAML)
	envPath := writeTemp(t, ".env", "API_KEY=test-key\nAPI_SECRET=test-secret\n")

	cfg, err := Load(envPath, yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.Exchange.APIKey)
	assert.Equal(t, "test-secret", cfg.Exchange.APISecret)
}

func TestLoadMissingYamlFails(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
