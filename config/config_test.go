package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyagent/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SCAN_INTERVAL_SECONDS", "MAX_MARKETS_PER_SCAN", "MIN_LIQUIDITY_USD", "MIN_EDGE_PERCENT",
		"MIN_CONFIDENCE", "MAX_POSITION_PERCENT", "MAX_PORTFOLIO_PERCENT", "STARTING_BANKROLL",
		"DEATH_THRESHOLD_USD", "CLAUDE_MODEL", "POLYMARKET_CLOB_URL", "POLYMARKET_GAMMA_URL",
		"POLYGON_RPC_URL", "STORAGE_DSN", "LOG_LEVEL", "LOG_FORMAT", "POLY_PRIVATE_KEY", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Interval())
	assert.Equal(t, 8.0, cfg.Strategy.MinEdgePercent)
	assert.Equal(t, 0.4, cfg.Strategy.MinConfidence)
	assert.Equal(t, 0.25, cfg.Strategy.KellyMultiplier)
	assert.Equal(t, 6.0, cfg.Strategy.MaxPositionPercent)
	assert.Equal(t, 50.0, cfg.Strategy.MaxPortfolioPercent)
	assert.Equal(t, 50.0, cfg.Ledger.StartingBankroll)
	assert.Equal(t, 0.50, cfg.Ledger.DeathThresholdUSD)
	assert.Equal(t, 80, cfg.Agent.MaxCandidates)
	assert.Equal(t, 1, cfg.Retries())
	assert.Equal(t, 2*time.Second, cfg.RetryBackoff())
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Oracle.Model)
	assert.Equal(t, "https://gamma-api.polymarket.com", cfg.API.GammaBase)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `
agent:
  interval_seconds: 120
  retry_attempts: 0
  paper: true
strategy:
  min_edge_percent: 10
ledger:
  starting_bankroll: 25
log:
  level: debug
`)
	t.Setenv("MIN_EDGE_PERCENT", "12.5")
	t.Setenv("CLAUDE_MODEL", "claude-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Interval())
	assert.Equal(t, 0, cfg.Retries(), "explicit zero disables retries")
	assert.Equal(t, 12.5, cfg.Strategy.MinEdgePercent, "env wins over YAML")
	assert.Equal(t, 25.0, cfg.Ledger.StartingBankroll)
	assert.Equal(t, "claude-test", cfg.Oracle.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "sk-test", cfg.Secrets.AnthropicKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BadEnvValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("STARTING_BANKROLL", "fifty")

	_, err := config.Load("")
	assert.ErrorContains(t, err, "STARTING_BANKROLL")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "POLY_PRIVATE_KEY", "live mode needs the wallet key")

	cfg.Agent.Paper = true
	require.NoError(t, cfg.Validate())

	cfg.Strategy.MaxPortfolioPercent = 4
	assert.ErrorContains(t, cfg.Validate(), "max_portfolio_percent")

	cfg.Strategy.MaxPortfolioPercent = 50
	cfg.Ledger.DeathThresholdUSD = 60
	assert.ErrorContains(t, cfg.Validate(), "death_threshold_usd")
}
