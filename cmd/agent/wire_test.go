package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyagent/config"
)

func TestEngineConfig_ConvertsPercents(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("POLY_PRIVATE_KEY", "")
	cfg, err := config.Load("")
	require.NoError(t, err)

	ec := engineConfig(cfg)
	assert.InDelta(t, 0.08, ec.Detector.MinEdge, 1e-12)
	assert.InDelta(t, 0.06, ec.Sizer.MaxPosition, 1e-12)
	assert.InDelta(t, 0.50, ec.Sizer.MaxPortfolio, 1e-12)
	assert.InDelta(t, 0.05, ec.Gate.MaxSlippage, 1e-12)
	assert.Equal(t, 1, ec.Retry.Attempts)

	lc := ledgerConfig(cfg)
	assert.Equal(t, "50", lc.StartingBankroll.String())
	assert.Equal(t, "0.5", lc.DeathThreshold.String())
}
