package notify_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyagent/internal/adapters/notify"
	"github.com/alejandrodnm/polyagent/internal/domain"
)

func makeSummary() domain.CycleSummary {
	s := domain.CycleSummary{
		Cycle:          7,
		StartedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Duration:       42 * time.Second,
		Scanned:        500,
		Candidates:     80,
		Enriched:       30,
		Estimated:      78,
		Signals:        2,
		Attempted:      2,
		Filled:         1,
		Killed:         1,
		OracleCostUSD:  0.4321,
		BankrollBefore: 50,
		BankrollAfter:  49.57,
		Status:         domain.StatusAlive,
		Trades: []domain.TradeLine{
			{Question: "Will it rain in NYC on Friday?", Direction: domain.BuyYes, Edge: 0.15, Confidence: 0.6,
				Fraction: 0.05, StakeUSD: 2.5, Status: domain.FillFilled, AvgPrice: 0.55, Shares: 4.54},
			{Question: "Will BTC hit 100k?", Direction: domain.BuyNo, Edge: 0.12, Confidence: 0.8,
				Fraction: 0.04, StakeUSD: 2.0, Status: domain.FillKilled},
		},
	}
	s.Reject(domain.RejectNoEdge)
	s.Reject(domain.RejectNoEdge)
	s.Reject(domain.RejectAlreadyHeld)
	return s
}

func TestConsole_ReportCycle_Table(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, c.ReportCycle(context.Background(), makeSummary(), domain.HealthReport{Status: domain.StatusAlive, RunwayCycles: 24}))

	out := buf.String()
	assert.Contains(t, out, "cycle #7")
	assert.Contains(t, out, "Will it rain in NYC on Friday?")
	assert.Contains(t, out, "KILLED")
	assert.Contains(t, out, "0.5500")
	assert.Contains(t, out, "AlreadyHeld=1 NoEdgeAtPrice=2")
	assert.Contains(t, out, "-$0.43")
	assert.Contains(t, out, "runway: 24 cycles")
}

func TestConsole_ReportCycle_Compact(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, c.ReportCycle(context.Background(), makeSummary(), domain.HealthReport{}))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "#7 ALIVE")
	assert.Contains(t, out, "YES it rain in NYC on Friday $2.50 FILLED")
}

func TestConsole_ReportCycle_NoTrades(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, c.ReportCycle(context.Background(), domain.CycleSummary{Cycle: 1}, domain.HealthReport{}))
	assert.Contains(t, buf.String(), "no trades this cycle")
}

func TestConsole_ReportDeath(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	h := domain.HealthReport{Status: domain.StatusDead, Cycle: 31, Starting: 50, Bankroll: 0.45, NetProfit: -49.55}
	require.NoError(t, c.ReportDeath(context.Background(), h))

	out := buf.String()
	assert.Contains(t, out, "AGENT DEAD")
	assert.Contains(t, out, "$0.45")
	assert.Contains(t, out, "-$49.55")
}
