package strategy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyagent/internal/domain"
	"github.com/alejandrodnm/polyagent/internal/domain/strategy"
)

func decision(entry, stake float64) domain.SizingDecision {
	return domain.SizingDecision{
		ConditionID: "0xabc",
		Direction:   domain.BuyYes,
		Token:       domain.Token{TokenID: "0xabc-yes", Outcome: "Yes", Price: entry},
		EntryPrice:  entry,
		FairPrice:   entry + 0.15,
		Fraction:    0.06,
		StakeUSD:    stake,
		Cap:         domain.CapPerPosition,
	}
}

func book(asks ...domain.BookEntry) domain.OrderBook {
	return domain.OrderBook{TokenID: "0xabc-yes", Asks: asks}
}

func TestGate_LimitPrice(t *testing.T) {
	g := strategy.NewGate(strategy.DefaultGateConfig())

	assert.InDelta(t, 0.57, g.LimitPrice(0.55), 1e-9)
	assert.InDelta(t, 0.58, g.LimitPrice(0.555), 1e-9)
	assert.InDelta(t, 0.99, g.LimitPrice(0.98), 1e-9, "capped at 0.99")
	assert.InDelta(t, 0.05, g.LimitPrice(0.05), 1e-9, "never below entry")
}

func TestGate_EmitsSingleFOKIntent(t *testing.T) {
	g := strategy.NewGate(strategy.DefaultGateConfig())

	intent, _, ok := g.Check(decision(0.55, 3.00), book(
		domain.BookEntry{Price: 0.55, Size: 3},
		domain.BookEntry{Price: 0.56, Size: 10},
	))
	require.True(t, ok)
	assert.NotEmpty(t, intent.ID)
	assert.Equal(t, domain.OrderFOK, intent.Type)
	assert.Equal(t, "0xabc-yes", intent.TokenID)
	assert.InDelta(t, 5.45, intent.Quantity, 1e-9)
	assert.InDelta(t, 0.57, intent.LimitPrice, 1e-9)
	assert.InDelta(t, 5.45*0.57, intent.NotionalUSD, 1e-6)
	assert.InDelta(t, 0.05, intent.MaxSlippage, 1e-9)
}

func TestGate_TrimsQuantityToHeadroomAtLimit(t *testing.T) {
	g := strategy.NewGate(strategy.DefaultGateConfig())
	d := decision(0.55, 3.00)
	d.MaxNotional = 3.00

	// 5.45 × 0.57 = 3.1065 would overshoot; 3.00 / 0.57 = 5.263 → 5.26
	intent, _, ok := g.Check(d, book(domain.BookEntry{Price: 0.55, Size: 100}))
	require.True(t, ok)
	assert.InDelta(t, 5.26, intent.Quantity, 1e-9)
	assert.LessOrEqual(t, intent.NotionalUSD, d.MaxNotional)
}

func deepBook(tokenID string, price float64) domain.OrderBook {
	return domain.OrderBook{TokenID: tokenID, Asks: []domain.BookEntry{{Price: price, Size: 10000}}}
}

func TestGate_InsufficientLiquidityAtSlippageBound(t *testing.T) {
	g := strategy.NewGate(strategy.DefaultGateConfig())

	// 5.45 shares needed, only 5 offered at <= 0.57; the 0.60 level is beyond the bound
	_, rej, ok := g.Check(decision(0.55, 3.00), book(
		domain.BookEntry{Price: 0.55, Size: 3},
		domain.BookEntry{Price: 0.57, Size: 2},
		domain.BookEntry{Price: 0.60, Size: 100},
	))
	assert.False(t, ok)
	assert.Equal(t, domain.RejectInsufficientLiquidity, rej.Reason)
	assert.Equal(t, "0xabc", rej.ConditionID)
}

func TestGate_EmptyBookIsInsufficientLiquidity(t *testing.T) {
	g := strategy.NewGate(strategy.DefaultGateConfig())

	_, rej, ok := g.Check(decision(0.55, 3.00), book())
	assert.False(t, ok)
	assert.Equal(t, domain.RejectInsufficientLiquidity, rej.Reason)
}

func TestGate_BelowMinimumShares(t *testing.T) {
	g := strategy.NewGate(strategy.DefaultGateConfig())

	// $2 at 0.55 = 3.63 shares < 5
	_, rej, ok := g.Check(decision(0.55, 2.00), book(domain.BookEntry{Price: 0.55, Size: 1000}))
	assert.False(t, ok)
	assert.Equal(t, domain.RejectBelowMinimumSize, rej.Reason)
}

func TestGate_BelowMinimumNotional(t *testing.T) {
	g := strategy.NewGate(strategy.DefaultGateConfig())

	// $0.50 at 0.05 = 10 shares, but notional below $1
	_, rej, ok := g.Check(decision(0.05, 0.50), book(domain.BookEntry{Price: 0.05, Size: 1000}))
	assert.False(t, ok)
	assert.Equal(t, domain.RejectBelowMinimumSize, rej.Reason)
}
