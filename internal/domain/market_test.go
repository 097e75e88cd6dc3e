package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestInferCategory(t *testing.T) {
	assert.Equal(t, CategoryWeather, InferCategory("Will NYC see rain on Friday?", nil))
	assert.Equal(t, CategorySports, InferCategory("Chiefs vs Bills", []string{"NFL"}))
	assert.Equal(t, CategoryCrypto, InferCategory("Will Bitcoin close above $100k?", nil))
	assert.Equal(t, CategoryPolitics, InferCategory("Who wins the governor race?", nil))
	assert.Equal(t, CategoryOther, InferCategory("Will the movie gross $1B?", nil))
}

func TestMarketSnapshot_Validate(t *testing.T) {
	ok := MarketSnapshot{ConditionID: "0x1", ImpliedProb: 0.4, Liquidity: 10}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.ImpliedProb = 1.2
	assert.True(t, errors.Is(bad.Validate(), ErrValidation))

	bad = ok
	bad.Liquidity = -1
	assert.True(t, errors.Is(bad.Validate(), ErrValidation))

	bad = ok
	bad.ConditionID = ""
	assert.Error(t, bad.Validate())
}

func TestOrderBook_SweepAsks(t *testing.T) {
	ob := OrderBook{Asks: []BookEntry{{Price: 0.50, Size: 4}, {Price: 0.52, Size: 6}, {Price: 0.60, Size: 50}}}

	cost, avg, ok := ob.SweepAsks(8, 0.52)
	assert.True(t, ok)
	assert.InDelta(t, 4*0.50+4*0.52, cost, 1e-9)
	assert.InDelta(t, cost/8, avg, 1e-9)

	_, _, ok = ob.SweepAsks(11, 0.52)
	assert.False(t, ok, "depth at <= 0.52 is only 10")

	assert.InDelta(t, 10, ob.AskDepthAtOrBelow(0.55), 1e-9)
	assert.InDelta(t, 0.50, ob.BestAsk(), 1e-9)
}

func TestLedgerState_OpenExposureAndHolds(t *testing.T) {
	s := NewLedgerState(decimal.NewFromInt(50), time.Now())
	s.Positions["0xa"] = Position{ConditionID: "0xa", CostBasis: decimal.RequireFromString("3.00")}
	s.Pending["i1"] = OrderIntent{ID: "i1", ConditionID: "0xb", NotionalUSD: 2.5}

	assert.True(t, s.Invested().Equal(decimal.RequireFromString("3")))
	assert.True(t, s.Reserved().Equal(decimal.RequireFromString("2.5")))
	assert.True(t, s.OpenExposure().Equal(decimal.RequireFromString("5.5")))
	assert.True(t, s.Holds("0xa"))
	assert.True(t, s.Holds("0xb"))
	assert.False(t, s.Holds("0xc"))

	c := s.Clone()
	delete(c.Positions, "0xa")
	assert.True(t, s.Holds("0xa"), "clone must not alias maps")
}

func TestResolution_PayoutFor(t *testing.T) {
	r := Resolution{YesPayout: 1}
	assert.Equal(t, 1.0, r.PayoutFor(BuyYes))
	assert.Equal(t, 0.0, r.PayoutFor(BuyNo))
}
