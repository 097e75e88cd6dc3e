package strategy

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// SizerConfig bounds every stake.
type SizerConfig struct {
	KellyMultiplier float64 // shrinkage applied to full Kelly, e.g. 0.25
	MaxPosition     float64 // per-position cap as a fraction of capital, e.g. 0.06
	MaxPortfolio    float64 // total open exposure cap as a fraction of capital, e.g. 0.50
}

// DefaultSizerConfig returns quarter-Kelly with a 6% position cap and 50% portfolio cap.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{KellyMultiplier: 0.25, MaxPosition: 0.06, MaxPortfolio: 0.50}
}

// Capital is the snapshot a stake is sized against. Reserved must include
// intents committed earlier in the same cycle.
type Capital struct {
	Bankroll float64 // cash on the books, including cash reserved by pending intents
	Invested float64 // cost basis of open positions
	Reserved float64 // notional of pending intents
}

// Equity is cash plus capital already spent on positions; fractions are taken of it.
func (c Capital) Equity() float64 {
	return c.Bankroll + c.Invested
}

// Free is cash not reserved by a pending intent.
func (c Capital) Free() float64 {
	return c.Bankroll - c.Reserved
}

// Exposure is capital at work: positions plus pending notional.
func (c Capital) Exposure() float64 {
	return c.Invested + c.Reserved
}

// Sizer turns a signal into a bounded stake with fractional Kelly.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer creates a Sizer.
func NewSizer(cfg SizerConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size computes f = (b·p − q)/b on the chosen side, shrinks it by the Kelly
// multiplier and the confidence, clamps it to MaxPosition and clips the stake
// to the remaining portfolio headroom. It returns ok=false with a rejection
// when no stake should be placed.
func (s *Sizer) Size(sig domain.MispricingSignal, capital Capital) (domain.SizingDecision, domain.Rejection, bool) {
	reject := func(r domain.RejectReason, format string, args ...any) (domain.SizingDecision, domain.Rejection, bool) {
		return domain.SizingDecision{}, domain.Rejection{
			ConditionID: sig.ConditionID,
			Reason:      r,
			Detail:      fmt.Sprintf(format, args...),
		}, false
	}

	price := sig.Market.PriceFor(sig.Direction)
	if price <= MinEntryPrice || price >= MaxEntryPrice {
		return reject(domain.RejectPriceOutOfRange, "entry %.4f outside (%.2f, %.2f)", price, MinEntryPrice, MaxEntryPrice)
	}

	p := sig.FairProb
	if sig.Direction == domain.BuyNo {
		p = 1 - sig.FairProb
	}
	if p <= price {
		return reject(domain.RejectNoEdge, "fair %.4f <= entry %.4f", p, price)
	}

	b := (1 - price) / price
	q := 1 - p
	raw := KellyFraction(p, b)
	if raw <= 0 {
		return reject(domain.RejectKellyNonPositive, "kelly %.4f (b=%.4f p=%.4f q=%.4f)", raw, b, p, q)
	}

	adjusted := raw * s.cfg.KellyMultiplier * sig.Confidence
	if adjusted <= 0 {
		return reject(domain.RejectKellyNonPositive, "kelly after shrinkage %.4f", adjusted)
	}

	fraction := adjusted
	capApplied := domain.CapNone
	if fraction > s.cfg.MaxPosition {
		fraction = s.cfg.MaxPosition
		capApplied = domain.CapPerPosition
	}

	equity := capital.Equity()
	if equity <= 0 {
		return reject(domain.RejectPortfolioCapReached, "no capital (equity $%.2f)", equity)
	}

	headroom := s.cfg.MaxPortfolio*equity - capital.Exposure()
	headroom = math.Min(headroom, capital.Free())
	if headroom <= epsilon {
		return reject(domain.RejectPortfolioCapReached, "exposure $%.2f of $%.2f cap", capital.Exposure(), s.cfg.MaxPortfolio*equity)
	}

	stake := fraction * equity
	if stake > headroom {
		stake = headroom
		fraction = stake / equity
		capApplied = domain.CapPortfolio
	}
	stake = floorCents(stake)

	return domain.SizingDecision{
		ConditionID: sig.ConditionID,
		Direction:   sig.Direction,
		Token:       sig.Market.TokenFor(sig.Direction),
		EntryPrice:  price,
		FairPrice:   p,
		Odds:        b,
		KellyRaw:    raw,
		Fraction:    fraction,
		StakeUSD:    stake,
		MaxNotional: floorCents(headroom),
		Cap:         capApplied,
		NegRisk:     sig.Market.NegRisk,
		Question:    sig.Market.Question,
	}, domain.Rejection{}, true
}

// KellyFraction is the full-Kelly stake for win probability p at net odds b.
func KellyFraction(p, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return (b*p - (1 - p)) / b
}

func floorCents(v float64) float64 {
	return math.Floor(v*100+epsilon) / 100
}
