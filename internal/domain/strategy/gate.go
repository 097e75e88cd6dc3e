package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// GateConfig holds the last pre-trade checks.
type GateConfig struct {
	MaxSlippage float64 // e.g. 0.05: limit = entry × 1.05
	MinShares   float64 // exchange minimum order size in shares
	MinOrderUSD float64 // dust floor in USDC
	TickSize    float64 // limit price is floored to this tick
}

// DefaultGateConfig returns 5% slippage, 5 shares / $1 minimums and a 0.01 tick.
func DefaultGateConfig() GateConfig {
	return GateConfig{MaxSlippage: 0.05, MinShares: 5, MinOrderUSD: 1.0, TickSize: 0.01}
}

// Gate verifies a sizing decision against the live book and emits exactly one
// FOK intent, or a rejection. It never retries.
type Gate struct {
	cfg   GateConfig
	newID func() string
	now   func() time.Time
}

// NewGate creates a Gate.
func NewGate(cfg GateConfig) *Gate {
	if cfg.TickSize <= 0 {
		cfg.TickSize = 0.01
	}
	return &Gate{cfg: cfg, newID: uuid.NewString, now: time.Now}
}

// LimitPrice returns the worst acceptable fill price for an entry price.
func (g *Gate) LimitPrice(entry float64) float64 {
	limit := math.Min(entry*(1+g.cfg.MaxSlippage), MaxEntryPrice)
	ticks := math.Floor(limit/g.cfg.TickSize + epsilon)
	limit = ticks * g.cfg.TickSize
	if limit < entry {
		limit = entry
	}
	return math.Round(limit*10000) / 10000
}

// Check runs (a) depth at or below the slippage bound and (b) exchange minimums.
// The quantity is trimmed so that qty × limit stays within d.MaxNotional.
func (g *Gate) Check(d domain.SizingDecision, book domain.OrderBook) (domain.OrderIntent, domain.Rejection, bool) {
	limit := g.LimitPrice(d.EntryPrice)
	qty := math.Floor(d.Shares()*100+epsilon) / 100
	if d.MaxNotional > 0 && qty*limit > d.MaxNotional+epsilon {
		qty = math.Floor(d.MaxNotional/limit*100+epsilon) / 100
	}

	depth := book.AskDepthAtOrBelow(limit)
	if depth+epsilon < qty {
		return domain.OrderIntent{}, domain.Rejection{
			ConditionID: d.ConditionID,
			Reason:      domain.RejectInsufficientLiquidity,
			Detail:      formatDepth(qty, depth, limit),
		}, false
	}

	if qty+epsilon < g.cfg.MinShares || qty*d.EntryPrice+epsilon < g.cfg.MinOrderUSD {
		return domain.OrderIntent{}, domain.Rejection{
			ConditionID: d.ConditionID,
			Reason:      domain.RejectBelowMinimumSize,
			Detail:      formatSize(qty, qty*d.EntryPrice, g.cfg.MinShares, g.cfg.MinOrderUSD),
		}, false
	}

	return domain.OrderIntent{
		ID:          g.newID(),
		ConditionID: d.ConditionID,
		TokenID:     d.Token.TokenID,
		Direction:   d.Direction,
		Quantity:    qty,
		LimitPrice:  limit,
		EntryPrice:  d.EntryPrice,
		NotionalUSD: math.Round(qty*limit*1e6) / 1e6,
		Type:        domain.OrderFOK,
		MaxSlippage: g.cfg.MaxSlippage,
		NegRisk:     d.NegRisk,
		Question:    d.Question,
		CreatedAt:   g.now().UTC(),
	}, domain.Rejection{}, true
}

func formatDepth(qty, depth, limit float64) string {
	return fmt.Sprintf("need %.2f shares, %.2f available at <= %.4f", qty, depth, limit)
}

func formatSize(qty, notional, minShares, minUSD float64) string {
	return fmt.Sprintf("%.2f shares / $%.2f below minimum %.0f shares / $%.2f", qty, notional, minShares, minUSD)
}
