package domain

import (
	"fmt"
	"time"
)

// Direction is the side the agent buys when it trades a mispricing.
type Direction string

const (
	BuyYes Direction = "BUY_YES"
	BuyNo  Direction = "BUY_NO"
)

// Outcome returns the token outcome label bought by this direction.
func (d Direction) Outcome() string {
	if d == BuyYes {
		return "YES"
	}
	return "NO"
}

// Estimate is the oracle's fair-value opinion for one snapshot. Only CostUSD
// outlives the cycle; it is charged to the ledger whether or not the estimate
// turned out usable.
type Estimate struct {
	ConditionID  string
	FairProb     float64 // fair probability of YES
	Confidence   float64
	Rationale    string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	Model        string
	EstimatedAt  time.Time
}

// Validate checks probability and confidence ranges.
func (e Estimate) Validate() error {
	if e.FairProb < 0 || e.FairProb > 1 {
		return fmt.Errorf("estimate %s: fair probability %.4f out of [0,1]: %w", e.ConditionID, e.FairProb, ErrValidation)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("estimate %s: confidence %.4f out of [0,1]: %w", e.ConditionID, e.Confidence, ErrValidation)
	}
	return nil
}

// MispricingSignal is emitted when the fair probability diverges from the
// market-implied probability by at least the minimum edge.
type MispricingSignal struct {
	ConditionID string
	Edge        float64 // fair - market, signed
	Direction   Direction
	Confidence  float64
	FairProb    float64 // fair probability of YES
	Market      MarketSnapshot
	Rationale   string
}

// AbsEdge returns |Edge|.
func (s MispricingSignal) AbsEdge() float64 {
	if s.Edge < 0 {
		return -s.Edge
	}
	return s.Edge
}

// Score ranks signals: bigger, more confident edges first.
func (s MispricingSignal) Score() float64 {
	return s.AbsEdge() * s.Confidence
}

// CapApplied records which cap, if any, bounded a stake.
type CapApplied string

const (
	CapNone        CapApplied = "none"
	CapPerPosition CapApplied = "per_position"
	CapPortfolio   CapApplied = "portfolio"
)

// SizingDecision is the bounded stake chosen for one signal.
type SizingDecision struct {
	ConditionID string
	Direction   Direction
	Token       Token
	EntryPrice  float64
	FairPrice   float64 // fair probability on the chosen side
	Odds        float64 // b = (1 - price) / price
	KellyRaw    float64 // full-Kelly fraction before shrinkage and caps
	Fraction    float64 // final stake fraction of sizing capital
	StakeUSD    float64
	MaxNotional float64 // portfolio headroom left for the order at its limit price
	Cap         CapApplied
	NegRisk     bool
	Question    string
}

// Shares returns the number of outcome tokens the stake buys at the entry price.
func (d SizingDecision) Shares() float64 {
	if d.EntryPrice <= 0 {
		return 0
	}
	return d.StakeUSD / d.EntryPrice
}

// ExpectedValue returns edge × stake on the chosen side.
func (d SizingDecision) ExpectedValue() float64 {
	return (d.FairPrice - d.EntryPrice) * d.StakeUSD
}

// RejectReason names why a signal did not become an order.
type RejectReason string

const (
	RejectNoEdge                RejectReason = "NoEdgeAtPrice"
	RejectPriceOutOfRange       RejectReason = "PriceOutOfRange"
	RejectKellyNonPositive      RejectReason = "KellyNonPositive"
	RejectPortfolioCapReached   RejectReason = "PortfolioCapReached"
	RejectInsufficientLiquidity RejectReason = "InsufficientLiquidity"
	RejectBelowMinimumSize      RejectReason = "BelowMinimumSize"
	RejectAlreadyHeld           RejectReason = "AlreadyHeld"
)

// Rejection is a non-error outcome of sizing or gating.
type Rejection struct {
	ConditionID string
	Reason      RejectReason
	Detail      string
}

func (r Rejection) String() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// OrderType is the time-in-force of a submitted order.
type OrderType string

// OrderFOK fills completely at or better than the limit, or not at all.
const OrderFOK OrderType = "FOK"

// OrderIntent is the single order the gate hands to the executor. It is
// persisted as pending before submission and consumed exactly once.
type OrderIntent struct {
	ID          string
	ConditionID string
	TokenID     string
	Direction   Direction
	Quantity    float64 // shares
	LimitPrice  float64
	EntryPrice  float64
	NotionalUSD float64 // Quantity × LimitPrice, upper bound on cost
	Type        OrderType
	MaxSlippage float64
	NegRisk     bool
	Question    string
	CreatedAt   time.Time
}

// FillStatus is the terminal state of a FOK order.
type FillStatus string

const (
	FillFilled FillStatus = "FILLED"
	FillKilled FillStatus = "KILLED"
)

// Fill is what the executor (or reconciler) reports for an intent.
type Fill struct {
	IntentID      string
	Status        FillStatus
	Shares        float64
	AvgPrice      float64
	CostUSD       float64
	ExchangeOrder string
	Reason        string // why a KILLED fill did not execute
	FilledAt      time.Time
}

// Filled reports whether the order executed.
func (f Fill) Filled() bool {
	return f.Status == FillFilled && f.Shares > 0
}

// Resolution is the final payout of a market, per YES share.
type Resolution struct {
	ConditionID string
	YesPayout   float64 // 1 if YES won, 0 if NO won, fractional on split resolution
	ResolvedAt  time.Time
}

// PayoutFor returns the payout per share for the side held.
func (r Resolution) PayoutFor(d Direction) float64 {
	if d == BuyYes {
		return r.YesPayout
	}
	return 1 - r.YesPayout
}
