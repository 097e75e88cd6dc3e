package domain

import "time"

// CycleSummary is emitted once per cycle, and once more on death.
type CycleSummary struct {
	Cycle            int64
	StartedAt        time.Time
	Duration         time.Duration
	Scanned          int
	Candidates       int
	Enriched         int
	Estimated        int
	EstimateFailures int
	Signals          int
	Attempted        int
	Filled           int
	Killed           int
	Rejections       map[RejectReason]int
	Resolved         int
	OracleCostUSD    float64
	BankrollBefore   float64
	BankrollAfter    float64
	Status           AgentStatus
	Trades           []TradeLine
}

// BankrollDelta is the bankroll change over the cycle.
func (c CycleSummary) BankrollDelta() float64 {
	return c.BankrollAfter - c.BankrollBefore
}

// Reject counts a rejection by reason.
func (c *CycleSummary) Reject(r RejectReason) {
	if c.Rejections == nil {
		c.Rejections = make(map[RejectReason]int)
	}
	c.Rejections[r]++
}

// TradeLine is one executed or killed order, for reporting.
type TradeLine struct {
	ConditionID string
	Question    string
	Direction   Direction
	Edge        float64
	Confidence  float64
	Fraction    float64
	StakeUSD    float64
	Status      FillStatus
	AvgPrice    float64
	Shares      float64
}
