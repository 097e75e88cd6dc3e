package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentStatus is the survival state of the agent. DEAD is terminal.
type AgentStatus string

const (
	StatusAlive AgentStatus = "ALIVE"
	StatusDead  AgentStatus = "DEAD"
)

// Position is an open holding of outcome tokens in one market.
type Position struct {
	ConditionID string          `json:"condition_id"`
	TokenID     string          `json:"token_id"`
	Direction   Direction       `json:"direction"`
	Shares      decimal.Decimal `json:"shares"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	Question    string          `json:"question,omitempty"`
	NegRisk     bool            `json:"neg_risk,omitempty"`
	OpenedAt    time.Time       `json:"opened_at"`
}

// LedgerState is the agent's entire financial state. It is owned by the ledger;
// everything else reads copies returned by Clone.
type LedgerState struct {
	StartingBankroll  decimal.Decimal        `json:"starting_bankroll"`
	Bankroll          decimal.Decimal        `json:"bankroll"`
	CumulativeAPICost decimal.Decimal        `json:"cumulative_api_cost"`
	RealizedPnL       decimal.Decimal        `json:"realized_pnl"`
	Positions         map[string]Position    `json:"positions"`
	Pending           map[string]OrderIntent `json:"pending"`
	Cycle             int64                  `json:"cycle"`
	Seq               int64                  `json:"seq"`
	Status            AgentStatus            `json:"status"`
	TradesFilled      int                    `json:"trades_filled"`
	TradesKilled      int                    `json:"trades_killed"`
	Wins              int                    `json:"wins"`
	Losses            int                    `json:"losses"`
	StartedAt         time.Time              `json:"started_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	LastCycleAt       time.Time              `json:"last_cycle_at,omitempty"`
	DiedAt            *time.Time             `json:"died_at,omitempty"`
}

// NewLedgerState returns a fresh ALIVE state funded with the starting bankroll.
func NewLedgerState(starting decimal.Decimal, now time.Time) LedgerState {
	return LedgerState{
		StartingBankroll:  starting,
		Bankroll:          starting,
		CumulativeAPICost: decimal.Zero,
		RealizedPnL:       decimal.Zero,
		Positions:         map[string]Position{},
		Pending:           map[string]OrderIntent{},
		Status:            StatusAlive,
		StartedAt:         now,
		UpdatedAt:         now,
	}
}

// Clone returns a deep copy safe to hand to readers or to mutate as a draft.
func (s LedgerState) Clone() LedgerState {
	c := s
	c.Positions = make(map[string]Position, len(s.Positions))
	for k, v := range s.Positions {
		c.Positions[k] = v
	}
	c.Pending = make(map[string]OrderIntent, len(s.Pending))
	for k, v := range s.Pending {
		c.Pending[k] = v
	}
	if s.DiedAt != nil {
		t := *s.DiedAt
		c.DiedAt = &t
	}
	return c
}

// IsDead reports whether the agent has died.
func (s LedgerState) IsDead() bool {
	return s.Status == StatusDead
}

// Invested is the cost basis of open positions.
func (s LedgerState) Invested() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Positions {
		total = total.Add(p.CostBasis)
	}
	return total
}

// Reserved is the notional of pending intents. It is still part of Bankroll
// until the intent settles, but it is not free to stake.
func (s LedgerState) Reserved() decimal.Decimal {
	total := decimal.Zero
	for _, in := range s.Pending {
		total = total.Add(decimal.NewFromFloat(in.NotionalUSD))
	}
	return total
}

// OpenExposure is Invested plus Reserved.
func (s LedgerState) OpenExposure() decimal.Decimal {
	return s.Invested().Add(s.Reserved())
}

// NetProfit is bankroll minus starting bankroll.
func (s LedgerState) NetProfit() decimal.Decimal {
	return s.Bankroll.Sub(s.StartingBankroll)
}

// Holds reports whether the market has an open position or pending intent.
func (s LedgerState) Holds(conditionID string) bool {
	if _, ok := s.Positions[conditionID]; ok {
		return true
	}
	for _, in := range s.Pending {
		if in.ConditionID == conditionID {
			return true
		}
	}
	return false
}

// EntryKind classifies a journal entry.
type EntryKind string

const (
	EntryInit        EntryKind = "init"
	EntryOracleCost  EntryKind = "oracle_cost"
	EntryIntent      EntryKind = "intent"
	EntryFill        EntryKind = "fill"
	EntryKill        EntryKind = "kill"
	EntryClose       EntryKind = "close"
	EntryBalanceSync EntryKind = "balance_sync"
	EntryCycle       EntryKind = "cycle"
)

// LedgerEntry is one committed mutation. Delta is the signed bankroll change;
// the bankroll always equals the starting bankroll plus the sum of all deltas.
type LedgerEntry struct {
	Seq           int64           `json:"seq"`
	Kind          EntryKind       `json:"kind"`
	ConditionID   string          `json:"condition_id,omitempty"`
	IntentID      string          `json:"intent_id,omitempty"`
	Delta         decimal.Decimal `json:"delta"`
	BankrollAfter decimal.Decimal `json:"bankroll_after"`
	Note          string          `json:"note,omitempty"`
	At            time.Time       `json:"at"`
}

// HealthReport is a read-only view of survival metrics.
type HealthReport struct {
	Status         AgentStatus
	Cycle          int64
	Bankroll       float64
	Starting       float64
	NetProfit      float64
	APICost        float64
	RealizedPnL    float64
	OpenExposure   float64
	OpenPositions  int
	Pending        int
	TradesFilled   int
	TradesKilled   int
	Wins           int
	Losses         int
	RunwayCycles   int
	CanAffordCycle bool
	Uptime         time.Duration
}
