// Package ledger owns the agent's financial state. Every mutation is checked,
// written durably together with a journal entry, and only then made visible.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyagent/internal/domain"
	"github.com/alejandrodnm/polyagent/internal/ports"
)

const commitTimeout = 10 * time.Second

// Config controls survival rules.
type Config struct {
	StartingBankroll   decimal.Decimal
	DeathThreshold     decimal.Decimal // bankroll at or below this → DEAD
	EstimatedCycleCost decimal.Decimal // used for runway and affordability
	BalanceDrift       decimal.Decimal // on-chain sync only applies above this drift
}

// DefaultConfig returns $50 starting bankroll, $0.50 death threshold,
// $2 estimated cycle cost and $0.50 drift tolerance.
func DefaultConfig() Config {
	return Config{
		StartingBankroll:   decimal.NewFromInt(50),
		DeathThreshold:     decimal.RequireFromString("0.50"),
		EstimatedCycleCost: decimal.NewFromInt(2),
		BalanceDrift:       decimal.RequireFromString("0.50"),
	}
}

// Ledger is the single owner of LedgerState. All methods are safe for
// concurrent use; a Session holds the lock across a multi-step trade.
type Ledger struct {
	mu    sync.Mutex
	store ports.LedgerStore
	cfg   Config
	state domain.LedgerState
	now   func() time.Time
}

// Open loads the persisted ledger, or initialises one with the starting
// bankroll on first run. It refuses to return a ledger whose bankroll does
// not equal the starting bankroll plus the sum of its journal deltas.
func Open(ctx context.Context, store ports.LedgerStore, cfg Config) (*Ledger, error) {
	l := &Ledger{store: store, cfg: cfg, now: time.Now}

	state, found, err := store.LoadLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger.Open: load: %w", err)
	}

	if !found {
		now := l.now().UTC()
		l.state = domain.NewLedgerState(cfg.StartingBankroll, now)
		init := l.state.Clone()
		init.Seq = 1
		entry := domain.LedgerEntry{
			Seq:           1,
			Kind:          domain.EntryInit,
			Delta:         decimal.Zero,
			BankrollAfter: init.Bankroll,
			Note:          "starting bankroll " + cfg.StartingBankroll.StringFixed(2),
			At:            now,
		}
		if err := store.CommitLedger(ctx, init, entry); err != nil {
			return nil, fmt.Errorf("ledger.Open: init: %w", err)
		}
		l.state = init
		slog.Info("ledger: initialised", "bankroll", money(init.Bankroll))
		return l, nil
	}

	sum, n, err := store.SumDeltas(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger.Open: sum journal: %w", err)
	}
	expected := state.StartingBankroll.Add(sum)
	if !expected.Equal(state.Bankroll) {
		return nil, fmt.Errorf("ledger.Open: bankroll %s != starting %s + journal %s: %w",
			state.Bankroll, state.StartingBankroll, sum, domain.ErrLedgerCorruption)
	}
	if n != state.Seq {
		return nil, fmt.Errorf("ledger.Open: journal has %d entries, state seq %d: %w", n, state.Seq, domain.ErrLedgerCorruption)
	}
	if !state.StartingBankroll.Equal(cfg.StartingBankroll) {
		slog.Warn("ledger: configured starting bankroll ignored, persisted ledger wins",
			"configured", money(cfg.StartingBankroll),
			"persisted", money(state.StartingBankroll),
		)
	}

	l.state = state
	slog.Info("ledger: loaded",
		"bankroll", money(state.Bankroll),
		"status", state.Status,
		"cycle", state.Cycle,
		"positions", len(state.Positions),
		"pending", len(state.Pending),
	)
	return l, nil
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() domain.LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// Status returns ALIVE or DEAD.
func (l *Ledger) Status() domain.AgentStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Status
}

// IsDead reports whether the agent has died.
func (l *Ledger) IsDead() bool {
	return l.Status() == domain.StatusDead
}

// Pending returns pending intents, oldest first.
func (l *Ledger) Pending() []domain.OrderIntent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return pendingSorted(l.state)
}

// RecordOracleCost charges an oracle call. Costs are facts and are recorded
// even after death.
func (l *Ledger) RecordOracleCost(ctx context.Context, conditionID string, costUSD float64) error {
	if costUSD <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cost := usd(costUSD)
	_, err := l.commitLocked(ctx, mutation{kind: domain.EntryOracleCost, conditionID: conditionID, allowDead: true},
		func(s *domain.LedgerState) (decimal.Decimal, error) {
			s.CumulativeAPICost = s.CumulativeAPICost.Add(cost)
			return cost.Neg(), nil
		})
	return err
}

// ClosePosition settles a resolved market: payout is credited, realized P&L
// updated and the position removed. Unknown markets are a no-op.
func (l *Ledger) ClosePosition(ctx context.Context, res domain.Resolution) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.state.Positions[res.ConditionID]
	if !ok {
		return false, nil
	}

	payout := pos.Shares.Mul(decimal.NewFromFloat(res.PayoutFor(pos.Direction))).Round(6)
	realized := payout.Sub(pos.CostBasis)
	_, err := l.commitLocked(ctx, mutation{
		kind:        domain.EntryClose,
		conditionID: res.ConditionID,
		note:        fmt.Sprintf("payout %s pnl %s", payout.StringFixed(2), realized.StringFixed(2)),
		allowDead:   true,
	}, func(s *domain.LedgerState) (decimal.Decimal, error) {
		delete(s.Positions, res.ConditionID)
		s.RealizedPnL = s.RealizedPnL.Add(realized)
		if realized.IsPositive() {
			s.Wins++
		} else {
			s.Losses++
		}
		return payout, nil
	})
	if err != nil {
		return false, err
	}
	slog.Info("ledger: position closed",
		"condition_id", res.ConditionID,
		"side", pos.Direction.Outcome(),
		"payout", money(payout),
		"pnl", money(realized),
	)
	return true, nil
}

// SyncBalance adjusts the bankroll to the on-chain balance when they drift
// apart by more than the configured tolerance. Returns true if adjusted.
func (l *Ledger) SyncBalance(ctx context.Context, onchainUSD float64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsDead() {
		return false, domain.ErrAgentDead
	}
	if len(l.state.Pending) > 0 {
		// fills in flight would show up as false drift
		return false, nil
	}

	onchain := usd(onchainUSD)
	drift := onchain.Sub(l.state.Bankroll)
	if drift.Abs().LessThanOrEqual(l.cfg.BalanceDrift) {
		return false, nil
	}

	_, err := l.commitLocked(ctx, mutation{
		kind: domain.EntryBalanceSync,
		note: "on-chain " + onchain.StringFixed(2),
	}, func(*domain.LedgerState) (decimal.Decimal, error) {
		return drift, nil
	})
	if err != nil {
		return false, err
	}
	slog.Warn("ledger: bankroll synced from chain", "drift", money(drift), "bankroll", money(onchain))
	return true, nil
}

// CompleteCycle advances the monotonic cycle counter.
func (l *Ledger) CompleteCycle(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, err := l.commitLocked(ctx, mutation{kind: domain.EntryCycle, allowDead: true},
		func(s *domain.LedgerState) (decimal.Decimal, error) {
			s.Cycle++
			s.LastCycleAt = l.now().UTC()
			return decimal.Zero, nil
		})
	if err != nil {
		return 0, err
	}
	return st.Cycle, nil
}

// Health reports survival metrics.
func (l *Ledger) Health() domain.HealthReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.state
	runway := 0
	if l.cfg.EstimatedCycleCost.IsPositive() {
		spare := s.Bankroll.Sub(l.cfg.DeathThreshold)
		if spare.IsPositive() {
			runway = int(spare.Div(l.cfg.EstimatedCycleCost).IntPart())
		}
	}
	return domain.HealthReport{
		Status:         s.Status,
		Cycle:          s.Cycle,
		Bankroll:       s.Bankroll.InexactFloat64(),
		Starting:       s.StartingBankroll.InexactFloat64(),
		NetProfit:      s.NetProfit().InexactFloat64(),
		APICost:        s.CumulativeAPICost.InexactFloat64(),
		RealizedPnL:    s.RealizedPnL.InexactFloat64(),
		OpenExposure:   s.OpenExposure().InexactFloat64(),
		OpenPositions:  len(s.Positions),
		Pending:        len(s.Pending),
		TradesFilled:   s.TradesFilled,
		TradesKilled:   s.TradesKilled,
		Wins:           s.Wins,
		Losses:         s.Losses,
		RunwayCycles:   runway,
		CanAffordCycle: s.Bankroll.GreaterThan(l.cfg.EstimatedCycleCost.Add(l.cfg.DeathThreshold)),
		Uptime:         l.now().Sub(s.StartedAt),
	}
}

// BeginSession locks the ledger for one market's SIZE → SETTLE pass. The
// caller must call End.
func (l *Ledger) BeginSession() *Session {
	l.mu.Lock()
	return &Session{l: l}
}

type mutation struct {
	kind        domain.EntryKind
	conditionID string
	intentID    string
	note        string
	allowDead   bool
}

// commitLocked applies fn to a draft, checks invariants, persists draft plus
// journal entry and only then swaps it in. l.mu must be held.
func (l *Ledger) commitLocked(ctx context.Context, m mutation, fn func(*domain.LedgerState) (decimal.Decimal, error)) (domain.LedgerState, error) {
	if l.state.IsDead() && !m.allowDead {
		return l.state.Clone(), fmt.Errorf("ledger: %s refused: %w", m.kind, domain.ErrAgentDead)
	}

	now := l.now().UTC()
	draft := l.state.Clone()
	delta, err := fn(&draft)
	if err != nil {
		return l.state.Clone(), err
	}

	draft.Bankroll = draft.Bankroll.Add(delta)
	draft.Seq++
	draft.UpdatedAt = now

	var violation error
	if draft.Bankroll.IsNegative() {
		violation = fmt.Errorf("ledger: %s left bankroll at %s: %w", m.kind, draft.Bankroll, domain.ErrInvariantViolation)
	}
	died := false
	if !draft.IsDead() && draft.Bankroll.LessThanOrEqual(l.cfg.DeathThreshold) {
		draft.Status = domain.StatusDead
		draft.DiedAt = &now
		died = true
	}

	entry := domain.LedgerEntry{
		Seq:           draft.Seq,
		Kind:          m.kind,
		ConditionID:   m.conditionID,
		IntentID:      m.intentID,
		Delta:         delta,
		BankrollAfter: draft.Bankroll,
		Note:          m.note,
		At:            now,
	}

	// a shutdown signal must not abort a half-recorded settlement
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := l.store.CommitLedger(cctx, draft, entry); err != nil {
		return l.state.Clone(), fmt.Errorf("ledger: commit %s: %w", m.kind, err)
	}
	l.state = draft

	if died {
		slog.Error("ledger: agent died",
			"bankroll", money(draft.Bankroll),
			"threshold", money(l.cfg.DeathThreshold),
			"cause", m.kind,
		)
	}
	if violation != nil {
		return draft.Clone(), violation
	}
	return draft.Clone(), nil
}

func pendingSorted(s domain.LedgerState) []domain.OrderIntent {
	out := make([]domain.OrderIntent, 0, len(s.Pending))
	for _, in := range s.Pending {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// usd converts a float amount to a decimal rounded to micro-dollars.
func usd(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(6)
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
