package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyagent/internal/domain"
	"github.com/alejandrodnm/polyagent/internal/domain/strategy"
)

// Session is an exclusive hold on the ledger. Sizing reads and the settlement
// that follows happen under the same lock, so no other writer can consume the
// headroom a stake was sized against.
type Session struct {
	l     *Ledger
	ended bool
}

// End releases the ledger. Safe to call more than once.
func (s *Session) End() {
	if s.ended {
		return
	}
	s.ended = true
	s.l.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() domain.LedgerState {
	return s.l.state.Clone()
}

// Capital returns the sizing snapshot. Pending notional is reported as
// Reserved: it is still in Bankroll but no longer free.
func (s *Session) Capital() strategy.Capital {
	st := s.l.state
	return strategy.Capital{
		Bankroll: st.Bankroll.InexactFloat64(),
		Invested: st.Invested().InexactFloat64(),
		Reserved: st.Reserved().InexactFloat64(),
	}
}

// BeginIntent persists the intent as pending before it is submitted.
// Re-registering the same intent ID is a no-op.
func (s *Session) BeginIntent(ctx context.Context, intent domain.OrderIntent) error {
	if _, ok := s.l.state.Pending[intent.ID]; ok {
		return nil
	}
	_, err := s.l.commitLocked(ctx, mutation{
		kind:        domain.EntryIntent,
		conditionID: intent.ConditionID,
		intentID:    intent.ID,
		note:        fmt.Sprintf("%s %.2f @ <= %.4f", intent.Direction, intent.Quantity, intent.LimitPrice),
	}, func(st *domain.LedgerState) (decimal.Decimal, error) {
		st.Pending[intent.ID] = intent
		return decimal.Zero, nil
	})
	return err
}

// SettleFill records an executed intent. Settling an intent that is no longer
// pending is a no-op, so replaying a settlement cannot double-count.
func (s *Session) SettleFill(ctx context.Context, fill domain.Fill) (bool, error) {
	return s.l.settleFillLocked(ctx, fill)
}

// SettleKill records an intent that did not execute.
func (s *Session) SettleKill(ctx context.Context, intentID, reason string) (bool, error) {
	return s.l.settleKillLocked(ctx, intentID, reason)
}

func (l *Ledger) settleFillLocked(ctx context.Context, fill domain.Fill) (bool, error) {
	intent, ok := l.state.Pending[fill.IntentID]
	if !ok {
		return false, nil
	}
	if !fill.Filled() {
		return l.settleKillLocked(ctx, fill.IntentID, "no shares filled")
	}

	cost := usd(fill.CostUSD)
	shares := decimal.NewFromFloat(fill.Shares).Round(6)
	st, err := l.commitLocked(ctx, mutation{
		kind:        domain.EntryFill,
		conditionID: intent.ConditionID,
		intentID:    intent.ID,
		note:        fmt.Sprintf("%s %s shares @ %.4f order %s", intent.Direction, shares.StringFixed(2), fill.AvgPrice, fill.ExchangeOrder),
		allowDead:   true,
	}, func(st *domain.LedgerState) (decimal.Decimal, error) {
		delete(st.Pending, intent.ID)
		pos, held := st.Positions[intent.ConditionID]
		if !held {
			pos = domain.Position{
				ConditionID: intent.ConditionID,
				TokenID:     intent.TokenID,
				Direction:   intent.Direction,
				Shares:      decimal.Zero,
				CostBasis:   decimal.Zero,
				Question:    intent.Question,
				NegRisk:     intent.NegRisk,
				OpenedAt:    fill.FilledAt,
			}
		} else if pos.Direction != intent.Direction {
			return decimal.Zero, fmt.Errorf("ledger: fill %s is %s but position holds %s: %w",
				intent.ID, intent.Direction, pos.Direction, domain.ErrInvariantViolation)
		}
		pos.Shares = pos.Shares.Add(shares)
		pos.CostBasis = pos.CostBasis.Add(cost)
		pos.EntryPrice = pos.CostBasis.Div(pos.Shares).Round(6)
		st.Positions[intent.ConditionID] = pos
		st.TradesFilled++
		return cost.Neg(), nil
	})
	if err != nil {
		return false, err
	}
	slog.Info("ledger: fill settled",
		"condition_id", intent.ConditionID,
		"side", intent.Direction.Outcome(),
		"shares", shares.StringFixed(2),
		"cost", money(cost),
		"bankroll", money(st.Bankroll),
	)
	return true, nil
}

func (l *Ledger) settleKillLocked(ctx context.Context, intentID, reason string) (bool, error) {
	intent, ok := l.state.Pending[intentID]
	if !ok {
		return false, nil
	}
	_, err := l.commitLocked(ctx, mutation{
		kind:        domain.EntryKill,
		conditionID: intent.ConditionID,
		intentID:    intentID,
		note:        reason,
		allowDead:   true,
	}, func(st *domain.LedgerState) (decimal.Decimal, error) {
		delete(st.Pending, intentID)
		st.TradesKilled++
		return decimal.Zero, nil
	})
	if err != nil {
		return false, err
	}
	slog.Info("ledger: intent killed", "condition_id", intent.ConditionID, "intent_id", intentID, "reason", reason)
	return true, nil
}
