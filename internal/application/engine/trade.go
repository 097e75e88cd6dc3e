package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// trade runs SIZE → GATE → EXECUTE → SETTLE for one signal inside a ledger
// session. Rejections and external failures skip the signal; only ledger
// failures are returned.
func (e *Engine) trade(ctx context.Context, sig domain.MispricingSignal, sum *domain.CycleSummary) error {
	sess := e.ledger.BeginSession()
	defer sess.End()

	snap := sess.Snapshot()
	if snap.IsDead() {
		slog.Info("engine: ledger dead, skipping signal", "condition_id", sig.ConditionID)
		return nil
	}
	if snap.Holds(sig.ConditionID) {
		e.reject(sum, domain.Rejection{ConditionID: sig.ConditionID, Reason: domain.RejectAlreadyHeld})
		return nil
	}

	decision, rej, ok := e.sizer.Size(sig, sess.Capital())
	if !ok {
		e.reject(sum, rej)
		return nil
	}

	var book domain.OrderBook
	err := e.cfg.Retry.Do(ctx, "book", e.cfg.Timeouts.Book, func(ctx context.Context) error {
		var berr error
		book, berr = e.deps.Books.FetchOrderBook(ctx, decision.Token.TokenID)
		return berr
	})
	if err != nil {
		slog.Warn("engine: order book unavailable", "condition_id", sig.ConditionID, "err", err)
		return nil
	}

	intent, rej, ok := e.gate.Check(decision, book)
	if !ok {
		e.reject(sum, rej)
		return nil
	}

	if err := sess.BeginIntent(ctx, intent); err != nil {
		return fmt.Errorf("engine: begin intent %s: %w", intent.ID, err)
	}
	sum.Attempted++

	slog.Info("engine: submitting order",
		"condition_id", intent.ConditionID,
		"side", intent.Direction.Outcome(),
		"edge", fmt.Sprintf("%+.3f", sig.Edge),
		"confidence", fmt.Sprintf("%.2f", sig.Confidence),
		"fraction", fmt.Sprintf("%.4f", decision.Fraction),
		"shares", fmt.Sprintf("%.2f", intent.Quantity),
		"limit", fmt.Sprintf("%.4f", intent.LimitPrice),
		"stake", fmt.Sprintf("$%.2f", decision.StakeUSD),
	)

	fill, err := e.submit(ctx, intent)
	if err != nil {
		slog.Warn("engine: order outcome unknown, left pending", "intent_id", intent.ID, "err", err)
		return nil
	}

	line := domain.TradeLine{
		ConditionID: sig.ConditionID,
		Question:    sig.Market.Question,
		Direction:   sig.Direction,
		Edge:        sig.Edge,
		Confidence:  sig.Confidence,
		Fraction:    decision.Fraction,
		StakeUSD:    decision.StakeUSD,
		Status:      domain.FillKilled,
	}
	if fill.Filled() {
		if _, err := sess.SettleFill(ctx, fill); err != nil {
			return fmt.Errorf("engine: settle fill %s: %w", intent.ID, err)
		}
		line.Status = domain.FillFilled
		line.AvgPrice = fill.AvgPrice
		line.Shares = fill.Shares
		sum.Filled++
	} else {
		reason := fill.Reason
		if reason == "" {
			reason = "not filled"
		}
		if _, err := sess.SettleKill(ctx, intent.ID, reason); err != nil {
			return fmt.Errorf("engine: settle kill %s: %w", intent.ID, err)
		}
		sum.Killed++
	}
	sum.Trades = append(sum.Trades, line)
	return nil
}

// submit sends the intent exactly once. If the outcome is unknown it asks the
// reconciler straight away; an error means the intent stays pending.
func (e *Engine) submit(ctx context.Context, intent domain.OrderIntent) (domain.Fill, error) {
	var fill domain.Fill
	err := withTimeout(ctx, e.cfg.Timeouts.Submit, func(ctx context.Context) error {
		var serr error
		fill, serr = e.deps.Executor.Submit(ctx, intent)
		return serr
	})
	if err == nil {
		fill.IntentID = intent.ID
		return fill, nil
	}

	var found bool
	lerr := withTimeout(ctx, e.cfg.Timeouts.Submit, func(ctx context.Context) error {
		var lookupErr error
		fill, found, lookupErr = e.deps.Reconciler.Lookup(ctx, intent)
		return lookupErr
	})
	if lerr != nil {
		return domain.Fill{}, fmt.Errorf("submit: %w; lookup: %v", err, lerr)
	}
	if !found {
		return domain.Fill{}, fmt.Errorf("submit: %w", err)
	}
	fill.IntentID = intent.ID
	return fill, nil
}

func (e *Engine) reject(sum *domain.CycleSummary, r domain.Rejection) {
	sum.Reject(r.Reason)
	slog.Info("engine: signal rejected", "condition_id", r.ConditionID, "reason", r.String())
}
