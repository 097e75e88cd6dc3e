package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// reconcile resolves intents left pending by a crash or an ambiguous submit.
// Transient lookup failures leave them pending for the next cycle.
func (e *Engine) reconcile(ctx context.Context) error {
	if len(e.ledger.Pending()) == 0 {
		return nil
	}
	n, err := e.ledger.ReconcilePending(ctx, e.deps.Reconciler)
	if err != nil {
		if domain.IsTransient(err) {
			slog.Warn("engine: reconciliation deferred", "resolved", n, "err", err)
			return nil
		}
		return fmt.Errorf("engine: reconcile: %w", err)
	}
	if n > 0 {
		slog.Info("engine: reconciled pending intents", "resolved", n, "still_pending", len(e.ledger.Pending()))
	}
	return nil
}

// settleResolutions closes positions whose markets resolved and redeems the
// winning tokens. Lookup and redemption failures are retried next cycle;
// ledger failures are fatal.
func (e *Engine) settleResolutions(ctx context.Context) (int, error) {
	snap := e.ledger.Snapshot()
	if len(snap.Positions) == 0 || e.deps.Resolutions == nil {
		return 0, nil
	}

	ids := make([]string, 0, len(snap.Positions))
	for id := range snap.Positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var resolutions map[string]domain.Resolution
	err := e.cfg.Retry.Do(ctx, "resolutions", e.cfg.Timeouts.Scan, func(ctx context.Context) error {
		var rerr error
		resolutions, rerr = e.deps.Resolutions.FetchResolutions(ctx, ids)
		return rerr
	})
	if err != nil {
		slog.Warn("engine: resolution lookup failed", "positions", len(ids), "err", err)
		return 0, nil
	}

	closed := 0
	for _, id := range ids {
		res, ok := resolutions[id]
		if !ok {
			continue
		}
		pos := snap.Positions[id]
		done, err := e.ledger.ClosePosition(ctx, res)
		if err != nil {
			return closed, fmt.Errorf("engine: close %s: %w", id, err)
		}
		if !done {
			continue
		}
		closed++

		if e.deps.Redeemer == nil || res.PayoutFor(pos.Direction) <= 0 {
			continue
		}
		err = withTimeout(ctx, e.cfg.Timeouts.Submit, func(ctx context.Context) error {
			return e.deps.Redeemer.Redeem(ctx, pos)
		})
		if err != nil {
			slog.Warn("engine: redeem failed", "condition_id", id, "err", err)
		}
	}
	return closed, nil
}

// syncBalance aligns the bankroll with the wallet every BalanceSyncEvery cycles.
func (e *Engine) syncBalance(ctx context.Context, cycle int64) error {
	every := int64(e.cfg.BalanceSyncEvery)
	if e.deps.Balance == nil || every <= 0 || cycle%every != 0 {
		return nil
	}

	var balance float64
	err := e.cfg.Retry.Do(ctx, "balance", e.cfg.Timeouts.Book, func(ctx context.Context) error {
		var berr error
		balance, berr = e.deps.Balance.Balance(ctx)
		return berr
	})
	if err != nil {
		slog.Warn("engine: balance check failed", "err", err)
		return nil
	}

	if _, err := e.ledger.SyncBalance(ctx, balance); err != nil {
		if isFatal(err) {
			return fmt.Errorf("engine: sync balance: %w", err)
		}
		slog.Warn("engine: balance sync skipped", "err", err)
	}
	return nil
}
