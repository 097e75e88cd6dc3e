package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyagent/internal/ports"
)

// ReconcilePending resolves intents left pending by a crash or an ambiguous
// submit. Intents the reconciler cannot decide stay pending and keep counting
// as exposure. A lookup error aborts and is returned.
func (l *Ledger) ReconcilePending(ctx context.Context, rec ports.Reconciler) (resolved int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, intent := range pendingSorted(l.state) {
		fill, found, err := rec.Lookup(ctx, intent)
		if err != nil {
			return resolved, fmt.Errorf("ledger.ReconcilePending: lookup %s: %w", intent.ID, err)
		}
		if !found {
			slog.Warn("ledger: pending intent still unresolved",
				"intent_id", intent.ID,
				"condition_id", intent.ConditionID,
				"age", l.now().Sub(intent.CreatedAt).Round(time.Second),
			)
			continue
		}
		fill.IntentID = intent.ID

		var ok bool
		if fill.Filled() {
			ok, err = l.settleFillLocked(ctx, fill)
		} else {
			reason := "reconciled: not filled"
			if fill.Reason != "" {
				reason = "reconciled: " + fill.Reason
			}
			ok, err = l.settleKillLocked(ctx, intent.ID, reason)
		}
		if err != nil {
			return resolved, fmt.Errorf("ledger.ReconcilePending: settle %s: %w", intent.ID, err)
		}
		if ok {
			resolved++
		}
	}
	return resolved, nil
}
