package ports

import (
	"context"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// OrderExecutor submits a single fill-or-kill order.
type OrderExecutor interface {
	// Submit sends the intent once. A nil error means the exchange answered and
	// the Fill status is final (FILLED or KILLED). A non-nil error means the
	// outcome is unknown and must be resolved through a Reconciler.
	Submit(ctx context.Context, intent domain.OrderIntent) (domain.Fill, error)
}

// Reconciler resolves intents whose outcome is unknown, e.g. after a crash
// between submission and settlement.
type Reconciler interface {
	// Lookup returns the final Fill for the intent. found=false means the
	// outcome still cannot be determined.
	Lookup(ctx context.Context, intent domain.OrderIntent) (fill domain.Fill, found bool, err error)
}

// BalanceSource reports the wallet's spendable USDC.
type BalanceSource interface {
	Balance(ctx context.Context) (float64, error)
}

// Redeemer converts the winning tokens of a resolved position into cash.
type Redeemer interface {
	Redeem(ctx context.Context, pos domain.Position) error
}
