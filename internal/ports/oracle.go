package ports

import (
	"context"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// Enricher attaches external context to a snapshot. A failure leaves the
// snapshot usable without enrichment.
type Enricher interface {
	Enrich(ctx context.Context, m domain.MarketSnapshot) (domain.Enrichment, error)
}

// Oracle estimates the fair probability of YES for a snapshot.
type Oracle interface {
	// Estimate returns the estimate together with its USD cost. When the call
	// reached the provider but the reply was unusable, the returned Estimate
	// still carries CostUSD alongside a non-nil error.
	Estimate(ctx context.Context, m domain.MarketSnapshot) (domain.Estimate, error)
}
