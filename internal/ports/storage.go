package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// LedgerStore persiste el estado del ledger y su journal de forma durable.
type LedgerStore interface {
	// LoadLedger devuelve el último estado commiteado. found=false si la
	// base está vacía (primer arranque).
	LoadLedger(ctx context.Context) (state domain.LedgerState, found bool, err error)

	// CommitLedger escribe el estado completo y la entrada del journal en una
	// sola transacción. Si falla, no queda nada escrito.
	CommitLedger(ctx context.Context, state domain.LedgerState, entry domain.LedgerEntry) error

	// SumDeltas devuelve la suma de deltas del journal, para verificar consistencia.
	SumDeltas(ctx context.Context) (sum decimal.Decimal, count int64, err error)

	// SaveCycle persiste el resumen de un ciclo.
	SaveCycle(ctx context.Context, summary domain.CycleSummary) error

	Close() error
}
