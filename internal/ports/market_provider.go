package ports

import (
	"context"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// ListingFilter limita el listado de mercados candidatos.
type ListingFilter struct {
	MaxMarkets   int     // tope de mercados devueltos
	MinLiquidity float64 // USDC, los mercados por debajo se descartan
}

// ListingSource lista mercados binarios activos como snapshots inmutables.
type ListingSource interface {
	// FetchCandidates devuelve snapshots con probabilidad implícita en [0,1].
	// Nunca devuelve mercados cerrados ni con liquidez inferior al filtro.
	FetchCandidates(ctx context.Context, filter ListingFilter) ([]domain.MarketSnapshot, error)
}

// ResolutionSource informa qué mercados ya se resolvieron y con qué pago.
type ResolutionSource interface {
	// FetchResolutions devuelve las resoluciones de los condition_ids dados que
	// ya están cerradas. Los mercados aún abiertos no aparecen en el resultado.
	FetchResolutions(ctx context.Context, conditionIDs []string) (map[string]domain.Resolution, error)
}
