package ports

import (
	"context"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// BookProvider obtiene orderbooks del CLOB.
type BookProvider interface {
	// FetchOrderBook devuelve el orderbook vivo de un token.
	FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error)
}
