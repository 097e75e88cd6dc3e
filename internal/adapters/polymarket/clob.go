package polymarket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

const booksPath = "/books"

// FetchOrderBook obtiene el orderbook vivo de un token.
// Implementa ports.BookProvider.
func (c *Client) FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	books, err := c.fetchBooksBatch(ctx, []string{tokenID})
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("clob.FetchOrderBook: %w", err)
	}
	book, ok := books[tokenID]
	if !ok {
		// el CLOB omite tokens sin libro: equivale a un libro vacío
		slog.Debug("clob: no book returned", "token", shortID(tokenID))
		return domain.OrderBook{TokenID: tokenID}, nil
	}
	return book, nil
}

// fetchBooksBatch hace un POST /books para un batch de token_ids.
func (c *Client) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	if err := c.post(ctx, c.booksLimiter, c.clobBase+booksPath, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}
	return mapOrderBooks(resp), nil
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
