// Package paper simulates order execution against live orderbooks without
// sending anything to the exchange.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyagent/internal/domain"
	"github.com/alejandrodnm/polyagent/internal/ports"
)

// Executor implements ports.OrderExecutor and ports.Reconciler. A FOK intent
// fills only if the current asks up to the limit price cover the full size.
type Executor struct {
	books ports.BookProvider
	now   func() time.Time

	mu    sync.Mutex
	fills map[string]domain.Fill
}

// NewExecutor creates a paper executor that reads books from books.
func NewExecutor(books ports.BookProvider) *Executor {
	return &Executor{
		books: books,
		now:   time.Now,
		fills: make(map[string]domain.Fill),
	}
}

// Submit sweeps the live asks for the intent's token.
func (e *Executor) Submit(ctx context.Context, intent domain.OrderIntent) (domain.Fill, error) {
	book, err := e.books.FetchOrderBook(ctx, intent.TokenID)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("paper.Submit %s: %w", intent.ID, err)
	}

	now := e.now().UTC()
	fill := domain.Fill{IntentID: intent.ID, Status: domain.FillKilled, FilledAt: now}

	cost, avg, ok := book.SweepAsks(intent.Quantity, intent.LimitPrice)
	if ok {
		fill.Status = domain.FillFilled
		fill.Shares = intent.Quantity
		fill.AvgPrice = avg
		fill.CostUSD = cost
		fill.ExchangeOrder = "paper-" + uuid.NewString()
	} else {
		fill.Reason = fmt.Sprintf("insufficient depth: %.2f shares at or below %.4f, wanted %.2f",
			book.AskDepthAtOrBelow(intent.LimitPrice), intent.LimitPrice, intent.Quantity)
	}

	e.mu.Lock()
	e.fills[intent.ID] = fill
	e.mu.Unlock()

	slog.Debug("paper: order",
		"intent", intent.ID,
		"token", intent.TokenID,
		"status", fill.Status,
		"cost", fmt.Sprintf("$%.2f", fill.CostUSD),
	)
	return fill, nil
}

// Lookup returns the recorded fill. An intent that never reached Submit
// executed nothing, so it is reported as KILLED.
func (e *Executor) Lookup(_ context.Context, intent domain.OrderIntent) (domain.Fill, bool, error) {
	e.mu.Lock()
	fill, ok := e.fills[intent.ID]
	e.mu.Unlock()
	if ok {
		return fill, true, nil
	}
	return domain.Fill{
		IntentID: intent.ID,
		Status:   domain.FillKilled,
		Reason:   "paper: never submitted",
		FilledAt: e.now().UTC(),
	}, true, nil
}
