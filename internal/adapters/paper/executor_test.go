package paper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

type stubBooks struct {
	book domain.OrderBook
	err  error
}

func (s stubBooks) FetchOrderBook(_ context.Context, tokenID string) (domain.OrderBook, error) {
	if s.err != nil {
		return domain.OrderBook{}, s.err
	}
	b := s.book
	b.TokenID = tokenID
	return b, nil
}

func book() domain.OrderBook {
	return domain.OrderBook{Asks: []domain.BookEntry{
		{Price: 0.55, Size: 3},
		{Price: 0.56, Size: 5},
		{Price: 0.60, Size: 100},
	}}
}

func TestExecutor_FillsWithinLimit(t *testing.T) {
	e := NewExecutor(stubBooks{book: book()})
	intent := domain.OrderIntent{ID: "i1", TokenID: "yes", Quantity: 5, LimitPrice: 0.56}

	fill, err := e.Submit(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, domain.FillFilled, fill.Status)
	assert.InDelta(t, 5, fill.Shares, 1e-9)
	// 3 × 0.55 + 2 × 0.56
	assert.InDelta(t, 2.77, fill.CostUSD, 1e-9)
	assert.InDelta(t, 0.554, fill.AvgPrice, 1e-9)
	assert.NotEmpty(t, fill.ExchangeOrder)

	got, found, err := e.Lookup(context.Background(), intent)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, fill, got)
}

func TestExecutor_KillsWhenDepthShort(t *testing.T) {
	e := NewExecutor(stubBooks{book: book()})

	fill, err := e.Submit(context.Background(), domain.OrderIntent{ID: "i2", TokenID: "yes", Quantity: 10, LimitPrice: 0.56})
	require.NoError(t, err)
	assert.Equal(t, domain.FillKilled, fill.Status)
	assert.Zero(t, fill.CostUSD)
	assert.Contains(t, fill.Reason, "insufficient depth")
}

func TestExecutor_BookErrorLeavesOutcomeUnknown(t *testing.T) {
	e := NewExecutor(stubBooks{err: errors.New("boom")})
	intent := domain.OrderIntent{ID: "i3", TokenID: "yes", Quantity: 1, LimitPrice: 0.5}

	_, err := e.Submit(context.Background(), intent)
	require.Error(t, err)

	fill, found, err := e.Lookup(context.Background(), intent)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.FillKilled, fill.Status)
}
