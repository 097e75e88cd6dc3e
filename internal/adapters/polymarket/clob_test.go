package polymarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const booksBatch = `[
	{
		"asset_id": "token_yes_001",
		"market": "0xabc123",
		"bids": [{"price": "0.68", "size": "50"}, {"price": "0.70", "size": "120"}],
		"asks": [{"price": "0.74", "size": "80"}, {"price": "0.72", "size": "40"}, {"price": "0", "size": "10"}]
	}
]`

func TestFetchOrderBook_SortsLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/books", r.URL.Path)

		var body []map[string]string
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) && assert.Len(t, body, 1) {
			assert.Equal(t, "token_yes_001", body[0]["token_id"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(booksBatch))
	}))
	defer srv.Close()

	book, err := newTestClient(srv).FetchOrderBook(context.Background(), "token_yes_001")
	require.NoError(t, err)

	assert.Equal(t, "token_yes_001", book.TokenID)
	assert.InDelta(t, 0.70, book.BestBid(), 1e-9)
	assert.InDelta(t, 0.72, book.BestAsk(), 1e-9)
	require.Len(t, book.Asks, 2, "zero-price level dropped")
	assert.Less(t, book.Asks[0].Price, book.Asks[1].Price)
	assert.Greater(t, book.Bids[0].Price, book.Bids[1].Price)
}

func TestFetchOrderBook_MissingBookIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	book, err := newTestClient(srv).FetchOrderBook(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", book.TokenID)
	assert.Empty(t, book.Asks)
}

func TestFetchOrderBook_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid token id"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchOrderBook(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "invalid token id")
}
