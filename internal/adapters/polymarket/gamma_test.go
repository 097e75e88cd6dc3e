package polymarket_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyagent/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyagent/internal/domain"
	"github.com/alejandrodnm/polyagent/internal/ports"
)

const gammaPage = `[
	{
		"conditionId": "0xweather",
		"question": "Will NYC high temperature exceed 80°F on July 4?",
		"slug": "nyc-temp-july-4",
		"description": "Resolves YES if the NWS reports a high above 80°F.",
		"resolutionSource": "https://www.weather.gov",
		"endDate": "2026-07-04T23:59:00Z",
		"outcomes": "[\"Yes\", \"No\"]",
		"outcomePrices": "[\"0.55\", \"0.45\"]",
		"clobTokenIds": "[\"111\", \"222\"]",
		"volume24hr": 15234.5,
		"liquidity": "8000.5",
		"liquidityNum": 8000.5,
		"bestBid": 0.54,
		"bestAsk": 0.56,
		"negRisk": false,
		"active": true,
		"closed": false,
		"tags": [{"label": "Weather"}]
	},
	{
		"conditionId": "0xdegenerate",
		"question": "Broken market",
		"outcomePrices": "[\"0\", \"1\"]",
		"clobTokenIds": "[\"333\", \"444\"]",
		"liquidityNum": 9000,
		"active": true,
		"closed": false
	},
	{
		"conditionId": "0xthin",
		"question": "Will the Chiefs win the Super Bowl?",
		"outcomePrices": "[\"0.20\", \"0.80\"]",
		"clobTokenIds": "[\"555\", \"666\"]",
		"liquidity": "120",
		"active": true,
		"closed": false
	},
	{
		"conditionId": "0xnomid",
		"question": "Will Bitcoin close above $150k this year?",
		"outcomePrices": "[0.12, 0.88]",
		"clobTokenIds": "[\"777\", \"888\"]",
		"liquidity": "2500",
		"volume24hr": "900",
		"negRisk": true,
		"active": true,
		"closed": false
	}
]`

func newTestClient(srv *httptest.Server) *polymarket.Client {
	return polymarket.NewClient(srv.URL, srv.URL, srv.URL)
}

func TestFetchCandidates_MapsAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		assert.Equal(t, "false", r.URL.Query().Get("closed"))
		assert.Equal(t, "volume24hr", r.URL.Query().Get("order"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(gammaPage))
	}))
	defer srv.Close()

	markets, err := newTestClient(srv).FetchCandidates(context.Background(), ports.ListingFilter{MaxMarkets: 1000, MinLiquidity: 500})
	require.NoError(t, err)
	require.Len(t, markets, 2, "degenerate and thin markets are dropped")

	m := markets[0]
	assert.Equal(t, "0xweather", m.ConditionID)
	assert.Equal(t, domain.CategoryWeather, m.Category)
	assert.Equal(t, "111", m.Yes.TokenID)
	assert.Equal(t, "222", m.No.TokenID)
	assert.InDelta(t, 0.55, m.ImpliedProb, 1e-9, "mid of bestBid/bestAsk")
	assert.InDelta(t, 0.45, m.No.Price, 1e-9)
	assert.InDelta(t, 8000.5, m.Liquidity, 1e-9)
	assert.InDelta(t, 15234.5, m.Volume24h, 1e-9)
	assert.Equal(t, 2026, m.EndDate.Year())
	assert.Equal(t, "https://www.weather.gov", m.ResolutionSource)

	c := markets[1]
	assert.Equal(t, domain.CategoryCrypto, c.Category)
	assert.InDelta(t, 0.12, c.ImpliedProb, 1e-9, "falls back to outcome price")
	assert.InDelta(t, 2500, c.Liquidity, 1e-9)
	assert.True(t, c.NegRisk)
}

func TestFetchCandidates_Paginates(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		n := 100
		if r.URL.Query().Get("offset") == "100" {
			n = 3
		}
		offset := r.URL.Query().Get("offset")
		page := make([]map[string]any, n)
		for i := range page {
			page[i] = map[string]any{
				"conditionId":   fmt.Sprintf("0x%s-%d", offset, i),
				"question":      "Generic question",
				"outcomePrices": `["0.40","0.60"]`,
				"clobTokenIds":  fmt.Sprintf(`["y%s%d","n%s%d"]`, offset, i, offset, i),
				"liquidityNum":  1000,
				"active":        true,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	markets, err := newTestClient(srv).FetchCandidates(context.Background(), ports.ListingFilter{MaxMarkets: 1000})
	require.NoError(t, err)
	assert.Len(t, markets, 103)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchCandidates_StopsAtMaxMarkets(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		page := make([]map[string]any, 100)
		for i := range page {
			page[i] = map[string]any{
				"conditionId":   fmt.Sprintf("0x%s-%d", r.URL.Query().Get("offset"), i),
				"outcomePrices": `["0.40","0.60"]`,
				"clobTokenIds":  `["a","b"]`,
				"active":        true,
			}
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchCandidates(context.Background(), ports.ListingFilter{MaxMarkets: 200})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchCandidates_ServerErrorIsTransient(t *testing.T) {
	if testing.Short() {
		t.Skip("retries with backoff")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchCandidates(context.Background(), ports.ListingFilter{MaxMarkets: 100})
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestFetchResolutions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("condition_ids"), "0xwon")
		w.Write([]byte(`[
			{"conditionId": "0xwon",  "closed": true,  "umaResolutionStatus": "resolved", "outcomePrices": "[\"1\", \"0\"]", "closedTime": "2026-03-01 12:00:00+00"},
			{"conditionId": "0xlost", "closed": true,  "outcomePrices": "[\"0\", \"1\"]"},
			{"conditionId": "0xopen", "closed": false, "outcomePrices": "[\"0.7\", \"0.3\"]"},
			{"conditionId": "0xdispute", "closed": true, "umaResolutionStatus": "disputed", "outcomePrices": "[\"0.9\", \"0.1\"]"}
		]`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv).FetchResolutions(context.Background(), []string{"0xwon", "0xlost", "0xopen", "0xdispute"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 1.0, res["0xwon"].YesPayout)
	assert.Equal(t, 2026, res["0xwon"].ResolvedAt.Year())
	assert.Equal(t, 0.0, res["0xlost"].YesPayout)
}
