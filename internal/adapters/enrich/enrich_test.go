package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

func newTestEnricher(srv *httptest.Server) *Enricher {
	return New(Endpoints{
		NOAA:       srv.URL,
		ESPN:       srv.URL,
		FearGreed:  srv.URL,
		CoinGecko:  srv.URL,
		Blockchain: srv.URL,
	})
}

func market(cat domain.Category) domain.MarketSnapshot {
	return domain.MarketSnapshot{ConditionID: "0x1", Question: "Q", Category: cat}
}

func TestEnrich_Weather(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/products/types/AFD":
			w.Write([]byte(`{"@graph":[{"@id":"` + srv.URL + `/products/a"},{"@id":"` + srv.URL + `/products/b"},{"@id":"` + srv.URL + `/products/c"},{"@id":"` + srv.URL + `/products/d"}]}`))
		case "/products/a", "/products/b", "/products/c":
			w.Write([]byte(`{"productText":"forecast ` + strings.TrimPrefix(r.URL.Path, "/products/") + `"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	en, err := newTestEnricher(srv).Enrich(context.Background(), market(domain.CategoryWeather))
	require.NoError(t, err)
	assert.Equal(t, "noaa", en.Source)
	assert.Equal(t, "[NOAA FORECAST DATA]\nforecast a\n---\nforecast b\n---\nforecast c\n[END NOAA DATA]", en.Text)
}

func TestEnrich_Sports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, espnInjuriesPath, r.URL.Path)
		w.Write([]byte(`{"items":[
			{"team":{"displayName":"Bears"},"injuries":[
				{"athlete":{"displayName":"A One"},"status":"Out"},
				{"athlete":{"displayName":"B Two"},"status":"Questionable"}]}
		]}`))
	}))
	defer srv.Close()

	en, err := newTestEnricher(srv).Enrich(context.Background(), market(domain.CategorySports))
	require.NoError(t, err)
	assert.Equal(t, "[INJURY REPORT]\n  Bears: A One - Out\n  Bears: B Two - Questionable\n[END INJURY REPORT]", en.Text)
}

func TestEnrich_CryptoPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fng/":
			w.Write([]byte(`{"data":[{"value":"23","value_classification":"Extreme Fear"}]}`))
		case "/api/v3/simple/price":
			w.Write([]byte(`{"ethereum":{"usd":3150.4,"usd_24h_change":-1.26},"bitcoin":{"usd":64250,"usd_24h_change":2.04}}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	en, err := newTestEnricher(srv).Enrich(context.Background(), market(domain.CategoryCrypto))
	require.NoError(t, err)
	assert.Equal(t, "crypto", en.Source)
	assert.Contains(t, en.Text, "Fear & Greed Index: 23 (Extreme Fear)")
	assert.Contains(t, en.Text, "BITCOIN: $64,250 (+2.0% 24h)")
	assert.Contains(t, en.Text, "ETHEREUM: $3,150 (-1.3% 24h)")
	assert.NotContains(t, en.Text, "mempool")
	assert.True(t, strings.HasPrefix(en.Text, "[CRYPTO SIGNALS]\n"))
}

func TestEnrich_AllSourcesFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestEnricher(srv).Enrich(context.Background(), market(domain.CategoryCrypto))
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestEnrich_NoSourceForCategory(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	en, err := newTestEnricher(srv).Enrich(context.Background(), market(domain.CategoryPolitics))
	require.NoError(t, err)
	assert.True(t, en.IsEmpty())
	assert.Zero(t, calls.Load())
}

func TestEnrich_CachesPerCategory(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"items":[{"team":{"displayName":"Bears"},"injuries":[{"athlete":{"displayName":"A"},"status":"Out"}]}]}`))
	}))
	defer srv.Close()

	e := newTestEnricher(srv)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	_, err := e.Enrich(context.Background(), market(domain.CategorySports))
	require.NoError(t, err)
	_, err = e.Enrich(context.Background(), market(domain.CategorySports))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(defaultCacheTTL + time.Second)
	_, err = e.Enrich(context.Background(), market(domain.CategorySports))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "ab", truncateRunes("  abc ", 2))
	assert.Equal(t, "ñé", truncateRunes("ñéx", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 10))
}

func TestEnrich_ConcurrentMissesShareOneFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.Write([]byte(`{"items":[{"team":{"displayName":"Bears"},"injuries":[{"athlete":{"displayName":"A"},"status":"Out"}]}]}`))
	}))
	defer srv.Close()

	e := newTestEnricher(srv)
	var wg sync.WaitGroup
	texts := make([]string, 4)
	for i := range texts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			en, err := e.Enrich(context.Background(), market(domain.CategorySports))
			assert.NoError(t, err)
			texts[i] = en.Text
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, text := range texts {
		assert.Contains(t, text, "Bears: A - Out")
	}
}
