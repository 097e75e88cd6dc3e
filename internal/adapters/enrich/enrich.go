// Package enrich attaches public external data to a market before it is sent
// to the oracle: NOAA forecast discussions for weather, ESPN injury reports
// for sports, sentiment and prices for crypto.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

const (
	defaultUserAgent = "polyagent/1.0"
	defaultCacheTTL  = 5 * time.Minute
	maxBodyBytes     = 4 << 20
)

// Endpoints holds the base URLs of each source. Empty fields use production.
type Endpoints struct {
	NOAA       string
	ESPN       string
	FearGreed  string
	CoinGecko  string
	Blockchain string
}

func (e Endpoints) withDefaults() Endpoints {
	if e.NOAA == "" {
		e.NOAA = "https://api.weather.gov"
	}
	if e.ESPN == "" {
		e.ESPN = "https://site.api.espn.com"
	}
	if e.FearGreed == "" {
		e.FearGreed = "https://api.alternative.me"
	}
	if e.CoinGecko == "" {
		e.CoinGecko = "https://api.coingecko.com"
	}
	if e.Blockchain == "" {
		e.Blockchain = "https://api.blockchain.info"
	}
	return e
}

// Enricher implements ports.Enricher. The sources are not market specific,
// so each category's text is cached for a short TTL and shared by every
// market of that category in a cycle.
type Enricher struct {
	http      *http.Client
	limiter   *rate.Limiter
	endpoints Endpoints
	userAgent string
	ttl       time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[domain.Category]cachedText
	group singleflight.Group
}

type cachedText struct {
	enrichment domain.Enrichment
	at         time.Time
}

// New creates an Enricher.
func New(endpoints Endpoints) *Enricher {
	return &Enricher{
		http:      &http.Client{Timeout: 15 * time.Second},
		limiter:   rate.NewLimiter(5, 5),
		endpoints: endpoints.withDefaults(),
		userAgent: defaultUserAgent,
		ttl:       defaultCacheTTL,
		now:       time.Now,
		cache:     make(map[domain.Category]cachedText),
	}
}

// Enrich returns the external context for m's category. Categories without a
// source return an empty Enrichment and no error.
func (e *Enricher) Enrich(ctx context.Context, m domain.MarketSnapshot) (domain.Enrichment, error) {
	var fetch func(context.Context) (domain.Enrichment, error)
	switch m.Category {
	case domain.CategoryWeather:
		fetch = e.weather
	case domain.CategorySports:
		fetch = e.sports
	case domain.CategoryCrypto:
		fetch = e.crypto
	default:
		return domain.Enrichment{}, nil
	}

	if en, ok := e.cached(m.Category); ok {
		return en, nil
	}

	// concurrent misses for one category share a single fetch
	v, err, _ := e.group.Do(string(m.Category), func() (any, error) {
		if en, ok := e.cached(m.Category); ok {
			return en, nil
		}
		en, err := fetch(ctx)
		if err != nil {
			return domain.Enrichment{}, err
		}
		e.mu.Lock()
		e.cache[m.Category] = cachedText{enrichment: en, at: e.now()}
		e.mu.Unlock()
		slog.Debug("enrich: fetched", "category", m.Category, "source", en.Source, "bytes", len(en.Text))
		return en, nil
	})
	if err != nil {
		return domain.Enrichment{}, fmt.Errorf("enrich.Enrich %s: %w", m.Category, err)
	}
	return v.(domain.Enrichment), nil
}

func (e *Enricher) cached(c domain.Category) (domain.Enrichment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	hit, ok := e.cache[c]
	if !ok || e.now().Sub(hit.at) >= e.ttl {
		return domain.Enrichment{}, false
	}
	return hit.enrichment, true
}

// getJSON performs a rate-limited GET and decodes the JSON body into out.
func (e *Enricher) getJSON(ctx context.Context, url string, out any) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %v: %w", url, err, domain.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("GET %s: status %d: %w", url, resp.StatusCode, domain.ErrTransient)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", url, err)
	}
	return nil
}
