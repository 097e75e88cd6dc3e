package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

const (
	noaaProducts     = 3
	noaaTextRunes    = 2000
	espnTeams        = 5
	espnInjuries     = 3
	espnInjuriesPath = "/apis/site/v2/sports/football/nfl/injuries"
)

// weather fetches the latest NOAA Area Forecast Discussions.
func (e *Enricher) weather(ctx context.Context) (domain.Enrichment, error) {
	var list struct {
		Graph []struct {
			ID string `json:"@id"`
		} `json:"@graph"`
	}
	if err := e.getJSON(ctx, e.endpoints.NOAA+"/products/types/AFD", &list); err != nil {
		return domain.Enrichment{}, fmt.Errorf("noaa list: %w", err)
	}

	var parts []string
	for i, item := range list.Graph {
		if i >= noaaProducts {
			break
		}
		if item.ID == "" {
			continue
		}
		var product struct {
			ProductText string `json:"productText"`
		}
		if err := e.getJSON(ctx, item.ID, &product); err != nil {
			slog.Debug("enrich: noaa product failed", "url", item.ID, "err", err)
			continue
		}
		if text := truncateRunes(product.ProductText, noaaTextRunes); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return domain.Enrichment{}, errors.New("noaa: no forecast products")
	}
	return domain.Enrichment{
		Source: "noaa",
		Text:   "[NOAA FORECAST DATA]\n" + strings.Join(parts, "\n---\n") + "\n[END NOAA DATA]",
	}, nil
}

// sports fetches the ESPN NFL injury report.
func (e *Enricher) sports(ctx context.Context) (domain.Enrichment, error) {
	var report struct {
		Items []struct {
			Team struct {
				DisplayName string `json:"displayName"`
			} `json:"team"`
			Injuries []struct {
				Athlete struct {
					DisplayName string `json:"displayName"`
				} `json:"athlete"`
				Status string `json:"status"`
			} `json:"injuries"`
		} `json:"items"`
	}
	if err := e.getJSON(ctx, e.endpoints.ESPN+espnInjuriesPath, &report); err != nil {
		return domain.Enrichment{}, fmt.Errorf("espn: %w", err)
	}

	var lines []string
	for i, item := range report.Items {
		if i >= espnTeams {
			break
		}
		for j, inj := range item.Injuries {
			if j >= espnInjuries {
				break
			}
			lines = append(lines, fmt.Sprintf("  %s: %s - %s", item.Team.DisplayName, inj.Athlete.DisplayName, inj.Status))
		}
	}
	if len(lines) == 0 {
		return domain.Enrichment{}, errors.New("espn: empty injury report")
	}
	return domain.Enrichment{
		Source: "espn",
		Text:   "[INJURY REPORT]\n" + strings.Join(lines, "\n") + "\n[END INJURY REPORT]",
	}, nil
}

// crypto combines the Fear & Greed index, spot prices and mempool size. Any
// single source may fail; the result is an error only when all three do.
func (e *Enricher) crypto(ctx context.Context) (domain.Enrichment, error) {
	var lines []string
	var errs []error

	if line, err := e.fearGreed(ctx); err != nil {
		errs = append(errs, err)
	} else {
		lines = append(lines, line)
	}
	if prices, err := e.spotPrices(ctx); err != nil {
		errs = append(errs, err)
	} else {
		lines = append(lines, prices...)
	}
	if line, err := e.mempool(ctx); err != nil {
		errs = append(errs, err)
	} else {
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return domain.Enrichment{}, errors.Join(errs...)
	}
	if len(errs) > 0 {
		slog.Debug("enrich: partial crypto signals", "err", errors.Join(errs...))
	}
	return domain.Enrichment{
		Source: "crypto",
		Text:   "[CRYPTO SIGNALS]\n" + strings.Join(lines, "\n") + "\n[END CRYPTO SIGNALS]",
	}, nil
}

func (e *Enricher) fearGreed(ctx context.Context) (string, error) {
	var fg struct {
		Data []struct {
			Value          string `json:"value"`
			Classification string `json:"value_classification"`
		} `json:"data"`
	}
	if err := e.getJSON(ctx, e.endpoints.FearGreed+"/fng/?limit=1", &fg); err != nil {
		return "", fmt.Errorf("fear&greed: %w", err)
	}
	if len(fg.Data) == 0 {
		return "", errors.New("fear&greed: empty response")
	}
	return fmt.Sprintf("Fear & Greed Index: %s (%s)", fg.Data[0].Value, fg.Data[0].Classification), nil
}

func (e *Enricher) spotPrices(ctx context.Context) ([]string, error) {
	var prices map[string]struct {
		USD       float64 `json:"usd"`
		Change24h float64 `json:"usd_24h_change"`
	}
	url := e.endpoints.CoinGecko + "/api/v3/simple/price?ids=bitcoin,ethereum&vs_currencies=usd&include_24hr_change=true"
	if err := e.getJSON(ctx, url, &prices); err != nil {
		return nil, fmt.Errorf("coingecko: %w", err)
	}
	if len(prices) == 0 {
		return nil, errors.New("coingecko: empty response")
	}

	coins := make([]string, 0, len(prices))
	for coin := range prices {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	lines := make([]string, 0, len(coins))
	for _, coin := range coins {
		p := prices[coin]
		lines = append(lines, fmt.Sprintf("%s: $%s (%+.1f%% 24h)", strings.ToUpper(coin), humanize.Comma(int64(math.Round(p.USD))), p.Change24h))
	}
	return lines, nil
}

func (e *Enricher) mempool(ctx context.Context) (string, error) {
	var mp struct {
		Values []struct {
			Y float64 `json:"y"`
		} `json:"values"`
	}
	if err := e.getJSON(ctx, e.endpoints.Blockchain+"/mempool?timespan=1hours&format=json", &mp); err != nil {
		return "", fmt.Errorf("mempool: %w", err)
	}
	if len(mp.Values) == 0 {
		return "", errors.New("mempool: empty response")
	}
	return fmt.Sprintf("BTC mempool transactions: %s", humanize.Comma(int64(math.Round(mp.Values[len(mp.Values)-1].Y)))), nil
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
