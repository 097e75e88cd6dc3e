package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/alejandrodnm/polyagent/internal/domain"
	"github.com/alejandrodnm/polyagent/internal/ports"
)

const (
	gammaMarketsPath  = "/markets"
	gammaPageSize     = 100
	gammaConditionMax = 20 // máx condition_ids por request
)

// FetchCandidates lista mercados binarios activos ordenados por volumen 24h.
// Pagina con offset hasta agotar resultados o llegar a filter.MaxMarkets.
// Implementa ports.ListingSource.
func (c *Client) FetchCandidates(ctx context.Context, filter ports.ListingFilter) ([]domain.MarketSnapshot, error) {
	maxMarkets := filter.MaxMarkets
	if maxMarkets <= 0 {
		maxMarkets = gammaPageSize
	}

	var (
		all     []domain.MarketSnapshot
		seen    = make(map[string]bool)
		fetched int
		skipped int
	)

	for offset := 0; fetched < maxMarkets; offset += gammaPageSize {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(gammaPageSize))
		q.Set("offset", strconv.Itoa(offset))
		q.Set("active", "true")
		q.Set("closed", "false")
		q.Set("order", "volume24hr")
		q.Set("ascending", "false")

		var page []gammaMarket
		if err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaMarketsPath+"?"+q.Encode(), &page); err != nil {
			if len(all) > 0 && ctx.Err() == nil {
				// una página rota no invalida las anteriores
				slog.Warn("gamma: page failed, keeping partial listing", "offset", offset, "err", err)
				break
			}
			return nil, fmt.Errorf("gamma.FetchCandidates: offset %d: %w", offset, err)
		}
		fetched += len(page)

		now := c.now().UTC()
		for _, gm := range page {
			if gm.Closed || !gm.Active || seen[gm.ConditionID] {
				continue
			}
			m, err := mapGammaMarket(gm, now)
			if err != nil {
				skipped++
				slog.Debug("gamma: market skipped", "condition_id", gm.ConditionID, "err", err)
				continue
			}
			if m.Liquidity < filter.MinLiquidity {
				skipped++
				continue
			}
			seen[m.ConditionID] = true
			all = append(all, m)
		}

		if len(page) < gammaPageSize {
			break
		}
	}

	slog.Info("gamma: markets fetched", "fetched", fetched, "candidates", len(all), "skipped", skipped)
	return all, nil
}

// FetchResolutions consulta en batches qué condition_ids ya se resolvieron.
// Implementa ports.ResolutionSource.
func (c *Client) FetchResolutions(ctx context.Context, conditionIDs []string) (map[string]domain.Resolution, error) {
	result := make(map[string]domain.Resolution)
	for i, batch := range splitBatches(conditionIDs, gammaConditionMax) {
		u := fmt.Sprintf("%s%s?condition_ids=%s&limit=%d",
			c.gammaBase,
			gammaMarketsPath,
			strings.Join(batch, ","),
			gammaConditionMax,
		)

		var resp []gammaMarket
		if err := c.get(ctx, c.gammaLimiter, u, &resp); err != nil {
			return result, fmt.Errorf("gamma.FetchResolutions: batch %d: %w", i, err)
		}

		now := c.now().UTC()
		for _, gm := range resp {
			if res, ok := resolutionFromGamma(gm, now); ok {
				result[gm.ConditionID] = res
			}
		}
	}
	if len(result) > 0 {
		slog.Info("gamma: resolutions found", "checked", len(conditionIDs), "resolved", len(result))
	}
	return result, nil
}

// splitBatches divide ids en slices de tamaño máximo size.
func splitBatches(ids []string, size int) [][]string {
	if size <= 0 {
		size = gammaConditionMax
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[i:end])
	}
	return batches
}
