package engine

import (
	"math"
	"sort"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

const (
	minTradablePrice = 0.02
	maxTradablePrice = 0.98
)

var categoryBonus = map[domain.Category]float64{
	domain.CategoryWeather: 4,
	domain.CategorySports:  3,
	domain.CategoryCrypto:  2,
}

// prefilter picks the markets worth an oracle call: tradable prices, held or
// pending markets excluded, ranked by volume, price extremity and whether an
// enrichment source exists. At most limit are returned.
func prefilter(markets []domain.MarketSnapshot, held func(string) bool, limit int) []domain.MarketSnapshot {
	type scored struct {
		m     domain.MarketSnapshot
		score float64
	}
	ranked := make([]scored, 0, len(markets))
	for _, m := range markets {
		yes := m.PriceFor(domain.BuyYes)
		if yes < minTradablePrice || yes > maxTradablePrice {
			continue
		}
		if held != nil && held(m.ConditionID) {
			continue
		}
		ranked = append(ranked, scored{m: m, score: prefilterScore(m)})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]domain.MarketSnapshot, len(ranked))
	for i, r := range ranked {
		out[i] = r.m
	}
	return out
}

func prefilterScore(m domain.MarketSnapshot) float64 {
	score := math.Min(m.Volume24h/10000, 5)
	yes := m.PriceFor(domain.BuyYes)
	if yes < 0.15 || yes > 0.85 {
		score += 3
	}
	if yes < 0.05 || yes > 0.95 {
		score += 5
	}
	return score + categoryBonus[m.Category]
}
