package polymarket

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

const (
	maxDescriptionLen = 1000
	// tolerancia para reconocer precios de resolución 0, 0.5 y 1
	resolutionEpsilon = 1e-6
)

// mapGammaMarket convierte un gammaMarket a domain.MarketSnapshot.
// Devuelve error si el mercado no es binario o sus precios no tienen sentido.
func mapGammaMarket(gm gammaMarket, fetchedAt time.Time) (domain.MarketSnapshot, error) {
	tokenIDs, err := parseStringArray(gm.ClobTokenIDs)
	if err != nil || len(tokenIDs) != 2 {
		return domain.MarketSnapshot{}, fmt.Errorf("market %s: bad clobTokenIds %q", gm.ConditionID, gm.ClobTokenIDs)
	}
	prices, err := parseFloatArray(gm.OutcomePrices)
	if err != nil || len(prices) != 2 {
		return domain.MarketSnapshot{}, fmt.Errorf("market %s: bad outcomePrices %q", gm.ConditionID, gm.OutcomePrices)
	}
	yes, no := prices[0], prices[1]
	if yes <= 0 || no <= 0 || (yes >= 1 && no >= 1) {
		return domain.MarketSnapshot{}, fmt.Errorf("market %s: degenerate prices yes=%.4f no=%.4f", gm.ConditionID, yes, no)
	}

	outcomes, _ := parseStringArray(gm.Outcomes)
	yesOutcome, noOutcome := "Yes", "No"
	if len(outcomes) == 2 {
		yesOutcome, noOutcome = outcomes[0], outcomes[1]
	}

	// El mid del book es más fresco que outcomePrices si hay ambos lados.
	implied := yes
	bid, ask := float64(gm.BestBid), float64(gm.BestAsk)
	if bid > 0 && ask > 0 && ask >= bid {
		implied = (bid + ask) / 2
	}

	liquidity := float64(gm.LiquidityNum)
	if liquidity == 0 {
		liquidity = float64(gm.Liquidity)
	}

	tags := make([]string, 0, len(gm.Tags))
	for _, t := range gm.Tags {
		if t.Label != "" {
			tags = append(tags, t.Label)
		}
	}

	endDate := parseDate(gm.EndDate)
	if endDate.IsZero() {
		endDate = parseDate(gm.EndDateISO)
	}

	m := domain.MarketSnapshot{
		ConditionID:      gm.ConditionID,
		Question:         gm.Question,
		Slug:             gm.Slug,
		Description:      truncate(gm.Description, maxDescriptionLen),
		ResolutionSource: gm.ResolutionSource,
		Category:         domain.InferCategory(gm.Question, tags),
		Yes:              domain.Token{TokenID: tokenIDs[0], Outcome: yesOutcome, Price: yes},
		No:               domain.Token{TokenID: tokenIDs[1], Outcome: noOutcome, Price: no},
		ImpliedProb:      implied,
		Liquidity:        liquidity,
		Volume24h:        float64(gm.Volume24h),
		EndDate:          endDate,
		NegRisk:          gm.NegRisk,
		FetchedAt:        fetchedAt,
	}
	if err := m.Validate(); err != nil {
		return domain.MarketSnapshot{}, err
	}
	return m, nil
}

// resolutionFromGamma devuelve la resolución de un mercado cerrado.
// ok=false si el mercado sigue abierto o el pago aún no es definitivo.
func resolutionFromGamma(gm gammaMarket, now time.Time) (domain.Resolution, bool) {
	if !gm.Closed {
		return domain.Resolution{}, false
	}
	if gm.UMAStatus != "" && !strings.EqualFold(gm.UMAStatus, "resolved") {
		return domain.Resolution{}, false
	}
	prices, err := parseFloatArray(gm.OutcomePrices)
	if err != nil || len(prices) != 2 {
		return domain.Resolution{}, false
	}
	yes := prices[0]
	final := false
	for _, p := range []float64{0, 0.5, 1} {
		if math.Abs(yes-p) < resolutionEpsilon {
			yes = p
			final = true
			break
		}
	}
	if !final {
		return domain.Resolution{}, false
	}
	resolvedAt := parseDate(gm.ClosedTime)
	if resolvedAt.IsZero() {
		resolvedAt = now
	}
	return domain.Resolution{ConditionID: gm.ConditionID, YesPayout: yes, ResolvedAt: resolvedAt}, true
}

// mapOrderBooks convierte la respuesta batch de /books a un map tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
	}
	return result
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}

// fillFromTrades agrega los trades BUY de un token posteriores a since.
func fillFromTrades(intentID, tokenID string, trades []rawDataTrade, since time.Time) (domain.Fill, bool) {
	var shares, cost float64
	var last time.Time
	var tx string
	for _, t := range trades {
		if t.Asset != tokenID || !strings.EqualFold(t.Side, "BUY") {
			continue
		}
		ts := parseTradeTimestamp(t.Timestamp)
		if ts.Before(since) {
			continue
		}
		shares += float64(t.Size)
		cost += float64(t.Size) * float64(t.Price)
		if ts.After(last) {
			last = ts
			tx = t.TransactionHash
		}
	}
	if shares <= 0 {
		return domain.Fill{}, false
	}
	return domain.Fill{
		IntentID:      intentID,
		Status:        domain.FillFilled,
		Shares:        shares,
		AvgPrice:      cost / shares,
		CostUSD:       cost,
		ExchangeOrder: tx,
		FilledAt:      last.UTC(),
	}, true
}

// parseStringArray decodifica un array JSON embebido en un string: `["a","b"]`.
func parseStringArray(s string) ([]string, error) {
	if s == "" {
		return nil, fmt.Errorf("empty")
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseFloatArray decodifica `["0.55","0.45"]` o `[0.55,0.45]`.
func parseFloatArray(s string) ([]float64, error) {
	if s == "" {
		return nil, fmt.Errorf("empty")
	}
	var raw []flexFloat
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

// parseDate prueba los formatos de fecha que usa Polymarket.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05-07",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseTradeTimestamp(n json.Number) time.Time {
	s := n.String()
	// unix en segundos o milisegundos
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.UnixMilli(sec).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
	}
	return parseDate(s)
}

// truncate corta s a n runas sin partir caracteres multibyte.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
