package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category clasifica el mercado según el tipo de dato externo que lo puede enriquecer.
type Category string

const (
	CategoryWeather  Category = "weather"
	CategorySports   Category = "sports"
	CategoryCrypto   Category = "crypto"
	CategoryPolitics Category = "politics"
	CategoryOther    Category = "other"
)

// categoryKeywords se evalúa en orden: la primera categoría con match gana.
var categoryKeywords = []struct {
	cat      Category
	keywords []string
}{
	{CategoryWeather, []string{"weather", "temperature", "rain", "hurricane", "noaa", "forecast"}},
	{CategorySports, []string{"nfl", "nba", "mlb", "nhl", "soccer", "sport", "game", "match", "ufc", "boxing"}},
	{CategoryCrypto, []string{"bitcoin", "ethereum", "crypto", "btc", "eth", "token", "defi", "solana"}},
	{CategoryPolitics, []string{"election", "president", "congress", "senate", "vote", "poll", "governor"}},
}

// InferCategory deduce la categoría a partir de la pregunta y los tags del mercado.
func InferCategory(question string, tags []string) Category {
	text := strings.ToLower(question + " " + strings.Join(tags, " "))
	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(text, kw) {
				return ck.cat
			}
		}
	}
	return CategoryOther
}

// Token es uno de los dos lados del mercado (YES/NO).
type Token struct {
	TokenID string
	Outcome string  // "Yes" | "No"
	Price   float64 // precio de referencia del listing
}

// Enrichment es el contexto externo (forecast, lesiones, sentimiento) que acompaña
// al snapshot hasta el oracle. Vacío si el enriquecimiento falló o no aplica.
type Enrichment struct {
	Source string
	Text   string
}

// IsEmpty devuelve true si no hay contexto externo.
func (e Enrichment) IsEmpty() bool {
	return strings.TrimSpace(e.Text) == ""
}

// MarketSnapshot es la foto inmutable de un mercado binario tomada en un ciclo.
type MarketSnapshot struct {
	ConditionID      string
	Question         string
	Slug             string
	Description      string
	ResolutionSource string
	Category         Category
	Yes              Token
	No               Token
	// ImpliedProb es la probabilidad YES implícita del mercado (mid del book o outcome price).
	ImpliedProb float64
	Liquidity   float64
	Volume24h   float64
	EndDate     time.Time
	NegRisk     bool
	FetchedAt   time.Time
	Enrichment  Enrichment
}

// Validate comprueba que la probabilidad esté en [0,1] y la liquidez no sea negativa.
func (m MarketSnapshot) Validate() error {
	if m.ConditionID == "" {
		return fmt.Errorf("snapshot: empty condition id: %w", ErrValidation)
	}
	if m.ImpliedProb < 0 || m.ImpliedProb > 1 {
		return fmt.Errorf("snapshot %s: implied probability %.4f out of [0,1]: %w", m.ConditionID, m.ImpliedProb, ErrValidation)
	}
	if m.Liquidity < 0 {
		return fmt.Errorf("snapshot %s: negative liquidity %.2f: %w", m.ConditionID, m.Liquidity, ErrValidation)
	}
	return nil
}

// PriceFor devuelve el precio de entrada del lado elegido.
// Para BUY_NO usa el precio NO del listing, o 1 - YES si no viene informado.
func (m MarketSnapshot) PriceFor(d Direction) float64 {
	if d == BuyYes {
		if m.Yes.Price > 0 {
			return m.Yes.Price
		}
		return m.ImpliedProb
	}
	if m.No.Price > 0 {
		return m.No.Price
	}
	yes := m.Yes.Price
	if yes <= 0 {
		yes = m.ImpliedProb
	}
	return 1 - yes
}

// TokenFor devuelve el token que se compra para la dirección dada.
func (m MarketSnapshot) TokenFor(d Direction) Token {
	if d == BuyYes {
		return m.Yes
	}
	return m.No
}

// HoursToResolution devuelve las horas hasta que el mercado se resuelve.
// Devuelve 0 si EndDate no está definido.
func (m MarketSnapshot) HoursToResolution() float64 {
	if m.EndDate.IsZero() {
		return 0
	}
	h := time.Until(m.EndDate).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// TruncateQuestion devuelve la pregunta del mercado truncada a maxLen caracteres.
// Si la pregunta está vacía usa los primeros caracteres del conditionID como fallback.
func TruncateQuestion(question, conditionID string, maxLen int) string {
	q := question
	if q == "" {
		if len(conditionID) > 20 {
			q = conditionID[:20] + "..."
		} else {
			q = conditionID
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}
