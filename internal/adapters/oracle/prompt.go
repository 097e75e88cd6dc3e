package oracle

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

const systemPrompt = `You are an expert prediction market analyst. Your job is to estimate the TRUE probability of event outcomes, independent of what the market currently thinks.

You will be given:
1. A market question and description
2. The current market price (YES probability)
3. External data (weather forecasts, injury reports, crypto metrics, etc.)

Your response must be valid JSON with exactly these fields:
{
    "fair_yes_probability": <float 0.0 to 1.0>,
    "confidence": <float 0.0 to 1.0>,
    "reasoning": "<brief explanation of your estimate>"
}

Guidelines:
- Be calibrated. If you're unsure, your probability should reflect that uncertainty.
- Use the external data when available; it may contain information the market hasn't priced in yet.
- Consider base rates, historical precedents, and logical reasoning.
- A confidence of 0.5 means you're very uncertain about your estimate.
- A confidence of 0.9+ means you have strong evidence.
- Be especially careful with politics: markets are often efficient there.
- For weather: NOAA data is gold. If NOAA says 80% chance of rain, trust it.
- For sports: injury reports can create 10-20% mispricings if the market is slow to react.
- For crypto: on-chain metrics and sentiment can signal short-term moves.

Return ONLY the JSON object, no other text.`

// userPrompt renders the market snapshot and its enrichment.
func userPrompt(m domain.MarketSnapshot) string {
	yes := m.ImpliedProb
	no := 1 - yes
	endDate := "unknown"
	if !m.EndDate.IsZero() {
		endDate = m.EndDate.Format("2006-01-02 15:04 MST")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Market Question: %s\n\n", m.Question)
	fmt.Fprintf(&b, "Description: %s\n\n", m.Description)
	fmt.Fprintf(&b, "Resolution Source: %s\n\n", m.ResolutionSource)
	fmt.Fprintf(&b, "Current Market Price (YES): %.4f (%.1f%%)\n", yes, yes*100)
	fmt.Fprintf(&b, "Current Market Price (NO): %.4f (%.1f%%)\n\n", no, no*100)
	fmt.Fprintf(&b, "24h Volume: $%s\n", humanize.Comma(int64(math.Round(m.Volume24h))))
	fmt.Fprintf(&b, "Liquidity: $%s\n", humanize.Comma(int64(math.Round(m.Liquidity))))
	fmt.Fprintf(&b, "End Date: %s\n", endDate)
	fmt.Fprintf(&b, "Category: %s\n\n", m.Category)
	if !m.Enrichment.IsEmpty() {
		b.WriteString(m.Enrichment.Text)
		b.WriteString("\n\n")
	}
	b.WriteString("What is the TRUE probability of YES?")
	return b.String()
}

// reply is the JSON object the model must return.
type reply struct {
	FairYesProbability *float64 `json:"fair_yes_probability"`
	Confidence         *float64 `json:"confidence"`
	Reasoning          string   `json:"reasoning"`
}

// parseReply extracts probability, confidence and reasoning from the model's
// text. Markdown code fences and leading prose around the object are tolerated.
func parseReply(text string) (fair, confidence float64, reasoning string, err error) {
	body := stripFences(strings.TrimSpace(text))
	if i, j := strings.Index(body, "{"), strings.LastIndex(body, "}"); i >= 0 && j > i {
		body = body[i : j+1]
	}

	var r reply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return 0, 0, "", fmt.Errorf("oracle: unparseable reply: %v: %w", err, domain.ErrValidation)
	}
	if r.FairYesProbability == nil || r.Confidence == nil {
		return 0, 0, "", fmt.Errorf("oracle: reply missing fields: %w", domain.ErrValidation)
	}
	fair, confidence = *r.FairYesProbability, *r.Confidence
	if math.IsNaN(fair) || math.IsNaN(confidence) {
		return 0, 0, "", fmt.Errorf("oracle: NaN in reply: %w", domain.ErrValidation)
	}
	return fair, confidence, strings.TrimSpace(r.Reasoning), nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
