// Package oracle estimates fair probabilities with the Anthropic Messages API.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// Config configures the Claude oracle.
type Config struct {
	APIKey           string
	Model            string
	BaseURL          string // empty → SDK default
	MaxTokens        int64
	InputUSDPerMTok  float64
	OutputUSDPerMTok float64
}

// DefaultConfig returns Sonnet pricing: $3/M input, $15/M output tokens.
func DefaultConfig() Config {
	return Config{
		Model:            "claude-sonnet-4-20250514",
		MaxTokens:        500,
		InputUSDPerMTok:  3.00,
		OutputUSDPerMTok: 15.00,
	}
}

// Claude implements ports.Oracle.
type Claude struct {
	client anthropic.Client
	cfg    Config
	now    func() time.Time
}

// New creates the oracle. Retries are left to the caller's retry policy.
func New(cfg Config) (*Claude, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("oracle: missing API key")
	}
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Claude{client: anthropic.NewClient(opts...), cfg: cfg, now: time.Now}, nil
}

// Estimate asks the model for the fair probability of YES. When the call
// succeeded but the reply is unusable, the returned Estimate still carries
// the token usage and cost.
func (c *Claude) Estimate(ctx context.Context, m domain.MarketSnapshot) (domain.Estimate, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(m))),
		},
	})
	if err != nil {
		return domain.Estimate{}, fmt.Errorf("oracle.Estimate %s: %w", m.ConditionID, classify(err))
	}

	est := domain.Estimate{
		ConditionID:  m.ConditionID,
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
		Model:        string(msg.Model),
		EstimatedAt:  c.now().UTC(),
	}
	est.CostUSD = c.cost(est.InputTokens, est.OutputTokens)

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	fair, confidence, reasoning, err := parseReply(text.String())
	if err != nil {
		return est, fmt.Errorf("oracle.Estimate %s: %w", m.ConditionID, err)
	}
	est.FairProb = fair
	est.Confidence = confidence
	est.Rationale = reasoning
	if err := est.Validate(); err != nil {
		return est, fmt.Errorf("oracle.Estimate: %w", err)
	}

	slog.Debug("oracle: estimate",
		"condition_id", m.ConditionID,
		"market", fmt.Sprintf("%.2f", m.ImpliedProb),
		"fair", fmt.Sprintf("%.2f", fair),
		"confidence", fmt.Sprintf("%.2f", confidence),
		"cost", fmt.Sprintf("$%.4f", est.CostUSD),
	)
	return est, nil
}

func (c *Claude) cost(in, out int64) float64 {
	return float64(in)/1e6*c.cfg.InputUSDPerMTok + float64(out)/1e6*c.cfg.OutputUSDPerMTok
}

// classify marks rate limits, overload, 5xx and network failures as transient.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %w", domain.ErrTransient, err)
		default:
			return err
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrTransient, err)
}
