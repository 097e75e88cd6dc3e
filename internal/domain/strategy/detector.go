package strategy

import (
	"math"
	"sort"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// DetectorConfig sets the thresholds a mispricing must clear.
type DetectorConfig struct {
	MinEdge       float64 // absolute probability gap, e.g. 0.08
	MinConfidence float64 // e.g. 0.4
}

// DefaultDetectorConfig returns the production thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{MinEdge: 0.08, MinConfidence: 0.4}
}

// Detector compares fair value against market-implied probability.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector creates a Detector.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Detect returns a signal iff |fair - market| >= MinEdge and confidence >= MinConfidence.
func (d *Detector) Detect(m domain.MarketSnapshot, est domain.Estimate) (domain.MispricingSignal, bool) {
	edge := est.FairProb - m.ImpliedProb
	if math.Abs(edge)+epsilon < d.cfg.MinEdge {
		return domain.MispricingSignal{}, false
	}
	if est.Confidence+epsilon < d.cfg.MinConfidence {
		return domain.MispricingSignal{}, false
	}
	if edge == 0 {
		return domain.MispricingSignal{}, false
	}

	dir := domain.BuyYes
	if edge < 0 {
		dir = domain.BuyNo
	}
	return domain.MispricingSignal{
		ConditionID: m.ConditionID,
		Edge:        edge,
		Direction:   dir,
		Confidence:  est.Confidence,
		FairProb:    est.FairProb,
		Market:      m,
		Rationale:   est.Rationale,
	}, true
}

// Rank sorts signals best first by |edge| × confidence. Ties keep input order.
func Rank(signals []domain.MispricingSignal) {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Score() > signals[j].Score()
	})
}
