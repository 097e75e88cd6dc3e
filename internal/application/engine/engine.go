// Package engine runs the trading cycle: FETCH → ENRICH → ESTIMATE → DETECT →
// SIZE → GATE → EXECUTE → SETTLE, then sleeps or halts when the ledger dies.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyagent/internal/application/ledger"
	"github.com/alejandrodnm/polyagent/internal/domain"
	"github.com/alejandrodnm/polyagent/internal/domain/strategy"
	"github.com/alejandrodnm/polyagent/internal/ports"
)

// Timeouts bound each external call.
type Timeouts struct {
	Scan   time.Duration
	Enrich time.Duration
	Oracle time.Duration
	Book   time.Duration
	Submit time.Duration
}

// Config holds the cycle settings.
type Config struct {
	Interval         time.Duration
	MaxMarkets       int
	MaxCandidates    int
	MinLiquidity     float64
	Workers          int
	BalanceSyncEvery int // cycles; 0 disables
	Retry            RetryPolicy
	Timeouts         Timeouts
	Detector         strategy.DetectorConfig
	Sizer            strategy.SizerConfig
	Gate             strategy.GateConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:         10 * time.Minute,
		MaxMarkets:       1000,
		MaxCandidates:    80,
		MinLiquidity:     500,
		Workers:          4,
		BalanceSyncEvery: 6,
		Retry:            DefaultRetryPolicy(),
		Timeouts: Timeouts{
			Scan:   60 * time.Second,
			Enrich: 15 * time.Second,
			Oracle: 60 * time.Second,
			Book:   10 * time.Second,
			Submit: 30 * time.Second,
		},
		Detector: strategy.DefaultDetectorConfig(),
		Sizer:    strategy.DefaultSizerConfig(),
		Gate:     strategy.DefaultGateConfig(),
	}
}

// Deps are the engine's collaborators. Balance and Redeemer may be nil
// (paper mode); Enricher may be nil to skip enrichment.
type Deps struct {
	Listings    ports.ListingSource
	Resolutions ports.ResolutionSource
	Enricher    ports.Enricher
	Oracle      ports.Oracle
	Books       ports.BookProvider
	Executor    ports.OrderExecutor
	Reconciler  ports.Reconciler
	Balance     ports.BalanceSource
	Redeemer    ports.Redeemer
	Store       ports.LedgerStore
	Reporter    ports.Reporter
}

// Engine drives cycles against a single ledger.
type Engine struct {
	cfg      Config
	deps     Deps
	ledger   *ledger.Ledger
	detector *strategy.Detector
	sizer    *strategy.Sizer
	gate     *strategy.Gate
	sleeper  Sleeper
	now      func() time.Time
}

// New creates an Engine.
func New(cfg Config, deps Deps, l *ledger.Ledger) *Engine {
	if deps.Enricher == nil {
		deps.Enricher = noEnrichment{}
	}
	return &Engine{
		cfg:      cfg,
		deps:     deps,
		ledger:   l,
		detector: strategy.NewDetector(cfg.Detector),
		sizer:    strategy.NewSizer(cfg.Sizer),
		gate:     strategy.NewGate(cfg.Gate),
		sleeper:  TimerSleeper,
		now:      time.Now,
	}
}

// WithSleeper replaces the inter-cycle sleeper.
func (e *Engine) WithSleeper(s Sleeper) *Engine {
	e.sleeper = s
	return e
}

// Run executes cycles until the context is cancelled (nil), the ledger dies
// (ErrAgentDied) or a fatal error occurs. With once=true it runs one cycle.
func (e *Engine) Run(ctx context.Context, once bool) error {
	if e.ledger.IsDead() {
		return e.halt(ctx)
	}

	for {
		if _, err := e.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				slog.Info("engine: shutting down mid-cycle", "err", err)
				return nil
			}
			return err
		}

		if e.ledger.IsDead() {
			return e.halt(ctx)
		}
		if once {
			return nil
		}

		slog.Debug("engine: sleeping", "interval", e.cfg.Interval)
		if err := e.sleeper.Sleep(ctx, e.cfg.Interval); err != nil {
			slog.Info("engine: shutting down")
			return nil
		}
	}
}

// RunCycle executes one full cycle and returns its summary. Only fatal
// conditions are returned as errors: ledger corruption, invariant violations
// and reconciliation failures that are not transient.
func (e *Engine) RunCycle(ctx context.Context) (domain.CycleSummary, error) {
	start := e.now()
	before := e.ledger.Snapshot()
	sum := domain.CycleSummary{
		Cycle:          before.Cycle + 1,
		StartedAt:      start,
		BankrollBefore: before.Bankroll.InexactFloat64(),
		Status:         before.Status,
	}
	if before.IsDead() {
		return sum, domain.ErrAgentDied
	}

	if h := e.ledger.Health(); !h.CanAffordCycle {
		slog.Warn("engine: bankroll may not cover another cycle",
			"bankroll", fmt.Sprintf("$%.2f", h.Bankroll),
			"runway", h.RunwayCycles,
		)
	}

	if err := e.reconcile(ctx); err != nil {
		return sum, err
	}

	resolved, err := e.settleResolutions(ctx)
	if err != nil {
		return sum, err
	}
	sum.Resolved = resolved

	if err := e.syncBalance(ctx, sum.Cycle); err != nil {
		return sum, err
	}

	// FETCH
	var markets []domain.MarketSnapshot
	err = e.cfg.Retry.Do(ctx, "fetch", e.cfg.Timeouts.Scan, func(ctx context.Context) error {
		var ferr error
		markets, ferr = e.deps.Listings.FetchCandidates(ctx, ports.ListingFilter{
			MaxMarkets:   e.cfg.MaxMarkets,
			MinLiquidity: e.cfg.MinLiquidity,
		})
		return ferr
	})
	if err != nil {
		slog.Warn("engine: listing fetch failed", "err", err)
	}
	sum.Scanned = len(markets)

	snap := e.ledger.Snapshot()
	candidates := prefilter(markets, snap.Holds, e.cfg.MaxCandidates)
	sum.Candidates = len(candidates)

	// ENRICH → ESTIMATE
	evals := e.evaluateConcurrent(ctx, candidates)

	// DETECT
	var signals []domain.MispricingSignal
	for _, ev := range evals {
		if ev.fatal != nil {
			return sum, ev.fatal
		}
		if ev.enriched {
			sum.Enriched++
		}
		if ev.err != nil {
			sum.EstimateFailures++
			continue
		}
		sum.Estimated++
		if sig, ok := e.detector.Detect(ev.market, ev.estimate); ok {
			signals = append(signals, sig)
		}
	}
	strategy.Rank(signals)
	sum.Signals = len(signals)

	// SIZE → GATE → EXECUTE → SETTLE
	for _, sig := range signals {
		if err := e.trade(ctx, sig, &sum); err != nil {
			return sum, err
		}
	}

	return e.finishCycle(ctx, sum, before)
}

// finishCycle advances the cycle counter, persists and reports the summary.
func (e *Engine) finishCycle(ctx context.Context, sum domain.CycleSummary, before domain.LedgerState) (domain.CycleSummary, error) {
	cycle, err := e.ledger.CompleteCycle(ctx)
	if err != nil {
		return sum, fmt.Errorf("engine: complete cycle: %w", err)
	}

	after := e.ledger.Snapshot()
	sum.Cycle = cycle
	sum.BankrollAfter = after.Bankroll.InexactFloat64()
	sum.OracleCostUSD = after.CumulativeAPICost.Sub(before.CumulativeAPICost).InexactFloat64()
	sum.Status = after.Status
	sum.Duration = e.now().Sub(sum.StartedAt)

	if e.deps.Store != nil {
		if err := e.deps.Store.SaveCycle(ctx, sum); err != nil {
			slog.Warn("engine: save cycle summary failed", "cycle", cycle, "err", err)
		}
	}

	slog.Info("engine: cycle complete",
		"cycle", cycle,
		"scanned", sum.Scanned,
		"signals", sum.Signals,
		"attempted", sum.Attempted,
		"filled", sum.Filled,
		"bankroll", fmt.Sprintf("$%.2f", sum.BankrollAfter),
		"delta", fmt.Sprintf("$%.2f", sum.BankrollDelta()),
		"status", sum.Status,
		"duration", sum.Duration.Round(time.Millisecond),
	)

	if e.deps.Reporter != nil {
		if err := e.deps.Reporter.ReportCycle(ctx, sum, e.ledger.Health()); err != nil {
			slog.Warn("engine: report failed", "err", err)
		}
	}
	return sum, nil
}

// halt settles what is still in flight on a dead ledger (pending intents and
// resolved positions), reports the death and returns ErrAgentDied. Ledger
// failures while settling take precedence.
func (e *Engine) halt(ctx context.Context) error {
	if err := e.reconcile(ctx); err != nil {
		return err
	}
	if _, err := e.settleResolutions(ctx); err != nil {
		return err
	}
	if n := len(e.ledger.Pending()); n > 0 {
		slog.Warn("engine: halting with unresolved intents", "pending", n)
	}
	e.reportDeath(ctx)
	return domain.ErrAgentDied
}

func (e *Engine) reportDeath(ctx context.Context) {
	h := e.ledger.Health()
	slog.Error("engine: agent died",
		"bankroll", fmt.Sprintf("$%.2f", h.Bankroll),
		"cycles", h.Cycle,
		"net", fmt.Sprintf("$%.2f", h.NetProfit),
	)
	if e.deps.Reporter != nil {
		if err := e.deps.Reporter.ReportDeath(ctx, h); err != nil {
			slog.Warn("engine: death report failed", "err", err)
		}
	}
}

// isFatal reports ledger failures that must stop the agent.
func isFatal(err error) bool {
	return errors.Is(err, domain.ErrLedgerCorruption) || errors.Is(err, domain.ErrInvariantViolation)
}

type noEnrichment struct{}

func (noEnrichment) Enrich(context.Context, domain.MarketSnapshot) (domain.Enrichment, error) {
	return domain.Enrichment{}, nil
}
