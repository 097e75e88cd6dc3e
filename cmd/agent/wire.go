package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyagent/config"
	"github.com/alejandrodnm/polyagent/internal/adapters/enrich"
	"github.com/alejandrodnm/polyagent/internal/adapters/notify"
	"github.com/alejandrodnm/polyagent/internal/adapters/onchain"
	"github.com/alejandrodnm/polyagent/internal/adapters/oracle"
	"github.com/alejandrodnm/polyagent/internal/adapters/paper"
	"github.com/alejandrodnm/polyagent/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyagent/internal/adapters/storage"
	"github.com/alejandrodnm/polyagent/internal/application/engine"
	"github.com/alejandrodnm/polyagent/internal/application/ledger"
	"github.com/alejandrodnm/polyagent/internal/domain/strategy"
)

const liveAbortWindow = 5 * time.Second

// buildDeps wires the adapters for paper or live mode.
func buildDeps(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, table bool) (engine.Deps, error) {
	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase, cfg.API.DataBase)

	orc, err := oracle.New(oracle.Config{
		APIKey:           cfg.Secrets.AnthropicKey,
		Model:            cfg.Oracle.Model,
		BaseURL:          cfg.Oracle.BaseURL,
		MaxTokens:        cfg.Oracle.MaxTokens,
		InputUSDPerMTok:  cfg.Oracle.InputUSDPerMTok,
		OutputUSDPerMTok: cfg.Oracle.OutputUSDPerMTok,
	})
	if err != nil {
		return engine.Deps{}, err
	}

	deps := engine.Deps{
		Listings:    client,
		Resolutions: client,
		Enricher:    enrich.New(enrich.Endpoints{}),
		Oracle:      orc,
		Books:       client,
		Store:       store,
		Reporter:    notify.NewConsole(table),
	}

	if cfg.Agent.Paper {
		exec := paper.NewExecutor(client)
		deps.Executor = exec
		deps.Reconciler = exec
		return deps, nil
	}

	fmt.Printf("\n⚠️  LIVE TRADING MODE: REAL MONEY WILL BE SPENT\n")
	fmt.Printf("   Bankroll: $%.2f | Max position: %.0f%% | Max portfolio: %.0f%%\n",
		cfg.Ledger.StartingBankroll, cfg.Strategy.MaxPositionPercent, cfg.Strategy.MaxPortfolioPercent)
	fmt.Printf("   Press Ctrl+C within %s to abort...\n\n", liveAbortWindow)

	abortTimer := time.NewTimer(liveAbortWindow)
	defer abortTimer.Stop()
	select {
	case <-abortTimer.C:
	case <-ctx.Done():
		return engine.Deps{}, ctx.Err()
	}

	auth, err := polymarket.NewAuthClient(client, cfg.Secrets.PrivateKey)
	if err != nil {
		return engine.Deps{}, fmt.Errorf("auth client: %w", err)
	}
	if err := auth.EnsureCreds(ctx); err != nil {
		return engine.Deps{}, fmt.Errorf("derive API credentials (check POLY_PRIVATE_KEY): %w", err)
	}
	slog.Info("live: authenticated with Polymarket CLOB", "address", auth.Address())

	wallet, err := onchain.NewWallet(cfg.API.PolygonRPC, cfg.Secrets.PrivateKey)
	if err != nil {
		return engine.Deps{}, fmt.Errorf("wallet: %w", err)
	}
	slog.Info("live: checking on-chain approvals...")
	if err := wallet.EnsureApprovals(ctx); err != nil {
		return engine.Deps{}, fmt.Errorf("approvals: %w", err)
	}

	balance, err := wallet.Balance(ctx)
	if err != nil {
		return engine.Deps{}, fmt.Errorf("wallet balance: %w", err)
	}
	slog.Info("live: wallet balance", "usdc", fmt.Sprintf("$%.2f", balance), "address", wallet.Address())

	trading := polymarket.NewTradingClient(auth)
	deps.Executor = trading
	deps.Reconciler = trading
	deps.Balance = wallet
	deps.Redeemer = wallet
	return deps, nil
}

func engineConfig(cfg *config.Config) engine.Config {
	s := cfg.Strategy
	return engine.Config{
		Interval:         cfg.Interval(),
		MaxMarkets:       cfg.Agent.MaxMarkets,
		MaxCandidates:    cfg.Agent.MaxCandidates,
		MinLiquidity:     cfg.Agent.MinLiquidityUSD,
		Workers:          cfg.Agent.Workers,
		BalanceSyncEvery: cfg.Agent.BalanceSyncEvery,
		Retry:            engine.RetryPolicy{Attempts: cfg.Retries(), Backoff: cfg.RetryBackoff()},
		Timeouts: engine.Timeouts{
			Scan:   config.Seconds(cfg.Timeouts.ScanSeconds),
			Enrich: config.Seconds(cfg.Timeouts.EnrichSeconds),
			Oracle: config.Seconds(cfg.Timeouts.OracleSeconds),
			Book:   config.Seconds(cfg.Timeouts.BookSeconds),
			Submit: config.Seconds(cfg.Timeouts.SubmitSeconds),
		},
		Detector: strategy.DetectorConfig{
			MinEdge:       s.MinEdgePercent / 100,
			MinConfidence: s.MinConfidence,
		},
		Sizer: strategy.SizerConfig{
			KellyMultiplier: s.KellyMultiplier,
			MaxPosition:     s.MaxPositionPercent / 100,
			MaxPortfolio:    s.MaxPortfolioPercent / 100,
		},
		Gate: strategy.GateConfig{
			MaxSlippage: s.MaxSlippagePercent / 100,
			MinShares:   s.MinShares,
			MinOrderUSD: s.MinOrderUSD,
			TickSize:    0.01,
		},
	}
}

func ledgerConfig(cfg *config.Config) ledger.Config {
	return ledger.Config{
		StartingBankroll:   decimal.NewFromFloat(cfg.Ledger.StartingBankroll),
		DeathThreshold:     decimal.NewFromFloat(cfg.Ledger.DeathThresholdUSD),
		EstimatedCycleCost: decimal.NewFromFloat(cfg.Ledger.EstimatedCycleCostUSD),
		BalanceDrift:       decimal.NewFromFloat(cfg.Ledger.BalanceDriftUSD),
	}
}
