package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polyagent/config"
	"github.com/alejandrodnm/polyagent/internal/adapters/storage"
	"github.com/alejandrodnm/polyagent/internal/application/engine"
	"github.com/alejandrodnm/polyagent/internal/application/ledger"
	"github.com/alejandrodnm/polyagent/internal/domain"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitDied  = 3

	stopFile = "STOP_AGENT"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one cycle and exit")
	paper := flag.Bool("paper", false, "simulate fills against live books instead of trading")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full cycle table (default: compact 1-line)")
	flag.Parse()

	path := *configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !isFlagSet("config") {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		return exitFatal
	}
	if *paper {
		cfg.Agent.Paper = true
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		return exitFatal
	}

	mode := "live"
	if cfg.Agent.Paper {
		mode = "paper"
	}
	slog.Info("polyagent starting",
		"config", path,
		"mode", mode,
		"interval", cfg.Interval(),
		"once", *once,
		"bankroll", fmt.Sprintf("$%.2f", cfg.Ledger.StartingBankroll),
		"death_threshold", fmt.Sprintf("$%.2f", cfg.Ledger.DeathThresholdUSD),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		return exitFatal
	}
	defer store.Close()

	l, err := ledger.Open(ctx, store, ledgerConfig(cfg))
	if err != nil {
		if errors.Is(err, domain.ErrLedgerCorruption) {
			slog.Error("ledger is corrupt, refusing to start", "err", err, "dsn", cfg.Storage.DSN)
		} else {
			slog.Error("failed to open ledger", "err", err)
		}
		return exitFatal
	}

	deps, err := buildDeps(ctx, cfg, store, *table)
	if err != nil {
		if ctx.Err() != nil {
			slog.Info("aborted before start")
			return exitOK
		}
		slog.Error("failed to set up adapters", "err", err)
		return exitFatal
	}

	eng := engine.New(engineConfig(cfg), deps, l).WithSleeper(stopFileSleeper{})
	err = eng.Run(ctx, *once)
	switch {
	case err == nil:
		slog.Info("polyagent stopped cleanly")
		return exitOK
	case errors.Is(err, domain.ErrAgentDied):
		slog.Error("polyagent died", "bankroll", fmt.Sprintf("$%.2f", l.Health().Bankroll))
		return exitDied
	default:
		slog.Error("polyagent exited with error", "err", err)
		return exitFatal
	}
}

// stopFileSleeper sleeps between cycles and stops the loop when STOP_AGENT exists.
type stopFileSleeper struct{}

func (stopFileSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := engine.TimerSleeper.Sleep(ctx, d); err != nil {
		return err
	}
	if _, err := os.Stat(stopFile); err == nil {
		slog.Info("stop file found", "file", stopFile)
		return errors.New("stop file present")
	}
	return nil
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
