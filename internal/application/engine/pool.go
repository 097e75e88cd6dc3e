package engine

// pool.go: worker pool para ENRICH → ESTIMATE en paralelo.
//
// Las llamadas al oracle dominan el tiempo de ciclo; con N workers el ciclo
// tarda lo que la cola más lenta, no la suma de todas.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// evaluation es el resultado de enriquecer y estimar un mercado.
type evaluation struct {
	market   domain.MarketSnapshot
	estimate domain.Estimate
	enriched bool
	err      error // estimate fallida: el mercado se salta
	fatal    error // error del ledger: aborta el ciclo
}

// evaluateConcurrent enriquece y estima todos los candidatos con un worker pool.
// El coste de cada llamada al oracle se carga al ledger dentro del worker, haya
// servido o no la respuesta. Si workers <= 0 usa runtime.NumCPU().
func (e *Engine) evaluateConcurrent(ctx context.Context, markets []domain.MarketSnapshot) []evaluation {
	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	workCh := make(chan domain.MarketSnapshot, len(markets))
	resultCh := make(chan evaluation, len(markets))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range workCh {
				resultCh <- e.evaluate(ctx, m)
			}
		}()
	}

	for _, m := range markets {
		workCh <- m
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	evals := make([]evaluation, 0, len(markets))
	for ev := range resultCh {
		evals = append(evals, ev)
	}

	slog.Debug("engine: evaluation complete", "markets", len(markets), "workers", workers)
	return evals
}

// evaluate enriquece (fallo no fatal) y estima con reintentos.
func (e *Engine) evaluate(ctx context.Context, m domain.MarketSnapshot) evaluation {
	ev := evaluation{market: m}

	err := withTimeout(ctx, e.cfg.Timeouts.Enrich, func(cctx context.Context) error {
		en, err := e.deps.Enricher.Enrich(cctx, m)
		if err != nil {
			return err
		}
		ev.market.Enrichment = en
		ev.enriched = !en.IsEmpty()
		return nil
	})
	if err != nil {
		slog.Warn("engine: enrichment failed", "condition_id", m.ConditionID, "category", m.Category, "err", err)
	}

	err = e.cfg.Retry.Do(ctx, "estimate", e.cfg.Timeouts.Oracle, func(cctx context.Context) error {
		est, err := e.deps.Oracle.Estimate(cctx, ev.market)
		if est.CostUSD > 0 {
			if lerr := e.ledger.RecordOracleCost(ctx, m.ConditionID, est.CostUSD); lerr != nil {
				ev.fatal = fmt.Errorf("engine: record oracle cost: %w", lerr)
				return nil
			}
		}
		if err != nil {
			return err
		}
		ev.estimate = est
		return nil
	})
	if ev.fatal != nil {
		return ev
	}
	if err != nil {
		ev.err = err
		level := slog.LevelWarn
		if errors.Is(err, domain.ErrValidation) {
			level = slog.LevelInfo
		}
		slog.Log(ctx, level, "engine: estimate failed", "condition_id", m.ConditionID, "err", err)
	}
	return ev
}
