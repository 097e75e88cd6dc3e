package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// CorruptForTest ejecuta SQL arbitrario para simular corrupción en disco.
func (s *SQLiteStorage) CorruptForTest(ctx context.Context, stmt string) error {
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// Entries devuelve el journal completo en orden de seq.
func (s *SQLiteStorage) Entries(ctx context.Context) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, COALESCE(condition_id, ''), COALESCE(intent_id, ''),
		       delta, bankroll_after, COALESCE(note, ''), at
		FROM ledger_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("storage.Entries: query: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var kind, delta, after string
		if err := rows.Scan(&e.Seq, &kind, &e.ConditionID, &e.IntentID, &delta, &after, &e.Note, &e.At); err != nil {
			return nil, fmt.Errorf("storage.Entries: scan: %w", err)
		}
		e.Kind = domain.EntryKind(kind)
		var err error
		if e.Delta, err = decimal.NewFromString(delta); err != nil {
			return nil, fmt.Errorf("storage.Entries: seq %d delta %q: %v: %w", e.Seq, delta, err, domain.ErrLedgerCorruption)
		}
		if e.BankrollAfter, err = decimal.NewFromString(after); err != nil {
			return nil, fmt.Errorf("storage.Entries: seq %d bankroll %q: %v: %w", e.Seq, after, err, domain.ErrLedgerCorruption)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountCycles devuelve cuántos ciclos hay persistidos.
func (s *SQLiteStorage) CountCycles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cycles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage.CountCycles: %w", err)
	}
	return n, nil
}
