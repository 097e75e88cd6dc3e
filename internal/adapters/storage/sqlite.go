package storage

// sqlite.go: persistencia durable del ledger.
//
// Estrategia:
//   - `ledger_state`: UNA fila (id=1) con el estado completo serializado en JSON
//     más columnas resumen (bankroll, status, cycle, seq) para inspección manual.
//   - `ledger_entries`: journal append-only, una fila por mutación commiteada.
//     Estado y entrada se escriben en la misma transacción: o ambos o ninguno.
//   - `cycles`: resumen ligero por ciclo.
//   - Importes como TEXT decimal, nunca REAL: la suma de deltas debe cuadrar al céntimo.
//   - Prune automático al arrancar: cycles > 30d. El journal nunca se poda.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_state (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    bankroll    TEXT     NOT NULL,
    status      TEXT     NOT NULL,
    cycle       INTEGER  NOT NULL DEFAULT 0,
    seq         INTEGER  NOT NULL DEFAULT 0,
    state_json  TEXT     NOT NULL,
    updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    seq            INTEGER PRIMARY KEY,
    kind           TEXT     NOT NULL,
    condition_id   TEXT,
    intent_id      TEXT,
    delta          TEXT     NOT NULL,
    bankroll_after TEXT     NOT NULL,
    note           TEXT,
    at             DATETIME NOT NULL
);

-- Resumen ligero por ciclo
CREATE TABLE IF NOT EXISTS cycles (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle           INTEGER  NOT NULL,
    started_at      DATETIME NOT NULL,
    duration_ms     INTEGER  NOT NULL DEFAULT 0,
    scanned         INTEGER  NOT NULL DEFAULT 0,
    candidates      INTEGER  NOT NULL DEFAULT 0,
    estimated       INTEGER  NOT NULL DEFAULT 0,
    signals         INTEGER  NOT NULL DEFAULT 0,
    attempted       INTEGER  NOT NULL DEFAULT 0,
    filled          INTEGER  NOT NULL DEFAULT 0,
    killed          INTEGER  NOT NULL DEFAULT 0,
    rejections      TEXT,
    oracle_cost     REAL     NOT NULL DEFAULT 0,
    bankroll_before REAL     NOT NULL DEFAULT 0,
    bankroll_after  REAL     NOT NULL DEFAULT 0,
    status          TEXT     NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_kind ON ledger_entries(kind);
CREATE INDEX IF NOT EXISTS idx_cycles_at    ON cycles(started_at DESC);
`

const retentionCycles = 30 * 24 * time.Hour // ciclos: 30 días

// SQLiteStorage implementa ports.LedgerStore usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia ciclos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=FULL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// LoadLedger devuelve el último estado commiteado.
// Un JSON ilegible o inconsistente con las columnas resumen es corrupción.
func (s *SQLiteStorage) LoadLedger(ctx context.Context) (domain.LedgerState, bool, error) {
	var bankroll, status, raw string
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT bankroll, status, seq, state_json FROM ledger_state WHERE id = 1`,
	).Scan(&bankroll, &status, &seq, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LedgerState{}, false, nil
	}
	if err != nil {
		return domain.LedgerState{}, false, fmt.Errorf("storage.LoadLedger: query: %w", err)
	}

	var state domain.LedgerState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.LedgerState{}, false, fmt.Errorf("storage.LoadLedger: parse state: %v: %w", err, domain.ErrLedgerCorruption)
	}

	col, err := decimal.NewFromString(bankroll)
	if err != nil || !col.Equal(state.Bankroll) || seq != state.Seq || status != string(state.Status) {
		return domain.LedgerState{}, false, fmt.Errorf("storage.LoadLedger: summary columns disagree with state (bankroll %s vs %s, seq %d vs %d): %w",
			bankroll, state.Bankroll, seq, state.Seq, domain.ErrLedgerCorruption)
	}

	if state.Positions == nil {
		state.Positions = map[string]domain.Position{}
	}
	if state.Pending == nil {
		state.Pending = map[string]domain.OrderIntent{}
	}
	return state, true, nil
}

// CommitLedger escribe estado + entrada del journal en una transacción.
func (s *SQLiteStorage) CommitLedger(ctx context.Context, state domain.LedgerState, entry domain.LedgerEntry) error {
	if entry.Seq != state.Seq {
		return fmt.Errorf("storage.CommitLedger: entry seq %d != state seq %d", entry.Seq, state.Seq)
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("storage.CommitLedger: marshal state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.CommitLedger: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (seq, kind, condition_id, intent_id, delta, bankroll_after, note, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Seq, string(entry.Kind), entry.ConditionID, entry.IntentID,
		entry.Delta.String(), entry.BankrollAfter.String(), entry.Note, entry.At.UTC(),
	); err != nil {
		return fmt.Errorf("storage.CommitLedger: insert entry %d: %w", entry.Seq, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_state (id, bankroll, status, cycle, seq, state_json, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bankroll   = excluded.bankroll,
			status     = excluded.status,
			cycle      = excluded.cycle,
			seq        = excluded.seq,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`,
		state.Bankroll.String(), string(state.Status), state.Cycle, state.Seq, string(raw), state.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.CommitLedger: upsert state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.CommitLedger: commit: %w", err)
	}
	return nil
}

// SumDeltas suma los deltas del journal con aritmética decimal.
func (s *SQLiteStorage) SumDeltas(ctx context.Context) (decimal.Decimal, int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT delta FROM ledger_entries ORDER BY seq`)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("storage.SumDeltas: query: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	var n int64
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, 0, fmt.Errorf("storage.SumDeltas: scan: %w", err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, 0, fmt.Errorf("storage.SumDeltas: parse %q: %v: %w", raw, err, domain.ErrLedgerCorruption)
		}
		sum = sum.Add(d)
		n++
	}
	return sum, n, rows.Err()
}

// SaveCycle persiste el resumen del ciclo: siempre una fila.
func (s *SQLiteStorage) SaveCycle(ctx context.Context, c domain.CycleSummary) error {
	rej, err := json.Marshal(c.Rejections)
	if err != nil {
		return fmt.Errorf("storage.SaveCycle: marshal rejections: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (cycle, started_at, duration_ms, scanned, candidates, estimated,
		                    signals, attempted, filled, killed, rejections, oracle_cost,
		                    bankroll_before, bankroll_after, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Cycle, c.StartedAt.UTC(), c.Duration.Milliseconds(), c.Scanned, c.Candidates, c.Estimated,
		c.Signals, c.Attempted, c.Filled, c.Killed, string(rej), c.OracleCostUSD,
		c.BankrollBefore, c.BankrollAfter, string(c.Status),
	); err != nil {
		return fmt.Errorf("storage.SaveCycle: insert cycle %d: %w", c.Cycle, err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina ciclos antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionCycles)
	s.db.ExecContext(ctx, `DELETE FROM cycles WHERE started_at < ?`, cutoff)
}
