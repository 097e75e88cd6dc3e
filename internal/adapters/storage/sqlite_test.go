package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyagent/internal/adapters/storage"
	"github.com/alejandrodnm/polyagent/internal/domain"
)

func makeState(bankroll string, seq int64) domain.LedgerState {
	s := domain.NewLedgerState(decimal.RequireFromString("50"), time.Now().UTC().Truncate(time.Second))
	s.Bankroll = decimal.RequireFromString(bankroll)
	s.Seq = seq
	return s
}

func makeEntry(seq int64, delta, after string) domain.LedgerEntry {
	return domain.LedgerEntry{
		Seq:           seq,
		Kind:          domain.EntryOracleCost,
		ConditionID:   "0xaaa",
		Delta:         decimal.RequireFromString(delta),
		BankrollAfter: decimal.RequireFromString(after),
		At:            time.Now().UTC(),
	}
}

func TestSQLiteStorage_LoadEmpty(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, found, err := db.LoadLedger(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStorage_CommitAndLoad(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	s := makeState("49.99", 1)
	s.Positions["0xaaa"] = domain.Position{
		ConditionID: "0xaaa",
		TokenID:     "tok",
		Direction:   domain.BuyYes,
		Shares:      decimal.RequireFromString("5.45"),
		CostBasis:   decimal.RequireFromString("3.00"),
	}
	require.NoError(t, db.CommitLedger(ctx, s, makeEntry(1, "-0.01", "49.99")))

	got, found, err := db.LoadLedger(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Bankroll.Equal(decimal.RequireFromString("49.99")))
	assert.Equal(t, int64(1), got.Seq)
	require.Contains(t, got.Positions, "0xaaa")
	assert.True(t, got.Positions["0xaaa"].Shares.Equal(decimal.RequireFromString("5.45")))

	sum, n, err := db.SumDeltas(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, sum.Equal(decimal.RequireFromString("-0.01")))
}

func TestSQLiteStorage_DuplicateSeqRollsBack(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.CommitLedger(ctx, makeState("49.99", 1), makeEntry(1, "-0.01", "49.99")))

	// mismo seq otra vez → el INSERT del journal falla y el estado no cambia
	err = db.CommitLedger(ctx, makeState("10.00", 1), makeEntry(1, "-39.99", "10.00"))
	require.Error(t, err)

	got, _, err := db.LoadLedger(ctx)
	require.NoError(t, err)
	assert.True(t, got.Bankroll.Equal(decimal.RequireFromString("49.99")))
}

func TestSQLiteStorage_SeqMismatchRejected(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	err = db.CommitLedger(context.Background(), makeState("49.99", 2), makeEntry(1, "-0.01", "49.99"))
	assert.Error(t, err)
}

func TestSQLiteStorage_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	db, err := storage.NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, db.CommitLedger(ctx, makeState("49.99", 1), makeEntry(1, "-0.01", "49.99")))
	require.NoError(t, db.CommitLedger(ctx, makeState("49.97", 2), makeEntry(2, "-0.02", "49.97")))
	require.NoError(t, db.Close())

	db, err = storage.NewSQLiteStorage(path)
	require.NoError(t, err)
	defer db.Close()

	got, found, err := db.LoadLedger(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Bankroll.Equal(decimal.RequireFromString("49.97")))

	entries, err := db.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EntryOracleCost, entries[1].Kind)
	assert.True(t, entries[1].Delta.Equal(decimal.RequireFromString("-0.02")))
}

func TestSQLiteStorage_CorruptStateDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	db, err := storage.NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, db.CommitLedger(ctx, makeState("49.99", 1), makeEntry(1, "-0.01", "49.99")))
	require.NoError(t, db.CorruptForTest(ctx, `UPDATE ledger_state SET state_json = '{not json' WHERE id = 1`))

	_, _, err = db.LoadLedger(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLedgerCorruption))
	db.Close()
}

func TestSQLiteStorage_CorruptJournalDeltaDetected(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.CommitLedger(ctx, makeState("49.99", 1), makeEntry(1, "-0.01", "49.99")))
	require.NoError(t, db.CorruptForTest(ctx, `UPDATE ledger_entries SET delta = 'abc' WHERE seq = 1`))

	_, err = db.Entries(ctx)
	assert.ErrorIs(t, err, domain.ErrLedgerCorruption)
	_, _, err = db.SumDeltas(ctx)
	assert.ErrorIs(t, err, domain.ErrLedgerCorruption)
}

func TestSQLiteStorage_SaveCycle(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	summary := domain.CycleSummary{
		Cycle:          1,
		StartedAt:      time.Now().UTC(),
		Duration:       3 * time.Second,
		Scanned:        120,
		Signals:        2,
		Attempted:      1,
		Filled:         1,
		OracleCostUSD:  0.12,
		BankrollBefore: 50,
		BankrollAfter:  46.88,
		Status:         domain.StatusAlive,
	}
	summary.Reject(domain.RejectInsufficientLiquidity)

	require.NoError(t, db.SaveCycle(ctx, summary))
	n, err := db.CountCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
