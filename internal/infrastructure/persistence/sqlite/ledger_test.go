package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/persistence/hosttest"
)

func openTempLedger(t *testing.T) *Ledger {
	t.Helper()

	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, l.Close()) })
	return l
}

func TestLedgerContract(t *testing.T) {
	hosttest.Run(t, func(t *testing.T) progression.Host {
		return openTempLedger(t)
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	first, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer second.Close()

	var n int
	require.NoError(t, second.db.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestCounterBeyondStorageRange(t *testing.T) {
	l := openTempLedger(t)
	ctx := context.Background()

	p, err := progression.InitializeProfile("alice-key", "alice", time.Unix(1709294400, 0))
	require.NoError(t, err)
	require.NoError(t, l.WithinTx(ctx, func(ctx context.Context, tx progression.Tx) error {
		return tx.CreateProfile(ctx, p)
	}))

	err = l.WithinTx(ctx, func(ctx context.Context, tx progression.Tx) error {
		p.XP = math.MaxInt64 + 1
		return tx.UpdateProfile(ctx, p)
	})
	assert.ErrorIs(t, err, progression.ErrCounterOverflow)
	assert.True(t, shared.IsOverflow(err))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(nil))
	assert.False(t, isUniqueViolation(errors.New("disk I/O error")))
	assert.True(t, isUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: quiz_results.owner, quiz_results.quiz_id")))
}

func TestExtractUp(t *testing.T) {
	sql := "-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (id INTEGER);\n", extractUp(sql))
	assert.Equal(t, "SELECT 1;", extractUp("SELECT 1;"))
}
