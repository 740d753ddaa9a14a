package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var walletCols = []string{"tenant_id", "balance", "version", "updated_at"}

func TestWalletProjection_GetBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewWalletProjection()
	ctx := context.Background()

	t.Run("unknown tenant has zero balance", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM token_wallets WHERE tenant_id = $1")).
			WithArgs("tenant-new").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))

		balance, err := p.GetBalance(ctx, db, "tenant-new")
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)
	})

	t.Run("existing tenant", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM token_wallets")).
			WithArgs("tenant-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(1300))

		balance, err := p.GetBalance(ctx, db, "tenant-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1300), balance)
	})

	t.Run("storage failure", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM token_wallets")).
			WillReturnError(errors.New("too many connections"))

		_, err := p.GetBalance(ctx, db, "tenant-1")
		assert.True(t, IsPersistenceError(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletProjection_LockForUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewWalletProjection()
	ctx := context.Background()

	// A missing row is seeded from the ledger's sum and last sequence.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT $1, COALESCE(SUM(delta), 0), COALESCE(MAX(seq), 0), now() FROM ledger_entries")).
		WithArgs("tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows(walletCols).AddRow("tenant-1", 1300, 3, time.Now()))
	mock.ExpectRollback()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	wallet, err := p.LockForUpdate(ctx, tx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", wallet.TenantID)
	assert.Equal(t, int64(1300), wallet.Balance)
	assert.Equal(t, int64(3), wallet.Version)

	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletProjection_UpsertBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("version = EXCLUDED.version")).
		WithArgs("tenant-1", 1500, 2).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "version", "updated_at"}).AddRow(1500, 2, time.Now()))

	wallet, err := NewWalletProjection().UpsertBalance(context.Background(), db, "tenant-1", 1500, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), wallet.Balance)
	assert.Equal(t, int64(2), wallet.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletProjection_ListDrifted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE w.balance <> COALESCE(l.total, 0)")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "balance", "total"}).
			AddRow("tenant-a", 900, 1000).
			AddRow("tenant-b", 10, 0))

	reports, err := NewWalletProjection().ListDrifted(context.Background(), db, 50)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "tenant-a", reports[0].TenantID)
	assert.Equal(t, int64(900), reports[0].ProjectedBalance)
	assert.Equal(t, int64(1000), reports[0].LedgerBalance)
	assert.Equal(t, int64(0), reports[1].LedgerBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}
