package postgres_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository/postgres"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var walletRowColumns = []string{"id", "owner_id", "kind", "balance", "currency", "created_at", "updated_at"}

func TestPostgresWalletRepository_EnsureExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresWalletRepository(db)
	ctx := context.Background()

	t.Run("InvalidKind", func(t *testing.T) {
		err := repo.EnsureExists(ctx, "c-1", "savings", "RWF")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidWalletKind)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO wallets (id, owner_id, kind, balance, currency) VALUES ($1, $2, $3, 0, $4) ON CONFLICT (owner_id, kind) DO NOTHING`)).
			WithArgs(sqlmock.AnyArg(), "c-1", models.WalletDashboard, "RWF").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.EnsureExists(ctx, "c-1", models.WalletDashboard, "RWF"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyExists", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO wallets`)).
			WithArgs(sqlmock.AnyArg(), "c-1", models.WalletCredit, "RWF").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, repo.EnsureExists(ctx, "c-1", models.WalletCredit, "RWF"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ConnectionLost", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO wallets`)).
			WithArgs(sqlmock.AnyArg(), "c-1", models.WalletPOS, "RWF").
			WillReturnError(sql.ErrConnDone)

		err := repo.EnsureExists(ctx, "c-1", models.WalletPOS, "RWF")
		assert.ErrorIs(t, err, pkgerrors.ErrStorageUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresWalletRepository_GetByOwnerForUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresWalletRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, owner_id, kind, balance, currency, created_at, updated_at FROM wallets WHERE owner_id = $1 AND kind = $2 FOR UPDATE`)).
			WithArgs("c-1", models.WalletDashboard).
			WillReturnRows(sqlmock.NewRows(walletRowColumns).AddRow("w-1", "c-1", "dashboard", "1500.25", "RWF", now, now))

		w, err := repo.GetByOwnerForUpdate(ctx, "c-1", models.WalletDashboard)
		require.NoError(t, err)
		assert.Equal(t, "w-1", w.ID)
		assert.Equal(t, models.WalletDashboard, w.Kind)
		assert.True(t, decimal.RequireFromString("1500.25").Equal(w.Balance))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM wallets WHERE owner_id = $1 AND kind = $2 FOR UPDATE`)).
			WithArgs("ghost", models.WalletDashboard).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByOwnerForUpdate(ctx, "ghost", models.WalletDashboard)
		assert.ErrorIs(t, err, pkgerrors.ErrWalletNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresWalletRepository_ListByOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresWalletRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM wallets WHERE owner_id = $1 ORDER BY kind`)).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows(walletRowColumns).
			AddRow("w-2", "c-1", "credit", "0", "RWF", now, now).
			AddRow("w-1", "c-1", "dashboard", "10", "RWF", now, now))

	wallets, err := repo.ListByOwner(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, models.WalletCredit, wallets[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWalletRepository_UpdateBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresWalletRepository(db)
	ctx := context.Background()
	balance := decimal.RequireFromString("99.50")

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE wallets SET balance = $2, updated_at = NOW() WHERE id = $1`)).
			WithArgs("w-1", balance).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.UpdateBalance(ctx, "w-1", balance))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MissingWallet", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE wallets`)).
			WithArgs("w-x", balance).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.UpdateBalance(ctx, "w-x", balance), pkgerrors.ErrWalletNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
