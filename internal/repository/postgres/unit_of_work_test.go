package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
	"github.com/lightlabcreation/big-pos-backend/internal/repository/postgres"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWork_Do(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE loans`)).
			WithArgs("l-1", models.LoanActive).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = postgres.NewUnitOfWork(db).Do(ctx, func(ctx context.Context, s repository.Stores) error {
			return s.Loans.UpdateStatus(ctx, "l-1", models.LoanActive)
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = postgres.NewUnitOfWork(db).Do(ctx, func(context.Context, repository.Stores) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SerializationFailureIsRetryable", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001"})

		err = postgres.NewUnitOfWork(db).Do(ctx, func(context.Context, repository.Stores) error {
			return nil
		})
		assert.ErrorIs(t, err, pkgerrors.ErrStorageConflict)
		assert.True(t, pkgerrors.IsRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("BeginFails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

		called := false
		err = postgres.NewUnitOfWork(db).Do(ctx, func(context.Context, repository.Stores) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, pkgerrors.ErrStorageUnavailable)
		assert.False(t, called)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUnitOfWork_View(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM`)).
		WithArgs("w-1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("250"))
	mock.ExpectCommit()

	var total string
	err = postgres.NewUnitOfWork(db).View(context.Background(), func(ctx context.Context, s repository.Stores) error {
		sum, err := s.Transactions.SumCompletedByWallet(ctx, "w-1")
		total = sum.String()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "250", total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
