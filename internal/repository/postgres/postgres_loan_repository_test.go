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

var loanRowColumns = []string{"id", "borrower_id", "principal", "status", "due_date", "created_at", "updated_at"}

func TestPostgresLoanRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresLoanRepository(db)
	now := time.Now().UTC()

	loan := &models.Loan{ID: "l-1", BorrowerID: "c-1", Principal: decimal.NewFromInt(5000), Status: models.LoanPending}
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO loans (id, borrower_id, principal, status, due_date) VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`)).
		WithArgs("l-1", "c-1", loan.Principal, models.LoanPending, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, repo.Create(context.Background(), loan))
	assert.WithinDuration(t, now, loan.CreatedAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoanRepository_GetByIDForUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresLoanRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	due := now.AddDate(0, 4, 0)

	t.Run("WithDueDate", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, borrower_id, principal, status, due_date, created_at, updated_at FROM loans WHERE id = $1 FOR UPDATE`)).
			WithArgs("l-1").
			WillReturnRows(sqlmock.NewRows(loanRowColumns).AddRow("l-1", "c-1", "5000", "active", due, now, now))

		loan, err := repo.GetByIDForUpdate(ctx, "l-1")
		require.NoError(t, err)
		assert.Equal(t, models.LoanActive, loan.Status)
		assert.WithinDuration(t, due, loan.DueDate, time.Second)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("WithoutDueDate", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM loans WHERE id = $1`)).
			WithArgs("l-2").
			WillReturnRows(sqlmock.NewRows(loanRowColumns).AddRow("l-2", "c-1", "100", "pending", nil, now, now))

		loan, err := repo.GetByID(ctx, "l-2")
		require.NoError(t, err)
		assert.True(t, loan.DueDate.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM loans WHERE id = $1 FOR UPDATE`)).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByIDForUpdate(ctx, "missing")
		assert.ErrorIs(t, err, pkgerrors.ErrLoanNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresLoanRepository_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresLoanRepository(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE loans SET status = $2, updated_at = NOW() WHERE id = $1`)).
		WithArgs("l-1", models.LoanRepaid).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.UpdateStatus(ctx, "l-1", models.LoanRepaid))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE loans`)).
		WithArgs("l-x", models.LoanRepaid).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "l-x", models.LoanRepaid), pkgerrors.ErrLoanNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
