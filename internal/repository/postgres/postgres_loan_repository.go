package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/lightlabcreation/big-pos-backend/internal/models"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const loanTracer = "loan-repository"

const loanColumns = `id, borrower_id, principal, status, due_date, created_at, updated_at`

type PostgresLoanRepository struct {
	db DBTX
}

func NewPostgresLoanRepository(db DBTX) *PostgresLoanRepository {
	return &PostgresLoanRepository{db: db}
}

func (r *PostgresLoanRepository) Create(ctx context.Context, loan *models.Loan) (err error) {
	ctx, done := instrument(ctx, loanTracer, "CreateLoan")
	defer func() { done(err) }()

	if loan == nil || loan.BorrowerID == "" {
		err = pkgerrors.ErrInvalidInput
		return err
	}
	if !loan.Principal.IsPositive() {
		err = pkgerrors.ErrInvalidAmount
		return err
	}

	query := `INSERT INTO loans (id, borrower_id, principal, status, due_date) VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query, loan.ID, loan.BorrowerID, loan.Principal, loan.Status, nullTime(loan.DueDate)).
		Scan(&loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		err = classify(err)
		slog.Error("failed to create loan", "method", "Create", "borrower_id", loan.BorrowerID, "error", err)
		return fmt.Errorf("failed to create loan: %w", err)
	}

	slog.Info("loan created", "method", "Create", "loan_id", loan.ID, "borrower_id", loan.BorrowerID, "principal", loan.Principal.String())
	return nil
}

func (r *PostgresLoanRepository) GetByID(ctx context.Context, id string) (*models.Loan, error) {
	return r.getOne(ctx, "GetLoanByID", `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
}

func (r *PostgresLoanRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Loan, error) {
	return r.getOne(ctx, "LockLoanByID", `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresLoanRepository) getOne(ctx context.Context, method, query, id string) (l *models.Loan, err error) {
	ctx, done := instrument(ctx, loanTracer, method, attribute.String("loan_id", id))
	defer func() { done(err) }()

	loan, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrLoanNotFound
		return nil, err
	}
	if err != nil {
		err = classify(err)
		slog.Error("failed to get loan", "method", method, "loan_id", id, "error", err)
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

func (r *PostgresLoanRepository) UpdateStatus(ctx context.Context, id string, status models.LoanStatus) (err error) {
	ctx, done := instrument(ctx, loanTracer, "UpdateLoanStatus",
		attribute.String("loan_id", id), attribute.String("status", string(status)))
	defer func() { done(err) }()

	res, err := r.db.ExecContext(ctx, `UPDATE loans SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		err = classify(err)
		slog.Error("failed to update loan status", "method", "UpdateStatus", "loan_id", id, "error", err)
		return fmt.Errorf("failed to update loan status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		err = pkgerrors.ErrLoanNotFound
		return err
	}

	slog.Info("loan status updated", "method", "UpdateStatus", "loan_id", id, "status", status)
	return nil
}

func (r *PostgresLoanRepository) ListByBorrower(ctx context.Context, borrowerID string) (loans []models.Loan, err error) {
	ctx, done := instrument(ctx, loanTracer, "ListLoansByBorrower", attribute.String("borrower_id", borrowerID))
	defer func() { done(err) }()

	rows, err := r.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE borrower_id = $1 ORDER BY created_at DESC`, borrowerID)
	if err != nil {
		err = classify(err)
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	loans = []models.Loan{}
	for rows.Next() {
		loan, scanErr := scanLoan(rows)
		if scanErr != nil {
			err = scanErr
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, *loan)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", classify(err))
	}
	return loans, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var (
		loan models.Loan
		due  sql.NullTime
	)
	if err := row.Scan(&loan.ID, &loan.BorrowerID, &loan.Principal, &loan.Status, &due, &loan.CreatedAt, &loan.UpdatedAt); err != nil {
		return nil, err
	}
	if due.Valid {
		loan.DueDate = due.Time
	}
	return &loan, nil
}
