package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const transactionTracer = "transaction-repository"

const transactionColumns = `id, wallet_id, type, amount, description, COALESCE(reference, ''), status, created_at`

type PostgresTransactionRepository struct {
	db DBTX
}

func NewPostgresTransactionRepository(db DBTX) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *models.Transaction) (err error) {
	ctx, done := instrument(ctx, transactionTracer, "CreateTransaction")
	defer func() { done(err) }()

	if tx == nil {
		err = pkgerrors.ErrNilTransaction
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return err
	}

	if !tx.Type.Valid() {
		err = pkgerrors.ErrInvalidTransactionType
		slog.Error("invalid transaction type", "method", "Create", "type", tx.Type, "error", err)
		return err
	}

	if !tx.Status.Valid() {
		err = pkgerrors.ErrInvalidTransactionStatus
		slog.Error("invalid transaction status", "method", "Create", "status", tx.Status, "error", err)
		return err
	}

	if tx.Amount.IsZero() {
		err = pkgerrors.ErrInvalidAmount
		slog.Error("amount must be non-zero", "method", "Create", "error", err)
		return err
	}

	query := `INSERT INTO transactions (id, wallet_id, type, amount, description, reference, status) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`
	err = r.db.QueryRowContext(ctx, query,
		tx.ID, tx.WalletID, tx.Type, tx.Amount, tx.Description, nullString(tx.Reference), tx.Status,
	).Scan(&tx.CreatedAt)
	if err != nil {
		err = classify(err)
		slog.Error("failed to create transaction", "method", "Create", "wallet_id", tx.WalletID, "type", tx.Type, "status", tx.Status, "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	slog.Info("transaction created", "method", "Create", "id", tx.ID, "wallet_id", tx.WalletID, "type", tx.Type, "amount", tx.Amount.String(), "status", tx.Status, "reference", tx.Reference)
	return nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return r.getOne(ctx, "GetTransactionByID", query, id)
}

func (r *PostgresTransactionRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, "LockTransactionByID", query, id)
}

func (r *PostgresTransactionRepository) getOne(ctx context.Context, method, query, id string) (t *models.Transaction, err error) {
	ctx, done := instrument(ctx, transactionTracer, method, attribute.String("transaction_id", id))
	defer func() { done(err) }()

	var tx models.Transaction
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&tx.ID, &tx.WalletID, &tx.Type, &tx.Amount, &tx.Description, &tx.Reference, &tx.Status, &tx.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTransactionNotFound
		slog.Error("transaction not found", "method", method, "transaction_id", id, "error", err)
		return nil, err
	}
	if err != nil {
		err = classify(err)
		slog.Error("failed to get transaction by id", "method", method, "transaction_id", id, "error", err)
		return nil, fmt.Errorf("failed to get transaction by id: %w", err)
	}
	return &tx, nil
}

func (r *PostgresTransactionRepository) UpdateStatus(ctx context.Context, id string, status models.StatusType) (err error) {
	ctx, done := instrument(ctx, transactionTracer, "UpdateTransactionStatus",
		attribute.String("transaction_id", id), attribute.String("status", string(status)))
	defer func() { done(err) }()

	if !status.Valid() || status == models.StatusPending {
		err = pkgerrors.ErrInvalidTransactionStatus
		return err
	}

	query := `UPDATE transactions SET status = $2 WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		err = classify(err)
		slog.Error("failed to update transaction status", "method", "UpdateStatus", "transaction_id", id, "error", err)
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		err = pkgerrors.ErrInvalidTransactionState
		return err
	}

	slog.Info("transaction status updated", "method", "UpdateStatus", "transaction_id", id, "status", status)
	return nil
}

func (r *PostgresTransactionRepository) ListByWallets(ctx context.Context, walletIDs []string, filter repository.TransactionFilter) (txs []models.Transaction, err error) {
	ctx, done := instrument(ctx, transactionTracer, "ListTransactionsByWallets", attribute.Int("wallets", len(walletIDs)))
	defer func() { done(err) }()

	if len(walletIDs) == 0 {
		return []models.Transaction{}, nil
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + transactionColumns + ` FROM transactions WHERE wallet_id = ANY($1)`)
	args := []any{pq.Array(walletIDs)}

	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, pq.Array(types))
		fmt.Fprintf(&b, ` AND type = ANY($%d)`, len(args))
	}

	b.WriteString(` ORDER BY created_at DESC, seq DESC`)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&b, ` OFFSET $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		err = classify(err)
		slog.Error("failed to list transactions", "method", "ListByWallets", "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txs = []models.Transaction{}
	for rows.Next() {
		var tx models.Transaction
		if err = rows.Scan(&tx.ID, &tx.WalletID, &tx.Type, &tx.Amount, &tx.Description, &tx.Reference, &tx.Status, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", classify(err))
	}
	return txs, nil
}

func (r *PostgresTransactionRepository) SumByReferenceAndTypes(ctx context.Context, reference string, types []models.TransactionType) (sum decimal.Decimal, err error) {
	ctx, done := instrument(ctx, transactionTracer, "SumByReferenceAndTypes", attribute.String("reference", reference))
	defer func() { done(err) }()

	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	query := `SELECT COALESCE(SUM(ABS(amount)), 0) FROM transactions WHERE reference = $1 AND type = ANY($2) AND status = 'completed'`
	if err = r.db.QueryRowContext(ctx, query, reference, pq.Array(names)).Scan(&sum); err != nil {
		err = classify(err)
		slog.Error("failed to sum transactions by reference", "method", "SumByReferenceAndTypes", "reference", reference, "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}

func (r *PostgresTransactionRepository) SumCompletedByWallet(ctx context.Context, walletID string) (sum decimal.Decimal, err error) {
	ctx, done := instrument(ctx, transactionTracer, "SumCompletedByWallet", attribute.String("wallet_id", walletID))
	defer func() { done(err) }()

	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE wallet_id = $1 AND status = 'completed'`
	if err = r.db.QueryRowContext(ctx, query, walletID).Scan(&sum); err != nil {
		err = classify(err)
		slog.Error("failed to sum wallet transactions", "method", "SumCompletedByWallet", "wallet_id", walletID, "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}
