package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const walletTracer = "wallet-repository"

const walletColumns = `id, owner_id, kind, balance, currency, created_at, updated_at`

type PostgresWalletRepository struct {
	db DBTX
}

func NewPostgresWalletRepository(db DBTX) *PostgresWalletRepository {
	return &PostgresWalletRepository{db: db}
}

func (r *PostgresWalletRepository) EnsureExists(ctx context.Context, ownerID string, kind models.WalletKind, currency string) (err error) {
	ctx, done := instrument(ctx, walletTracer, "EnsureWallet",
		attribute.String("owner_id", ownerID), attribute.String("kind", string(kind)))
	defer func() { done(err) }()

	if !kind.Valid() {
		err = pkgerrors.ErrInvalidWalletKind
		slog.Error("invalid wallet kind", "method", "EnsureExists", "kind", kind, "error", err)
		return err
	}

	query := `INSERT INTO wallets (id, owner_id, kind, balance, currency) VALUES ($1, $2, $3, 0, $4) ON CONFLICT (owner_id, kind) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, uuid.NewString(), ownerID, kind, currency)
	if err != nil {
		err = classify(err)
		slog.Error("failed to ensure wallet", "method", "EnsureExists", "owner_id", ownerID, "kind", kind, "error", err)
		return fmt.Errorf("failed to ensure wallet: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("wallet created", "method", "EnsureExists", "owner_id", ownerID, "kind", kind, "currency", currency)
	}
	return nil
}

func (r *PostgresWalletRepository) GetByOwner(ctx context.Context, ownerID string, kind models.WalletKind) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 AND kind = $2`
	return r.getOne(ctx, "GetWalletByOwner", query, ownerID, kind)
}

func (r *PostgresWalletRepository) GetByOwnerForUpdate(ctx context.Context, ownerID string, kind models.WalletKind) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 AND kind = $2 FOR UPDATE`
	return r.getOne(ctx, "LockWalletByOwner", query, ownerID, kind)
}

func (r *PostgresWalletRepository) GetByID(ctx context.Context, id string) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	return r.getOne(ctx, "GetWalletByID", query, id)
}

func (r *PostgresWalletRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, "LockWalletByID", query, id)
}

func (r *PostgresWalletRepository) getOne(ctx context.Context, method, query string, args ...any) (w *models.Wallet, err error) {
	ctx, done := instrument(ctx, walletTracer, method)
	defer func() { done(err) }()

	var wallet models.Wallet
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&wallet.ID, &wallet.OwnerID, &wallet.Kind, &wallet.Balance, &wallet.Currency, &wallet.CreatedAt, &wallet.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrWalletNotFound
		slog.Debug("wallet not found", "method", method, "args", args)
		return nil, err
	}
	if err != nil {
		err = classify(err)
		slog.Error("failed to get wallet", "method", method, "args", args, "error", err)
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *PostgresWalletRepository) ListByOwner(ctx context.Context, ownerID string) (wallets []models.Wallet, err error) {
	ctx, done := instrument(ctx, walletTracer, "ListWalletsByOwner", attribute.String("owner_id", ownerID))
	defer func() { done(err) }()

	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 ORDER BY kind`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		err = classify(err)
		slog.Error("failed to list wallets", "method", "ListByOwner", "owner_id", ownerID, "error", err)
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var w models.Wallet
		if err = rows.Scan(&w.ID, &w.OwnerID, &w.Kind, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", classify(err))
	}
	return wallets, nil
}

func (r *PostgresWalletRepository) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) (err error) {
	ctx, done := instrument(ctx, walletTracer, "UpdateWalletBalance", attribute.String("wallet_id", id))
	defer func() { done(err) }()

	query := `UPDATE wallets SET balance = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, balance)
	if err != nil {
		err = classify(err)
		slog.Error("failed to update balance", "method", "UpdateBalance", "wallet_id", id, "error", err)
		return fmt.Errorf("failed to update balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		err = pkgerrors.ErrWalletNotFound
		return err
	}
	return nil
}
