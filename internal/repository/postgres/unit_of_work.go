package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lightlabcreation/big-pos-backend/internal/repository"
)

// UnitOfWork runs repository calls inside one database transaction.
// Writers lock the rows they mutate with SELECT ... FOR UPDATE, so READ
// COMMITTED is enough for Do; View reads from one REPEATABLE READ snapshot.
type UnitOfWork struct {
	db *sql.DB
}

var _ repository.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(db *sql.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, s repository.Stores) error) error {
	return u.run(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

func (u *UnitOfWork) View(ctx context.Context, fn func(ctx context.Context, s repository.Stores) error) error {
	return u.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (u *UnitOfWork) run(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, s repository.Stores) error) error {
	tx, err := u.db.BeginTx(ctx, opts)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "UnitOfWork", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}

	if err = fn(ctx, NewStores(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "method", "UnitOfWork", "error", rbErr)
			return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "UnitOfWork", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	return nil
}

// NewStores binds every repository to db, which may be a pool or an open
// transaction.
func NewStores(db DBTX) repository.Stores {
	return repository.Stores{
		Wallets:      NewPostgresWalletRepository(db),
		Transactions: NewPostgresTransactionRepository(db),
		Loans:        NewPostgresLoanRepository(db),
		Orders:       NewPostgresOrderRepository(db),
		Products:     NewPostgresProductRepository(db),
		Gas:          NewPostgresGasRepository(db),
		Profiles:     NewPostgresProfileRepository(db),
	}
}
