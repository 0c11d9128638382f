package repository

import "context"

// Stores groups the repositories bound to one unit of work.
type Stores struct {
	Wallets      WalletRepository
	Transactions TransactionRepository
	Loans        LoanRepository
	Orders       OrderRepository
	Products     ProductRepository
	Gas          GasRepository
	Profiles     ProfileRepository
}

// UnitOfWork runs fn against stores that share one storage transaction.
// Do commits when fn returns nil and rolls back otherwise. View runs fn
// against a read-only consistent snapshot.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
	View(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
