package repository

import (
	"context"

	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/shopspring/decimal"
)

type WalletRepository interface {
	// EnsureExists creates the (owner, kind) wallet unless it already exists.
	// Concurrent callers never produce two wallets for one pair.
	EnsureExists(ctx context.Context, ownerID string, kind models.WalletKind, currency string) error
	GetByOwner(ctx context.Context, ownerID string, kind models.WalletKind) (*models.Wallet, error)
	// GetByOwnerForUpdate and GetByIDForUpdate lock the row until the
	// surrounding unit ends.
	GetByOwnerForUpdate(ctx context.Context, ownerID string, kind models.WalletKind) (*models.Wallet, error)
	GetByID(ctx context.Context, id string) (*models.Wallet, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Wallet, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Wallet, error)
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error
}
