package repository

import (
	"context"

	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/shopspring/decimal"
)

type TransactionFilter struct {
	Types  []models.TransactionType
	Offset int
	Limit  int
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, id string, status models.StatusType) error
	ListByWallets(ctx context.Context, walletIDs []string, filter TransactionFilter) ([]models.Transaction, error)
	// SumByReferenceAndTypes returns the sum of absolute amounts of completed
	// transactions carrying reference and one of types.
	SumByReferenceAndTypes(ctx context.Context, reference string, types []models.TransactionType) (decimal.Decimal, error)
	SumCompletedByWallet(ctx context.Context, walletID string) (decimal.Decimal, error)
}
