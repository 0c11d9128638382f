package repository

import (
	"context"

	"github.com/lightlabcreation/big-pos-backend/internal/models"
)

type LoanRepository interface {
	Create(ctx context.Context, loan *models.Loan) error
	GetByID(ctx context.Context, id string) (*models.Loan, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Loan, error)
	UpdateStatus(ctx context.Context, id string, status models.LoanStatus) error
	ListByBorrower(ctx context.Context, borrowerID string) ([]models.Loan, error)
}
