package ledger

import (
	"context"
	"fmt"

	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

type HistoryFilter struct {
	Types  []models.TransactionType
	Offset int
	Limit  int
}

// History returns the transactions of walletIDs, newest first.
func (e *Engine) History(ctx context.Context, walletIDs []string, filter HistoryFilter) ([]models.Transaction, error) {
	if filter.Offset < 0 || filter.Limit < 0 {
		return nil, fmt.Errorf("%w: offset and limit must not be negative", pkgerrors.ErrInvalidInput)
	}
	for _, t := range filter.Types {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %q", pkgerrors.ErrInvalidTransactionType, t)
		}
	}
	if len(walletIDs) == 0 {
		return []models.Transaction{}, nil
	}

	var out []models.Transaction
	err := e.uow.View(ctx, func(ctx context.Context, s repository.Stores) error {
		var err error
		out, err = s.Transactions.ListByWallets(ctx, walletIDs, repository.TransactionFilter{
			Types:  filter.Types,
			Offset: filter.Offset,
			Limit:  filter.Limit,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SumByReferenceAndTypes sums the absolute amounts of completed
// transactions that carry reference and one of types.
func (e *Engine) SumByReferenceAndTypes(ctx context.Context, reference string, types []models.TransactionType) (decimal.Decimal, error) {
	if reference == "" || len(types) == 0 {
		return decimal.Zero, nil
	}
	sum := decimal.Zero
	err := e.uow.View(ctx, func(ctx context.Context, s repository.Stores) error {
		var err error
		sum, err = s.Transactions.SumByReferenceAndTypes(ctx, reference, types)
		return err
	})
	return sum, err
}
