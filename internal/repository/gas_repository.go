package repository

import (
	"context"

	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/shopspring/decimal"
)

type GasRepository interface {
	CreateTopup(ctx context.Context, topup *models.GasTopup) error
	AddRewardUnits(ctx context.Context, consumerID string, units decimal.Decimal) (decimal.Decimal, error)
	// RecordAccrual marks the reward of a topup as accrued. It reports false
	// when the topup was already recorded.
	RecordAccrual(ctx context.Context, topupID, consumerID string, units decimal.Decimal) (bool, error)
	// DeductRewardUnits fails with ErrInsufficientRewards rather than going
	// below zero.
	DeductRewardUnits(ctx context.Context, consumerID string, units decimal.Decimal) (decimal.Decimal, error)
	GetReward(ctx context.Context, consumerID string) (*models.GasReward, error)
}
