package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/lightlabcreation/big-pos-backend/internal/models"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const gasTracer = "gas-repository"

type PostgresGasRepository struct {
	db DBTX
}

func NewPostgresGasRepository(db DBTX) *PostgresGasRepository {
	return &PostgresGasRepository{db: db}
}

func (r *PostgresGasRepository) CreateTopup(ctx context.Context, topup *models.GasTopup) (err error) {
	ctx, done := instrument(ctx, gasTracer, "CreateGasTopup")
	defer func() { done(err) }()

	if topup == nil || topup.MeterNumber == "" {
		err = pkgerrors.ErrInvalidInput
		return err
	}

	query := `INSERT INTO gas_topups (id, consumer_id, meter_number, amount, units) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`
	err = r.db.QueryRowContext(ctx, query, topup.ID, topup.ConsumerID, topup.MeterNumber, topup.Amount, topup.Units).Scan(&topup.CreatedAt)
	if err != nil {
		err = classify(err)
		slog.Error("failed to create gas topup", "method", "CreateTopup", "consumer_id", topup.ConsumerID, "error", err)
		return fmt.Errorf("failed to create gas topup: %w", err)
	}

	slog.Info("gas topup created", "method", "CreateTopup", "topup_id", topup.ID, "consumer_id", topup.ConsumerID, "units", topup.Units.String())
	return nil
}

func (r *PostgresGasRepository) AddRewardUnits(ctx context.Context, consumerID string, units decimal.Decimal) (total decimal.Decimal, err error) {
	ctx, done := instrument(ctx, gasTracer, "AddRewardUnits", attribute.String("consumer_id", consumerID))
	defer func() { done(err) }()

	if !units.IsPositive() {
		err = pkgerrors.ErrInvalidAmount
		return decimal.Zero, err
	}

	query := `
		INSERT INTO gas_rewards (consumer_id, units)
		VALUES ($1, $2)
		ON CONFLICT (consumer_id)
		DO UPDATE SET units = gas_rewards.units + EXCLUDED.units, updated_at = NOW()
		RETURNING units
		`
	if err = r.db.QueryRowContext(ctx, query, consumerID, units).Scan(&total); err != nil {
		err = classify(err)
		slog.Error("failed to add reward units", "method", "AddRewardUnits", "consumer_id", consumerID, "error", err)
		return decimal.Zero, fmt.Errorf("failed to add reward units: %w", err)
	}
	return total, nil
}

func (r *PostgresGasRepository) RecordAccrual(ctx context.Context, topupID, consumerID string, units decimal.Decimal) (recorded bool, err error) {
	ctx, done := instrument(ctx, gasTracer, "RecordAccrual", attribute.String("topup_id", topupID))
	defer func() { done(err) }()

	if topupID == "" || consumerID == "" {
		err = pkgerrors.ErrInvalidInput
		return false, err
	}
	if !units.IsPositive() {
		err = pkgerrors.ErrInvalidAmount
		return false, err
	}

	query := `INSERT INTO gas_reward_accruals (topup_id, consumer_id, units) VALUES ($1, $2, $3) ON CONFLICT (topup_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, topupID, consumerID, units)
	if err != nil {
		err = classify(err)
		slog.Error("failed to record reward accrual", "method", "RecordAccrual", "topup_id", topupID, "error", err)
		return false, fmt.Errorf("failed to record reward accrual: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *PostgresGasRepository) DeductRewardUnits(ctx context.Context, consumerID string, units decimal.Decimal) (remaining decimal.Decimal, err error) {
	ctx, done := instrument(ctx, gasTracer, "DeductRewardUnits", attribute.String("consumer_id", consumerID))
	defer func() { done(err) }()

	if !units.IsPositive() {
		err = pkgerrors.ErrInvalidAmount
		return decimal.Zero, err
	}

	query := `
		UPDATE gas_rewards
		SET units = units - $2, updated_at = NOW()
		WHERE consumer_id = $1
		AND units >= $2
		RETURNING units
		`
	err = r.db.QueryRowContext(ctx, query, consumerID, units).Scan(&remaining)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrInsufficientRewards
		return decimal.Zero, err
	}
	if err != nil {
		err = classify(err)
		return decimal.Zero, fmt.Errorf("failed to deduct reward units: %w", err)
	}
	return remaining, nil
}

func (r *PostgresGasRepository) GetReward(ctx context.Context, consumerID string) (g *models.GasReward, err error) {
	ctx, done := instrument(ctx, gasTracer, "GetReward", attribute.String("consumer_id", consumerID))
	defer func() { done(err) }()

	reward := models.GasReward{ConsumerID: consumerID, Units: decimal.Zero}
	err = r.db.QueryRowContext(ctx, `SELECT units, updated_at FROM gas_rewards WHERE consumer_id = $1`, consumerID).
		Scan(&reward.Units, &reward.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = nil
		return &reward, nil
	}
	if err != nil {
		err = classify(err)
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	return &reward, nil
}
