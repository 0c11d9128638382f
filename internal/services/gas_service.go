package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lightlabcreation/big-pos-backend/internal/config"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/kafka"
	"github.com/lightlabcreation/big-pos-backend/internal/ledger"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const gasTracer = "gas-service"

// GasPurchase is the outcome of BuyGas. RewardPending is set when the
// reward accrual was handed off for a later retry.
type GasPurchase struct {
	Topup         models.GasTopup    `json:"topup"`
	Transaction   models.Transaction `json:"transaction"`
	Balance       decimal.Decimal    `json:"balance"`
	RewardUnits   decimal.Decimal    `json:"reward_units"`
	RewardPending bool               `json:"reward_pending"`
}

type RewardAccrual struct {
	ConsumerID string          `json:"consumer_id"`
	TopupID    string          `json:"topup_id"`
	Units      decimal.Decimal `json:"units"`
	CreatedAt  string          `json:"created_at"`
}

type GasService interface {
	BuyGas(ctx context.Context, consumerID, meterNumber string, amount decimal.Decimal) (*GasPurchase, error)
	AccrueReward(ctx context.Context, consumerID, topupID string, units decimal.Decimal) (decimal.Decimal, error)
	HandleRewardAccrual(ctx context.Context, key, value []byte) error
	GetRewards(ctx context.Context, consumerID string) (*models.GasReward, error)
}

type gasService struct {
	uow      repository.UnitOfWork
	engine   *ledger.Engine
	producer kafka.KafkaProducer
	cfg      config.LedgerConfig
}

func NewGasService(uow repository.UnitOfWork, engine *ledger.Engine, producer kafka.KafkaProducer, cfg config.LedgerConfig) *gasService {
	return &gasService{uow: uow, engine: engine, producer: producer, cfg: cfg}
}

// BuyGas debits the dashboard wallet and records the topup in one unit.
// The reward accrual that follows is advisory: if it fails the purchase
// still stands and the accrual is queued on Kafka.
func (s *gasService) BuyGas(ctx context.Context, consumerID, meterNumber string, amount decimal.Decimal) (*GasPurchase, error) {
	ctx, span := otel.Tracer(gasTracer).Start(ctx, "BuyGas")
	defer span.End()

	if !amount.IsPositive() {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, pkgerrors.ErrInvalidAmount
	}
	if meterNumber == "" {
		span.SetStatus(codes.Error, "missing meter number")
		return nil, fmt.Errorf("%w: meter number is required", pkgerrors.ErrInvalidInput)
	}
	if !s.cfg.GasUnitPrice.IsPositive() {
		return nil, fmt.Errorf("%w: gas unit price is not configured", pkgerrors.ErrInternal)
	}

	topup := &models.GasTopup{
		ID:          uuid.NewString(),
		ConsumerID:  consumerID,
		MeterNumber: meterNumber,
		Amount:      amount,
		Units:       amount.DivRound(s.cfg.GasUnitPrice, 4),
	}

	var debit *ledger.Result
	err := s.engine.Execute(ctx, func(ctx context.Context, u *ledger.Unit) error {
		var err error
		debit, err = s.engine.ApplyInUnit(ctx, u, ledger.Operation{
			Wallet:                 ledger.ByOwner(consumerID, models.WalletDashboard),
			Amount:                 amount.Neg(),
			Type:                   models.TypeDebit,
			Description:            fmt.Sprintf("gas topup for meter %s", meterNumber),
			Reference:              topup.ID,
			RequireSufficientFunds: true,
		})
		if err != nil {
			return err
		}
		return u.Gas.CreateTopup(ctx, topup)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gas purchase failed")
		slog.Error("failed to buy gas", "consumer_id", consumerID, "meter_number", meterNumber, "error", err)
		return nil, err
	}

	purchase := &GasPurchase{
		Topup:       *topup,
		Transaction: debit.Transaction,
		Balance:     debit.Wallet.Balance,
		RewardUnits: topup.Units.Mul(s.cfg.RewardRate).Round(4),
	}

	if purchase.RewardUnits.IsPositive() {
		if _, err := s.AccrueReward(ctx, consumerID, topup.ID, purchase.RewardUnits); err != nil {
			span.RecordError(err)
			slog.Error("reward accrual failed, queueing retry", "consumer_id", consumerID, "topup_id", topup.ID,
				"units", purchase.RewardUnits.String(), "error", err)
			purchase.RewardPending = true
			s.queueAccrual(ctx, RewardAccrual{
				ConsumerID: consumerID,
				TopupID:    topup.ID,
				Units:      purchase.RewardUnits,
				CreatedAt:  time.Now().UTC().Format(time.RFC3339),
			})
		}
	}

	slog.Info("gas purchased", "consumer_id", consumerID, "topup_id", topup.ID, "units", topup.Units.String(),
		"reward_units", purchase.RewardUnits.String())
	return purchase, nil
}

// AccrueReward credits the reward of one topup. A topup that was already
// accrued is skipped, so redelivered events never count twice.
func (s *gasService) AccrueReward(ctx context.Context, consumerID, topupID string, units decimal.Decimal) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.engine.Execute(ctx, func(ctx context.Context, u *ledger.Unit) error {
		recorded, err := u.Gas.RecordAccrual(ctx, topupID, consumerID, units)
		if err != nil {
			return err
		}
		if !recorded {
			slog.Info("reward already accrued", "consumer_id", consumerID, "topup_id", topupID)
			reward, err := u.Gas.GetReward(ctx, consumerID)
			if err != nil {
				return err
			}
			total = reward.Units
			return nil
		}
		total, err = u.Gas.AddRewardUnits(ctx, consumerID, units)
		return err
	})
	return total, err
}

// HandleRewardAccrual consumes the reward-accruals topic.
func (s *gasService) HandleRewardAccrual(ctx context.Context, _, value []byte) error {
	var event RewardAccrual
	if err := json.Unmarshal(value, &event); err != nil {
		// A malformed event can never succeed; drop it.
		slog.Error("failed to unmarshal reward accrual", "error", err)
		return nil
	}
	if event.ConsumerID == "" || event.TopupID == "" || !event.Units.IsPositive() {
		slog.Error("invalid reward accrual event", "consumer_id", event.ConsumerID, "topup_id", event.TopupID)
		return nil
	}

	total, err := s.AccrueReward(ctx, event.ConsumerID, event.TopupID, event.Units)
	if err != nil {
		return err
	}
	slog.Info("reward accrued from queue", "consumer_id", event.ConsumerID, "topup_id", event.TopupID, "total_units", total.String())
	return nil
}

func (s *gasService) GetRewards(ctx context.Context, consumerID string) (*models.GasReward, error) {
	var reward *models.GasReward
	err := s.uow.View(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		reward, err = st.Gas.GetReward(ctx, consumerID)
		return err
	})
	return reward, err
}

func (s *gasService) queueAccrual(ctx context.Context, event RewardAccrual) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal reward accrual", "topup_id", event.TopupID, "error", err)
		return
	}
	if err := s.producer.Send(context.WithoutCancel(ctx), kafka.TopicRewardAccruals, event.ConsumerID, eventBytes); err != nil {
		slog.Error("failed to queue reward accrual", "consumer_id", event.ConsumerID, "topup_id", event.TopupID, "error", err)
	}
}
