package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/lightlabcreation/big-pos-backend/internal/config"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/redis"
	"github.com/lightlabcreation/big-pos-backend/internal/ledger"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const walletTracer = "wallet-service"

const rewardRedemptionReference = "reward-redemption"

type WalletService interface {
	Topup(ctx context.Context, ownerID string, amount decimal.Decimal, requestID string) (*ledger.Result, error)
	GetBalance(ctx context.Context, ownerID string, kind models.WalletKind) (decimal.Decimal, error)
	ListWallets(ctx context.Context, ownerID string) ([]models.Wallet, error)
	GetTransactionHistory(ctx context.Context, ownerID string, filter ledger.HistoryFilter) ([]models.Transaction, error)
	RequestRefund(ctx context.Context, ownerID string, amount decimal.Decimal, reason string) (*ledger.Result, error)
	SettleRefund(ctx context.Context, transactionID string, approve bool) (*ledger.Result, error)
	RedeemRewards(ctx context.Context, ownerID string, units decimal.Decimal) (*ledger.Result, error)
	Reconcile(ctx context.Context, walletID string) (*ledger.Reconciliation, error)
}

type walletService struct {
	uow         repository.UnitOfWork
	engine      *ledger.Engine
	redisClient redis.RedisClient
	cfg         config.LedgerConfig
}

func NewWalletService(
	uow repository.UnitOfWork,
	engine *ledger.Engine,
	redisClient redis.RedisClient,
	cfg config.LedgerConfig,
) *walletService {
	return &walletService{
		uow:         uow,
		engine:      engine,
		redisClient: redisClient,
		cfg:         cfg,
	}
}

// Topup credits the owner's dashboard wallet. A non-empty requestID is
// accepted once.
func (s *walletService) Topup(ctx context.Context, ownerID string, amount decimal.Decimal, requestID string) (*ledger.Result, error) {
	ctx, span := otel.Tracer(walletTracer).Start(ctx, "Topup")
	defer span.End()

	if !amount.IsPositive() {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, pkgerrors.ErrInvalidAmount
	}

	release, err := claimRequest(ctx, s.redisClient, ownerID, requestID)
	if err != nil {
		span.SetStatus(codes.Error, "request rejected")
		return nil, err
	}

	res, err := s.engine.Apply(ctx, ledger.Operation{
		Wallet:      ledger.ByOwner(ownerID, models.WalletDashboard),
		Amount:      amount,
		Type:        models.TypeTopup,
		Description: "wallet topup",
		Reference:   requestID,
	})
	if err != nil {
		release()
		span.RecordError(err)
		span.SetStatus(codes.Error, "topup failed")
		slog.Error("failed to top up wallet", "owner_id", ownerID, "request_id", requestID, "error", err)
		return nil, err
	}

	slog.Info("wallet topped up", "owner_id", ownerID, "amount", amount.String(), "transaction_id", res.Transaction.ID)
	return res, nil
}

func (s *walletService) GetBalance(ctx context.Context, ownerID string, kind models.WalletKind) (decimal.Decimal, error) {
	ctx, span := otel.Tracer(walletTracer).Start(ctx, "GetBalance")
	defer span.End()

	if !kind.Valid() {
		return decimal.Zero, pkgerrors.ErrInvalidWalletKind
	}

	key := BalanceKey(ownerID, kind)
	cached, err := s.redisClient.Get(ctx, key)
	if err == nil {
		if balance, perr := decimal.NewFromString(cached); perr == nil {
			return balance, nil
		}
		slog.Error("failed to parse cached balance", "owner_id", ownerID, "kind", kind, "value", cached)
	} else if !stderrors.Is(err, redis.ErrKeyNotFound) {
		slog.Error("failed to get balance from Redis", "owner_id", ownerID, "error", err)
	}

	wallet, err := s.engine.GetOrCreateWallet(ctx, ownerID, kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "wallet resolution failed")
		slog.Error("failed to get wallet", "owner_id", ownerID, "kind", kind, "error", err)
		return decimal.Zero, err
	}

	// SetNX so a balance written by the notifier after a commit is never
	// replaced by this possibly older read.
	if _, err := s.redisClient.SetNX(ctx, key, wallet.Balance.String(), s.cfg.BalanceCacheTTL); err != nil {
		slog.Error("failed to cache balance", "owner_id", ownerID, "error", err)
	}
	return wallet.Balance, nil
}

func (s *walletService) ListWallets(ctx context.Context, ownerID string) ([]models.Wallet, error) {
	var wallets []models.Wallet
	err := s.uow.View(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		wallets, err = st.Wallets.ListByOwner(ctx, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if wallets == nil {
		wallets = []models.Wallet{}
	}
	return wallets, nil
}

func (s *walletService) GetTransactionHistory(ctx context.Context, ownerID string, filter ledger.HistoryFilter) ([]models.Transaction, error) {
	ctx, span := otel.Tracer(walletTracer).Start(ctx, "GetTransactionHistory")
	defer span.End()

	wallets, err := s.ListWallets(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(wallets))
	for _, w := range wallets {
		ids = append(ids, w.ID)
	}

	txs, err := s.engine.History(ctx, ids, filter)
	if err != nil {
		slog.Error("failed to get transaction history", "owner_id", ownerID, "error", err)
		return nil, err
	}
	slog.Info("transaction history retrieved", "owner_id", ownerID, "count", len(txs))
	return txs, nil
}

// RequestRefund records a pending refund out of the dashboard wallet. The
// balance is checked now but only debited when the refund is approved.
func (s *walletService) RequestRefund(ctx context.Context, ownerID string, amount decimal.Decimal, reason string) (*ledger.Result, error) {
	ctx, span := otel.Tracer(walletTracer).Start(ctx, "RequestRefund")
	defer span.End()

	if !amount.IsPositive() {
		return nil, pkgerrors.ErrInvalidAmount
	}

	res, err := s.engine.Apply(ctx, ledger.Operation{
		Wallet:                 ledger.ByOwner(ownerID, models.WalletDashboard),
		Amount:                 amount.Neg(),
		Type:                   models.TypeRefund,
		Description:            reason,
		RequireSufficientFunds: true,
		Pending:                true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refund request failed")
		return nil, err
	}

	slog.Info("refund requested", "owner_id", ownerID, "amount", amount.String(), "transaction_id", res.Transaction.ID)
	return res, nil
}

func (s *walletService) SettleRefund(ctx context.Context, transactionID string, approve bool) (*ledger.Result, error) {
	var tx *models.Transaction
	err := s.uow.View(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		tx, err = st.Transactions.GetByID(ctx, transactionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if tx.Type != models.TypeRefund {
		return nil, fmt.Errorf("%w: transaction %s is not a refund", pkgerrors.ErrInvalidInput, transactionID)
	}

	return s.engine.SettleTransaction(ctx, transactionID, approve)
}

// RedeemRewards converts gas reward units into dashboard balance in one
// unit: the units are deducted and the wallet credited, or neither.
func (s *walletService) RedeemRewards(ctx context.Context, ownerID string, units decimal.Decimal) (*ledger.Result, error) {
	ctx, span := otel.Tracer(walletTracer).Start(ctx, "RedeemRewards")
	defer span.End()

	if !units.IsPositive() {
		return nil, pkgerrors.ErrInvalidAmount
	}
	amount := units.Mul(s.cfg.RewardUnitValue).Round(2)
	if !amount.IsPositive() {
		return nil, pkgerrors.ErrInvalidAmount
	}

	var res *ledger.Result
	err := s.engine.Execute(ctx, func(ctx context.Context, u *ledger.Unit) error {
		if _, err := u.Gas.DeductRewardUnits(ctx, ownerID, units); err != nil {
			return err
		}
		var err error
		res, err = s.engine.ApplyInUnit(ctx, u, ledger.Operation{
			Wallet:      ledger.ByOwner(ownerID, models.WalletDashboard),
			Amount:      amount,
			Type:        models.TypeCredit,
			Description: fmt.Sprintf("redeemed %s reward units", units.String()),
			Reference:   rewardRedemptionReference,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "redemption failed")
		slog.Error("failed to redeem rewards", "owner_id", ownerID, "units", units.String(), "error", err)
		return nil, err
	}

	slog.Info("rewards redeemed", "owner_id", ownerID, "units", units.String(), "amount", amount.String())
	return res, nil
}

func (s *walletService) Reconcile(ctx context.Context, walletID string) (*ledger.Reconciliation, error) {
	return s.engine.Reconcile(ctx, walletID)
}
