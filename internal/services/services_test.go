package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/lightlabcreation/big-pos-backend/internal/config"
	kafkamocks "github.com/lightlabcreation/big-pos-backend/internal/infrastructure/kafka/mocks"
	redismocks "github.com/lightlabcreation/big-pos-backend/internal/infrastructure/redis/mocks"
	"github.com/lightlabcreation/big-pos-backend/internal/ledger"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
	"github.com/lightlabcreation/big-pos-backend/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	consumerID      = "c-1"
	otherConsumerID = "c-2"
	retailerID      = "r-1"
	adminID         = "a-1"
)

type fixture struct {
	store    *memory.Store
	engine   *ledger.Engine
	redis    *redismocks.RedisClient
	producer *kafkamocks.KafkaProducer
	cfg      config.LedgerConfig
}

func testLedgerConfig() config.LedgerConfig {
	return config.LedgerConfig{
		MaxAttempts:      3,
		DefaultCurrency:  "RWF",
		LoanInstallments: 4,
		BalanceCacheTTL:  5 * time.Minute,
		GasUnitPrice:     decimal.NewFromInt(100),
		RewardRate:       decimal.RequireFromString("0.10"),
		RewardUnitValue:  decimal.NewFromInt(100),
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	store.AddProfile(models.Profile{ID: consumerID, Username: "alice", PasswordHash: "x", Role: models.RoleConsumer})
	store.AddProfile(models.Profile{ID: otherConsumerID, Username: "bob", PasswordHash: "x", Role: models.RoleConsumer})
	store.AddProfile(models.Profile{ID: retailerID, Username: "shop", PasswordHash: "x", Role: models.RoleRetailer})
	store.AddProfile(models.Profile{ID: adminID, Username: "root", PasswordHash: "x", Role: models.RoleAdmin})

	cfg := testLedgerConfig()
	return &fixture{
		store:    store,
		engine:   ledger.New(store, ledger.WithRetryInterval(time.Millisecond), ledger.WithCurrency(cfg.DefaultCurrency)),
		redis:    new(redismocks.RedisClient),
		producer: new(kafkamocks.KafkaProducer),
		cfg:      cfg,
	}
}

func (f *fixture) fund(t *testing.T, ownerID, amount string) {
	t.Helper()
	_, err := f.engine.Apply(context.Background(), ledger.Operation{
		Wallet: ledger.ByOwner(ownerID, models.WalletDashboard),
		Amount: dec(amount),
		Type:   models.TypeTopup,
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, ownerID string, kind models.WalletKind) decimal.Decimal {
	t.Helper()
	w, err := f.engine.GetOrCreateWallet(context.Background(), ownerID, kind)
	require.NoError(t, err)
	return w.Balance
}

func (f *fixture) rewards(t *testing.T, ownerID string) decimal.Decimal {
	t.Helper()
	var units decimal.Decimal
	err := f.store.View(context.Background(), func(ctx context.Context, st repository.Stores) error {
		r, err := st.Gas.GetReward(ctx, ownerID)
		if err != nil {
			return err
		}
		units = r.Units
		return nil
	})
	require.NoError(t, err)
	return units
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}
