package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lightlabcreation/big-pos-backend/internal/ledger"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository/memory"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	consumerID = "consumer-1"
	retailerID = "retailer-1"
)

type notifierMock struct {
	mock.Mock
}

func (m *notifierMock) Notify(ctx context.Context, entries []ledger.Result) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func newEngine(t *testing.T, opts ...ledger.Option) (*memory.Store, *ledger.Engine) {
	t.Helper()
	store := memory.New()
	store.AddProfile(models.Profile{ID: consumerID, Username: "alice", PasswordHash: "x", Role: models.RoleConsumer})
	store.AddProfile(models.Profile{ID: retailerID, Username: "shop", PasswordHash: "x", Role: models.RoleRetailer})
	store.AddProfile(models.Profile{ID: "admin-1", Username: "root", PasswordHash: "x", Role: models.RoleAdmin})
	opts = append([]ledger.Option{ledger.WithRetryInterval(time.Millisecond)}, opts...)
	return store, ledger.New(store, opts...)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func topup(t *testing.T, e *ledger.Engine, owner string, amount string) {
	t.Helper()
	_, err := e.Apply(context.Background(), ledger.Operation{
		Wallet: ledger.ByOwner(owner, models.WalletDashboard),
		Amount: dec(amount),
		Type:   models.TypeTopup,
	})
	require.NoError(t, err)
}

func balanceOf(t *testing.T, e *ledger.Engine, owner string, kind models.WalletKind) decimal.Decimal {
	t.Helper()
	w, err := e.GetOrCreateWallet(context.Background(), owner, kind)
	require.NoError(t, err)
	return w.Balance
}

func TestApply_CreatesWalletAndRecordsTransaction(t *testing.T) {
	store, e := newEngine(t)

	res, err := e.Apply(context.Background(), ledger.Operation{
		Wallet:      ledger.ByOwner(consumerID, models.WalletDashboard),
		Amount:      dec("5000"),
		Type:        models.TypeTopup,
		Description: "mobile money topup",
	})
	require.NoError(t, err)

	assertAmount(t, "5000", res.Wallet.Balance)
	assert.Equal(t, consumerID, res.Wallet.OwnerID)
	assert.Equal(t, "RWF", res.Wallet.Currency)
	assert.Equal(t, models.StatusCompleted, res.Transaction.Status)
	assert.Equal(t, res.Wallet.ID, res.Transaction.WalletID)

	txs := store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, models.TypeTopup, txs[0].Type)
	assertAmount(t, "5000", txs[0].Amount)
}

func TestApply_Validation(t *testing.T) {
	tests := []struct {
		name    string
		op      ledger.Operation
		wantErr error
	}{
		{
			name:    "zero amount",
			op:      ledger.Operation{Wallet: ledger.ByOwner(consumerID, models.WalletDashboard), Type: models.TypeTopup},
			wantErr: pkgerrors.ErrInvalidAmount,
		},
		{
			name:    "finer than stored scale",
			op:      ledger.Operation{Wallet: ledger.ByOwner(consumerID, models.WalletDashboard), Amount: dec("0.00001"), Type: models.TypeTopup},
			wantErr: pkgerrors.ErrInvalidAmount,
		},
		{
			name:    "unknown type",
			op:      ledger.Operation{Wallet: ledger.ByOwner(consumerID, models.WalletDashboard), Amount: dec("1"), Type: "bonus"},
			wantErr: pkgerrors.ErrInvalidTransactionType,
		},
		{
			name:    "owner without profile",
			op:      ledger.Operation{Wallet: ledger.ByOwner("ghost", models.WalletDashboard), Amount: dec("1"), Type: models.TypeTopup},
			wantErr: pkgerrors.ErrWalletResolutionFailed,
		},
		{
			name:    "role without wallets",
			op:      ledger.Operation{Wallet: ledger.ByOwner("admin-1", models.WalletDashboard), Amount: dec("1"), Type: models.TypeTopup},
			wantErr: pkgerrors.ErrWalletResolutionFailed,
		},
		{
			name:    "unknown wallet id",
			op:      ledger.Operation{Wallet: ledger.ByID("missing"), Amount: dec("1"), Type: models.TypeTopup},
			wantErr: pkgerrors.ErrWalletResolutionFailed,
		},
		{
			name:    "unknown wallet kind",
			op:      ledger.Operation{Wallet: ledger.ByOwner(consumerID, "savings"), Amount: dec("1"), Type: models.TypeTopup},
			wantErr: pkgerrors.ErrWalletResolutionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, e := newEngine(t)
			res, err := e.Apply(context.Background(), tt.op)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Empty(t, store.Transactions())
		})
	}
}

func TestApply_InsufficientFundsLeavesNoTrace(t *testing.T) {
	store, e := newEngine(t)
	topup(t, e, consumerID, "1000")

	res, err := e.Apply(context.Background(), ledger.Operation{
		Wallet:                 ledger.ByOwner(consumerID, models.WalletDashboard),
		Amount:                 dec("-1500"),
		Type:                   models.TypePurchase,
		RequireSufficientFunds: true,
	})

	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
	assert.Nil(t, res)
	assertAmount(t, "1000", balanceOf(t, e, consumerID, models.WalletDashboard))
	assert.Len(t, store.Transactions(), 1)
}

func TestApply_SubScaleDebitKeepsBalanceOnStoredScale(t *testing.T) {
	store, e := newEngine(t)
	topup(t, e, consumerID, "10.0001")

	_, err := e.Apply(context.Background(), ledger.Operation{
		Wallet:                 ledger.ByOwner(consumerID, models.WalletDashboard),
		Amount:                 dec("-0.00005"),
		Type:                   models.TypeDebit,
		RequireSufficientFunds: true,
	})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)

	// Trailing zeros within the scale are fine.
	_, err = e.Apply(context.Background(), ledger.Operation{
		Wallet: ledger.ByOwner(consumerID, models.WalletDashboard),
		Amount: dec("-0.000100"),
		Type:   models.TypeDebit,
	})
	require.NoError(t, err)

	balance := balanceOf(t, e, consumerID, models.WalletDashboard)
	assertAmount(t, "10", balance)
	assert.True(t, balance.Equal(balance.Truncate(ledger.AmountScale)))
	assert.Len(t, store.Transactions(), 2)
}

func TestTransfer_RejectsSubScaleAmount(t *testing.T) {
	store, e := newEngine(t)
	topup(t, e, consumerID, "100")

	_, err := e.Transfer(context.Background(), ledger.TransferRequest{
		From:       ledger.ByOwner(consumerID, models.WalletDashboard),
		To:         ledger.ByOwner(consumerID, models.WalletCredit),
		Amount:     dec("1.23456"),
		DebitType:  models.TypeLoanRepayment,
		CreditType: models.TypeLoanRepaymentReplenish,
		Reference:  "loan-1",
	})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)
	assertAmount(t, "100", balanceOf(t, e, consumerID, models.WalletDashboard))
	assert.Len(t, store.Transactions(), 1)
}

func TestApply_DebitWithoutSufficiencyCheck(t *testing.T) {
	_, e := newEngine(t)

	res, err := e.Apply(context.Background(), ledger.Operation{
		Wallet: ledger.ByOwner(consumerID, models.WalletCredit),
		Amount: dec("-200"),
		Type:   models.TypeDebit,
	})
	require.NoError(t, err)
	assertAmount(t, "-200", res.Wallet.Balance)
}

func TestApply_ConcurrentDebitsCannotDoubleSpend(t *testing.T) {
	_, e := newEngine(t)
	topup(t, e, consumerID, "1000")

	const workers = 2
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Apply(context.Background(), ledger.Operation{
				Wallet:                 ledger.ByOwner(consumerID, models.WalletDashboard),
				Amount:                 dec("-600"),
				Type:                   models.TypePurchase,
				RequireSufficientFunds: true,
			})
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds):
			insufficient++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	assertAmount(t, "400", balanceOf(t, e, consumerID, models.WalletDashboard))
}

func TestBalanceMatchesCompletedTransactions(t *testing.T) {
	store, e := newEngine(t)
	ctx := context.Background()
	dashboard := ledger.ByOwner(consumerID, models.WalletDashboard)

	topup(t, e, consumerID, "5000")
	_, err := e.Apply(ctx, ledger.Operation{Wallet: dashboard, Amount: dec("-1200.50"), Type: models.TypePurchase, RequireSufficientFunds: true})
	require.NoError(t, err)
	_, err = e.Apply(ctx, ledger.Operation{Wallet: dashboard, Amount: dec("-9000"), Type: models.TypePurchase, RequireSufficientFunds: true})
	require.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
	_, err = e.Apply(ctx, ledger.Operation{Wallet: dashboard, Amount: dec("-300"), Type: models.TypeRefund, RequireSufficientFunds: true, Pending: true})
	require.NoError(t, err)
	_, err = e.Transfer(ctx, ledger.TransferRequest{
		From:       dashboard,
		To:         ledger.ByOwner(consumerID, models.WalletCredit),
		Amount:     dec("700"),
		DebitType:  models.TypeLoanRepayment,
		CreditType: models.TypeLoanRepaymentReplenish,
		Reference:  "loan-1",
	})
	require.NoError(t, err)

	wallets := map[string]decimal.Decimal{}
	for _, tx := range store.Transactions() {
		if tx.Status != models.StatusCompleted {
			continue
		}
		sum, ok := wallets[tx.WalletID]
		if !ok {
			sum = decimal.Zero
		}
		wallets[tx.WalletID] = sum.Add(tx.Amount)
	}
	require.Len(t, wallets, 2)

	for walletID, sum := range wallets {
		rec, err := e.Reconcile(ctx, walletID)
		require.NoError(t, err)
		assert.True(t, rec.Consistent)
		assert.True(t, sum.Equal(rec.Balance), "wallet %s: sum %s, balance %s", walletID, sum, rec.Balance)
	}
	assertAmount(t, "3099.50", balanceOf(t, e, consumerID, models.WalletDashboard))
	assertAmount(t, "700", balanceOf(t, e, consumerID, models.WalletCredit))
}

func TestTransfer_FailedDebitLeavesCreditUntouched(t *testing.T) {
	store, e := newEngine(t)
	topup(t, e, consumerID, "100")
	before := len(store.Transactions())

	res, err := e.Transfer(context.Background(), ledger.TransferRequest{
		From:       ledger.ByOwner(consumerID, models.WalletDashboard),
		To:         ledger.ByOwner(consumerID, models.WalletCredit),
		Amount:     dec("150"),
		DebitType:  models.TypeLoanRepayment,
		CreditType: models.TypeLoanRepaymentReplenish,
		Reference:  "loan-1",
	})

	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
	assert.Nil(t, res)
	assert.Len(t, store.Transactions(), before)
	assertAmount(t, "100", balanceOf(t, e, consumerID, models.WalletDashboard))
	assertAmount(t, "0", balanceOf(t, e, consumerID, models.WalletCredit))
}

func TestTransfer_MovesFundsBetweenOwners(t *testing.T) {
	_, e := newEngine(t)
	topup(t, e, consumerID, "500")

	res, err := e.Transfer(context.Background(), ledger.TransferRequest{
		From:       ledger.ByOwner(consumerID, models.WalletDashboard),
		To:         ledger.ByOwner(retailerID, models.WalletPOS),
		Amount:     dec("120"),
		DebitType:  models.TypePurchase,
		CreditType: models.TypeCredit,
		Reference:  "order-1",
	})
	require.NoError(t, err)

	assertAmount(t, "-120", res.Debit.Transaction.Amount)
	assertAmount(t, "120", res.Credit.Transaction.Amount)
	assert.Equal(t, "order-1", res.Debit.Transaction.Reference)
	assert.Equal(t, "order-1", res.Credit.Transaction.Reference)
	assertAmount(t, "380", balanceOf(t, e, consumerID, models.WalletDashboard))
	assertAmount(t, "120", balanceOf(t, e, retailerID, models.WalletPOS))
}

func TestTransfer_Validation(t *testing.T) {
	_, e := newEngine(t)
	topup(t, e, consumerID, "500")
	dashboard := ledger.ByOwner(consumerID, models.WalletDashboard)

	_, err := e.Transfer(context.Background(), ledger.TransferRequest{
		From: dashboard, To: ledger.ByOwner(consumerID, models.WalletCredit),
		Amount: dec("-5"), DebitType: models.TypeDebit, CreditType: models.TypeCredit,
	})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)

	_, err = e.Transfer(context.Background(), ledger.TransferRequest{
		From: dashboard, To: dashboard,
		Amount: dec("5"), DebitType: models.TypeDebit, CreditType: models.TypeCredit,
	})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestExecute_RetriesStorageConflicts(t *testing.T) {
	store, e := newEngine(t)
	store.FailNext(pkgerrors.ErrStorageConflict, pkgerrors.ErrStorageConflict)

	res, err := e.Apply(context.Background(), ledger.Operation{
		Wallet: ledger.ByOwner(consumerID, models.WalletDashboard),
		Amount: dec("10"),
		Type:   models.TypeTopup,
	})
	require.NoError(t, err)
	assertAmount(t, "10", res.Wallet.Balance)
	assert.Len(t, store.Transactions(), 1)
}

func TestExecute_GivesUpAfterMaxAttempts(t *testing.T) {
	store, e := newEngine(t)
	store.FailNext(pkgerrors.ErrStorageConflict, pkgerrors.ErrStorageConflict, pkgerrors.ErrStorageConflict)

	_, err := e.Apply(context.Background(), ledger.Operation{
		Wallet: ledger.ByOwner(consumerID, models.WalletDashboard),
		Amount: dec("10"),
		Type:   models.TypeTopup,
	})
	assert.ErrorIs(t, err, pkgerrors.ErrStorageConflict)
	assert.Empty(t, store.Transactions())
}

func TestExecute_DoesNotRetryUnavailableStorage(t *testing.T) {
	store, e := newEngine(t)
	store.FailNext(pkgerrors.ErrStorageUnavailable)

	op := ledger.Operation{
		Wallet: ledger.ByOwner(consumerID, models.WalletDashboard),
		Amount: dec("10"),
		Type:   models.TypeTopup,
	}
	_, err := e.Apply(context.Background(), op)
	assert.ErrorIs(t, err, pkgerrors.ErrStorageUnavailable)
	assert.Empty(t, store.Transactions())

	_, err = e.Apply(context.Background(), op)
	assert.NoError(t, err)
}

func TestExecute_RollsBackCallerWrites(t *testing.T) {
	store, e := newEngine(t)
	topup(t, e, consumerID, "50")

	err := e.Execute(context.Background(), func(ctx context.Context, u *ledger.Unit) error {
		if _, err := e.ApplyInUnit(ctx, u, ledger.Operation{
			Wallet: ledger.ByOwner(consumerID, models.WalletDashboard),
			Amount: dec("-20"),
			Type:   models.TypePurchase,
		}); err != nil {
			return err
		}
		return pkgerrors.ErrProductNotFound
	})

	assert.ErrorIs(t, err, pkgerrors.ErrProductNotFound)
	assert.Len(t, store.Transactions(), 1)
	assertAmount(t, "50", balanceOf(t, e, consumerID, models.WalletDashboard))
}

func TestNotifier_ReceivesCommittedEntries(t *testing.T) {
	n := &notifierMock{}
	n.On("Notify", mock.Anything, mock.MatchedBy(func(entries []ledger.Result) bool {
		return len(entries) == 1 && entries[0].Transaction.Type == models.TypeTopup
	})).Return(nil).Once()
	n.On("Notify", mock.Anything, mock.MatchedBy(func(entries []ledger.Result) bool {
		return len(entries) == 2 &&
			entries[0].Transaction.Type == models.TypeLoanRepayment &&
			entries[1].Transaction.Type == models.TypeLoanRepaymentReplenish
	})).Return(assert.AnError).Once()

	_, e := newEngine(t, ledger.WithNotifier(n))
	topup(t, e, consumerID, "100")

	_, err := e.Transfer(context.Background(), ledger.TransferRequest{
		From:       ledger.ByOwner(consumerID, models.WalletDashboard),
		To:         ledger.ByOwner(consumerID, models.WalletCredit),
		Amount:     dec("40"),
		DebitType:  models.TypeLoanRepayment,
		CreditType: models.TypeLoanRepaymentReplenish,
	})
	assert.NoError(t, err, "notifier failures must not fail a committed unit")

	_, err = e.Apply(context.Background(), ledger.Operation{
		Wallet:                 ledger.ByOwner(consumerID, models.WalletDashboard),
		Amount:                 dec("-1000"),
		Type:                   models.TypePurchase,
		RequireSufficientFunds: true,
	})
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)

	n.AssertExpectations(t)
}

func TestGetOrCreateWallet_ConcurrentCallersShareOneWallet(t *testing.T) {
	_, e := newEngine(t)

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := e.GetOrCreateWallet(context.Background(), consumerID, models.WalletDashboard)
			if assert.NoError(t, err) {
				ids[i] = w.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assertAmount(t, "0", balanceOf(t, e, consumerID, models.WalletDashboard))
}

func TestSettleTransaction(t *testing.T) {
	ctx := context.Background()
	dashboard := ledger.ByOwner(consumerID, models.WalletDashboard)

	requestRefund := func(t *testing.T, e *ledger.Engine, amount string) string {
		t.Helper()
		res, err := e.Apply(ctx, ledger.Operation{
			Wallet:                 dashboard,
			Amount:                 dec(amount),
			Type:                   models.TypeRefund,
			RequireSufficientFunds: true,
			Pending:                true,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, res.Transaction.Status)
		return res.Transaction.ID
	}

	t.Run("pending request has no balance effect until completed", func(t *testing.T) {
		_, e := newEngine(t)
		topup(t, e, consumerID, "1000")
		txID := requestRefund(t, e, "-400")
		assertAmount(t, "1000", balanceOf(t, e, consumerID, models.WalletDashboard))

		res, err := e.SettleTransaction(ctx, txID, true)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, res.Transaction.Status)
		assertAmount(t, "600", balanceOf(t, e, consumerID, models.WalletDashboard))

		_, err = e.SettleTransaction(ctx, txID, false)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransactionState)
	})

	t.Run("failed settlement leaves balance", func(t *testing.T) {
		_, e := newEngine(t)
		topup(t, e, consumerID, "1000")
		txID := requestRefund(t, e, "-400")

		res, err := e.SettleTransaction(ctx, txID, false)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, res.Transaction.Status)
		assertAmount(t, "1000", balanceOf(t, e, consumerID, models.WalletDashboard))
	})

	t.Run("request larger than balance is rejected", func(t *testing.T) {
		store, e := newEngine(t)
		topup(t, e, consumerID, "100")
		_, err := e.Apply(ctx, ledger.Operation{
			Wallet: dashboard, Amount: dec("-400"), Type: models.TypeRefund,
			RequireSufficientFunds: true, Pending: true,
		})
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
		assert.Len(t, store.Transactions(), 1)
	})

	t.Run("sufficiency is checked again at settlement", func(t *testing.T) {
		_, e := newEngine(t)
		topup(t, e, consumerID, "500")
		txID := requestRefund(t, e, "-400")
		_, err := e.Apply(ctx, ledger.Operation{Wallet: dashboard, Amount: dec("-300"), Type: models.TypePurchase, RequireSufficientFunds: true})
		require.NoError(t, err)

		_, err = e.SettleTransaction(ctx, txID, true)
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
		assertAmount(t, "200", balanceOf(t, e, consumerID, models.WalletDashboard))
	})

	t.Run("unknown transaction", func(t *testing.T) {
		_, e := newEngine(t)
		_, err := e.SettleTransaction(ctx, "missing", true)
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
	})
}

func TestReconcile_UnknownWallet(t *testing.T) {
	_, e := newEngine(t)
	_, err := e.Reconcile(context.Background(), "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrWalletNotFound)
}
