// Package ledger applies every balance-changing operation. A balance update
// and the transaction row that explains it are always written in the same
// unit of work, so a wallet's balance equals the sum of its completed
// transactions at every commit.
package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/observability"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ledger-engine"

// AmountScale is the number of decimal places wallets and transactions are
// stored with. Finer amounts would be rounded by the store separately for the
// balance and the transaction row.
const AmountScale = 4

// Selector picks a wallet either by id or by (owner, kind). WalletID wins
// when both are set.
type Selector struct {
	WalletID string
	OwnerID  string
	Kind     models.WalletKind
}

func ByOwner(ownerID string, kind models.WalletKind) Selector {
	return Selector{OwnerID: ownerID, Kind: kind}
}

func ByID(walletID string) Selector {
	return Selector{WalletID: walletID}
}

func (s Selector) String() string {
	if s.WalletID != "" {
		return s.WalletID
	}
	return s.OwnerID + "/" + string(s.Kind)
}

// Operation describes one signed balance change.
type Operation struct {
	Wallet      Selector
	Amount      decimal.Decimal
	Type        models.TransactionType
	Description string
	Reference   string
	// RequireSufficientFunds rejects a negative Amount that would take the
	// balance below zero.
	RequireSufficientFunds bool
	// Pending records the transaction without touching the balance. It is
	// settled later with SettleTransaction.
	Pending bool
}

// Result is a committed (or about to be committed) ledger entry.
type Result struct {
	Wallet      models.Wallet      `json:"wallet"`
	Transaction models.Transaction `json:"transaction"`
}

// Notifier is told about entries after their unit has committed. Errors are
// logged and otherwise ignored.
type Notifier interface {
	Notify(ctx context.Context, entries []Result) error
}

// Unit is the view of one storage transaction handed to Execute callbacks.
// Entries applied through it are announced once the unit commits.
type Unit struct {
	repository.Stores
	entries []Result
}

type Engine struct {
	uow           repository.UnitOfWork
	notifier      Notifier
	now           func() time.Time
	maxAttempts   int
	retryInterval time.Duration
	currency      string
	installments  int
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxAttempts bounds how many times a unit runs when it keeps hitting
// storage conflicts.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithRetryInterval(d time.Duration) Option {
	return func(e *Engine) { e.retryInterval = d }
}

func WithCurrency(currency string) Option {
	return func(e *Engine) { e.currency = currency }
}

// WithInstallments sets how many periods a loan schedule is split into.
func WithInstallments(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.installments = n
		}
	}
}

func New(uow repository.UnitOfWork, opts ...Option) *Engine {
	e := &Engine{
		uow:           uow,
		now:           time.Now,
		maxAttempts:   3,
		retryInterval: 50 * time.Millisecond,
		currency:      "RWF",
		installments:  4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs fn in one unit of work. The unit is retried with exponential
// backoff while it fails with ErrStorageConflict, up to the configured
// number of attempts. Entries applied through the unit are passed to the
// notifier after the commit.
func (e *Engine) Execute(ctx context.Context, fn func(ctx context.Context, u *Unit) error) error {
	var committed []Result

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.maxAttempts-1)), ctx)

	attempt := func() error {
		unit := &Unit{}
		err := e.uow.Do(ctx, func(ctx context.Context, s repository.Stores) error {
			unit.Stores = s
			return fn(ctx, unit)
		})
		if err == nil {
			committed = unit.entries
			return nil
		}
		if pkgerrors.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	onRetry := func(err error, wait time.Duration) {
		observability.LedgerRetries.Inc()
		trace.SpanFromContext(ctx).AddEvent("ledger unit retried", trace.WithAttributes(
			attribute.String("error", err.Error()),
			attribute.String("wait", wait.String()),
		))
		slog.Warn("retrying ledger unit", "method", "Execute", "wait", wait.String(), "error", err)
	}

	if err := backoff.RetryNotify(attempt, policy, onRetry); err != nil {
		return err
	}

	e.notify(ctx, committed)
	return nil
}

func (e *Engine) notify(ctx context.Context, entries []Result) {
	if e.notifier == nil || len(entries) == 0 {
		return
	}
	if err := e.notifier.Notify(ctx, entries); err != nil {
		slog.Error("ledger notifier failed", "method", "notify", "entries", len(entries), "error", err)
	}
}

// Apply performs one ledger operation in its own unit of work.
func (e *Engine) Apply(ctx context.Context, op Operation) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("wallet", op.Wallet.String()),
		attribute.String("type", string(op.Type)),
		attribute.String("amount", op.Amount.String()),
	)

	var res *Result
	err := e.Execute(ctx, func(ctx context.Context, u *Unit) error {
		var err error
		res, err = e.ApplyInUnit(ctx, u, op)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger operation failed")
		return nil, err
	}
	return res, nil
}

// ApplyInUnit performs op inside a unit the caller controls, so that the
// caller's own writes commit or roll back together with it.
func (e *Engine) ApplyInUnit(ctx context.Context, u *Unit, op Operation) (*Result, error) {
	if err := validate(op); err != nil {
		record(op.Type, err)
		return nil, err
	}

	wallet, err := e.lockWallet(ctx, u, op.Wallet)
	if err != nil {
		record(op.Type, err)
		return nil, err
	}

	res, err := e.applyLocked(ctx, u, wallet, op)
	record(op.Type, err)
	return res, err
}

// TransferRequest moves Amount (positive) out of From and into To. The debit
// leg always requires sufficient funds.
type TransferRequest struct {
	From        Selector
	To          Selector
	Amount      decimal.Decimal
	DebitType   models.TransactionType
	CreditType  models.TransactionType
	Description string
	Reference   string
}

type TransferResult struct {
	Debit  Result `json:"debit"`
	Credit Result `json:"credit"`
}

// Transfer applies both legs of req in one unit. The wallets are locked in
// ascending id order so opposing transfers cannot deadlock.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Transfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("from", req.From.String()),
		attribute.String("to", req.To.String()),
		attribute.String("amount", req.Amount.String()),
		attribute.String("reference", req.Reference),
	)

	var out *TransferResult
	err := e.Execute(ctx, func(ctx context.Context, u *Unit) error {
		var err error
		out, err = e.TransferInUnit(ctx, u, req)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer failed")
		return nil, err
	}
	return out, nil
}

// TransferInUnit is Transfer inside a unit the caller controls.
func (e *Engine) TransferInUnit(ctx context.Context, u *Unit, req TransferRequest) (*TransferResult, error) {
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.ErrInvalidAmount
	}
	debit := Operation{
		Wallet:                 req.From,
		Amount:                 req.Amount.Neg(),
		Type:                   req.DebitType,
		Description:            req.Description,
		Reference:              req.Reference,
		RequireSufficientFunds: true,
	}
	credit := Operation{
		Wallet:      req.To,
		Amount:      req.Amount,
		Type:        req.CreditType,
		Description: req.Description,
		Reference:   req.Reference,
	}
	if err := validate(debit); err != nil {
		return nil, err
	}
	if err := validate(credit); err != nil {
		return nil, err
	}

	fromID, err := e.resolveID(ctx, u, req.From)
	if err != nil {
		return nil, err
	}
	toID, err := e.resolveID(ctx, u, req.To)
	if err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, fmt.Errorf("%w: cannot transfer a wallet to itself", pkgerrors.ErrInvalidInput)
	}

	first, second := fromID, toID
	if second < first {
		first, second = second, first
	}
	locked := make(map[string]*models.Wallet, 2)
	for _, id := range []string{first, second} {
		w, err := u.Wallets.GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = w
	}

	debitRes, err := e.applyLocked(ctx, u, locked[fromID], debit)
	record(debit.Type, err)
	if err != nil {
		return nil, err
	}
	creditRes, err := e.applyLocked(ctx, u, locked[toID], credit)
	record(credit.Type, err)
	if err != nil {
		return nil, err
	}

	return &TransferResult{Debit: *debitRes, Credit: *creditRes}, nil
}

// GetOrCreateWallet returns the owner's wallet of the given kind, creating
// it with a zero balance on first use. Owners without a wallet-holding
// profile fail with ErrWalletResolutionFailed.
func (e *Engine) GetOrCreateWallet(ctx context.Context, ownerID string, kind models.WalletKind) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := e.Execute(ctx, func(ctx context.Context, u *Unit) error {
		if err := e.ensureWallet(ctx, u, ownerID, kind); err != nil {
			return err
		}
		var err error
		wallet, err = u.Wallets.GetByOwner(ctx, ownerID, kind)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// SettleTransaction moves a pending transaction to completed, applying its
// amount to the wallet, or to failed with no balance effect. Debits are
// checked for sufficient funds at settlement time.
func (e *Engine) SettleTransaction(ctx context.Context, txID string, complete bool) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "SettleTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction_id", txID), attribute.Bool("complete", complete))

	var res *Result
	err := e.Execute(ctx, func(ctx context.Context, u *Unit) error {
		tx, err := u.Transactions.GetByIDForUpdate(ctx, txID)
		if err != nil {
			return err
		}
		if tx.Status != models.StatusPending {
			return pkgerrors.ErrInvalidTransactionState
		}
		wallet, err := u.Wallets.GetByIDForUpdate(ctx, tx.WalletID)
		if err != nil {
			return err
		}

		status := models.StatusFailed
		if complete {
			balance := wallet.Balance.Add(tx.Amount)
			if tx.Amount.IsNegative() && balance.IsNegative() {
				return pkgerrors.ErrInsufficientFunds
			}
			if err := u.Wallets.UpdateBalance(ctx, wallet.ID, balance); err != nil {
				return err
			}
			wallet.Balance = balance
			status = models.StatusCompleted
		}
		if err := u.Transactions.UpdateStatus(ctx, tx.ID, status); err != nil {
			return err
		}
		tx.Status = status

		res = &Result{Wallet: *wallet, Transaction: *tx}
		u.entries = append(u.entries, *res)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settlement failed")
		slog.Error("failed to settle transaction", "method", "SettleTransaction", "transaction_id", txID, "error", err)
		return nil, err
	}

	slog.Info("transaction settled", "method", "SettleTransaction", "transaction_id", txID, "status", res.Transaction.Status)
	return res, nil
}

// Reconciliation compares a wallet's stored balance with its ledger.
type Reconciliation struct {
	WalletID   string          `json:"wallet_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Consistent bool            `json:"consistent"`
}

func (e *Engine) Reconcile(ctx context.Context, walletID string) (*Reconciliation, error) {
	var rec *Reconciliation
	err := e.uow.View(ctx, func(ctx context.Context, s repository.Stores) error {
		wallet, err := s.Wallets.GetByID(ctx, walletID)
		if err != nil {
			return err
		}
		sum, err := s.Transactions.SumCompletedByWallet(ctx, walletID)
		if err != nil {
			return err
		}
		rec = &Reconciliation{
			WalletID:   walletID,
			Balance:    wallet.Balance,
			LedgerSum:  sum,
			Consistent: wallet.Balance.Equal(sum),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !rec.Consistent {
		slog.Error("wallet balance drifted from ledger", "method", "Reconcile", "wallet_id", walletID,
			"balance", rec.Balance.String(), "ledger_sum", rec.LedgerSum.String())
	}
	return rec, nil
}

func validate(op Operation) error {
	if op.Amount.IsZero() {
		return pkgerrors.ErrInvalidAmount
	}
	if !op.Amount.Equal(op.Amount.Truncate(AmountScale)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", pkgerrors.ErrInvalidAmount, op.Amount, AmountScale)
	}
	if !op.Type.Valid() {
		return pkgerrors.ErrInvalidTransactionType
	}
	if op.Wallet.WalletID == "" && (op.Wallet.OwnerID == "" || !op.Wallet.Kind.Valid()) {
		return fmt.Errorf("%w: %s", pkgerrors.ErrWalletResolutionFailed, op.Wallet)
	}
	return nil
}

// applyLocked writes op against a wallet the unit already holds locked.
func (e *Engine) applyLocked(ctx context.Context, u *Unit, wallet *models.Wallet, op Operation) (*Result, error) {
	balance := wallet.Balance.Add(op.Amount)
	if op.RequireSufficientFunds && op.Amount.IsNegative() && balance.IsNegative() {
		slog.Warn("insufficient funds", "method", "applyLocked", "wallet_id", wallet.ID,
			"balance", wallet.Balance.String(), "amount", op.Amount.String())
		return nil, pkgerrors.ErrInsufficientFunds
	}

	tx := &models.Transaction{
		ID:          uuid.NewString(),
		WalletID:    wallet.ID,
		Type:        op.Type,
		Amount:      op.Amount,
		Description: op.Description,
		Reference:   op.Reference,
		Status:      models.StatusCompleted,
	}
	if op.Pending {
		tx.Status = models.StatusPending
	} else {
		if err := u.Wallets.UpdateBalance(ctx, wallet.ID, balance); err != nil {
			return nil, err
		}
		wallet.Balance = balance
	}
	if err := u.Transactions.Create(ctx, tx); err != nil {
		return nil, err
	}

	res := Result{Wallet: *wallet, Transaction: *tx}
	u.entries = append(u.entries, res)
	return &res, nil
}

func (e *Engine) lockWallet(ctx context.Context, u *Unit, sel Selector) (*models.Wallet, error) {
	if sel.WalletID != "" {
		w, err := u.Wallets.GetByIDForUpdate(ctx, sel.WalletID)
		if stderrors.Is(err, pkgerrors.ErrWalletNotFound) {
			return nil, fmt.Errorf("%w: %w", pkgerrors.ErrWalletResolutionFailed, err)
		}
		return w, err
	}
	if err := e.ensureWallet(ctx, u, sel.OwnerID, sel.Kind); err != nil {
		return nil, err
	}
	return u.Wallets.GetByOwnerForUpdate(ctx, sel.OwnerID, sel.Kind)
}

// resolveID returns the wallet id behind sel without locking it.
func (e *Engine) resolveID(ctx context.Context, u *Unit, sel Selector) (string, error) {
	if sel.WalletID != "" {
		w, err := u.Wallets.GetByID(ctx, sel.WalletID)
		if stderrors.Is(err, pkgerrors.ErrWalletNotFound) {
			return "", fmt.Errorf("%w: %w", pkgerrors.ErrWalletResolutionFailed, err)
		}
		if err != nil {
			return "", err
		}
		return w.ID, nil
	}
	if err := e.ensureWallet(ctx, u, sel.OwnerID, sel.Kind); err != nil {
		return "", err
	}
	w, err := u.Wallets.GetByOwner(ctx, sel.OwnerID, sel.Kind)
	if err != nil {
		return "", err
	}
	return w.ID, nil
}

func (e *Engine) ensureWallet(ctx context.Context, u *Unit, ownerID string, kind models.WalletKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %w", pkgerrors.ErrWalletResolutionFailed, pkgerrors.ErrInvalidWalletKind)
	}
	profile, err := u.Profiles.GetByID(ctx, ownerID)
	if stderrors.Is(err, pkgerrors.ErrProfileNotFound) {
		return fmt.Errorf("%w: owner %s has no profile", pkgerrors.ErrWalletResolutionFailed, ownerID)
	}
	if err != nil {
		return err
	}
	if !profile.Role.OwnsWallets() {
		return fmt.Errorf("%w: role %s holds no wallets", pkgerrors.ErrWalletResolutionFailed, profile.Role)
	}
	return u.Wallets.EnsureExists(ctx, ownerID, kind, e.currency)
}

func record(t models.TransactionType, err error) {
	result := "ok"
	switch {
	case err == nil:
	case stderrors.Is(err, pkgerrors.ErrInsufficientFunds):
		result = "insufficient_funds"
	case stderrors.Is(err, pkgerrors.ErrInvalidAmount):
		result = "invalid_amount"
	case stderrors.Is(err, pkgerrors.ErrWalletResolutionFailed):
		result = "wallet_resolution_failed"
	default:
		result = "error"
	}
	observability.LedgerOperations.WithLabelValues(string(t), result).Inc()
}
