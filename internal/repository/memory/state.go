package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

type ownerKey struct {
	owner string
	kind  models.WalletKind
}

type state struct {
	wallets  map[string]models.Wallet
	byOwner  map[ownerKey]string
	txs      map[string]models.Transaction
	txOrder  []string
	loans    map[string]models.Loan
	orders   map[string]models.Order
	products map[string]models.Product
	topups   map[string]models.GasTopup
	rewards  map[string]models.GasReward
	accrued  map[string]string
	profiles map[string]models.Profile
}

func newState() *state {
	return &state{
		wallets:  map[string]models.Wallet{},
		byOwner:  map[ownerKey]string{},
		txs:      map[string]models.Transaction{},
		loans:    map[string]models.Loan{},
		orders:   map[string]models.Order{},
		products: map[string]models.Product{},
		topups:   map[string]models.GasTopup{},
		rewards:  map[string]models.GasReward{},
		accrued:  map[string]string{},
		profiles: map[string]models.Profile{},
	}
}

func (s *state) clone() *state {
	return &state{
		wallets:  maps.Clone(s.wallets),
		byOwner:  maps.Clone(s.byOwner),
		txs:      maps.Clone(s.txs),
		txOrder:  slices.Clone(s.txOrder),
		loans:    maps.Clone(s.loans),
		orders:   maps.Clone(s.orders),
		products: maps.Clone(s.products),
		topups:   maps.Clone(s.topups),
		rewards:  maps.Clone(s.rewards),
		accrued:  maps.Clone(s.accrued),
		profiles: maps.Clone(s.profiles),
	}
}

func (s *state) stores(now func() time.Time) repository.Stores {
	return repository.Stores{
		Wallets:      &walletRepo{s: s, now: now},
		Transactions: &transactionRepo{s: s, now: now},
		Loans:        &loanRepo{s: s, now: now},
		Orders:       &orderRepo{s: s, now: now},
		Products:     &productRepo{s: s},
		Gas:          &gasRepo{s: s, now: now},
		Profiles:     &profileRepo{s: s, now: now},
	}
}

type walletRepo struct {
	s   *state
	now func() time.Time
}

func (r *walletRepo) EnsureExists(_ context.Context, ownerID string, kind models.WalletKind, currency string) error {
	if !kind.Valid() {
		return pkgerrors.ErrInvalidWalletKind
	}
	key := ownerKey{ownerID, kind}
	if _, ok := r.s.byOwner[key]; ok {
		return nil
	}
	now := r.now()
	w := models.Wallet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Kind:      kind,
		Balance:   decimal.Zero,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.wallets[w.ID] = w
	r.s.byOwner[key] = w.ID
	return nil
}

func (r *walletRepo) GetByOwner(ctx context.Context, ownerID string, kind models.WalletKind) (*models.Wallet, error) {
	id, ok := r.s.byOwner[ownerKey{ownerID, kind}]
	if !ok {
		return nil, pkgerrors.ErrWalletNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *walletRepo) GetByOwnerForUpdate(ctx context.Context, ownerID string, kind models.WalletKind) (*models.Wallet, error) {
	return r.GetByOwner(ctx, ownerID, kind)
}

func (r *walletRepo) GetByID(_ context.Context, id string) (*models.Wallet, error) {
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, pkgerrors.ErrWalletNotFound
	}
	return &w, nil
}

func (r *walletRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r *walletRepo) ListByOwner(_ context.Context, ownerID string) ([]models.Wallet, error) {
	var out []models.Wallet
	for _, w := range r.s.wallets {
		if w.OwnerID == ownerID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (r *walletRepo) UpdateBalance(_ context.Context, id string, balance decimal.Decimal) error {
	w, ok := r.s.wallets[id]
	if !ok {
		return pkgerrors.ErrWalletNotFound
	}
	w.Balance = balance
	w.UpdatedAt = r.now()
	r.s.wallets[id] = w
	return nil
}

type transactionRepo struct {
	s   *state
	now func() time.Time
}

func (r *transactionRepo) Create(_ context.Context, tx *models.Transaction) error {
	switch {
	case tx == nil:
		return pkgerrors.ErrNilTransaction
	case !tx.Type.Valid():
		return pkgerrors.ErrInvalidTransactionType
	case !tx.Status.Valid():
		return pkgerrors.ErrInvalidTransactionStatus
	case tx.Amount.IsZero():
		return pkgerrors.ErrInvalidAmount
	}
	if _, ok := r.s.wallets[tx.WalletID]; !ok {
		return pkgerrors.ErrWalletNotFound
	}
	tx.CreatedAt = r.now()
	r.s.txs[tx.ID] = *tx
	r.s.txOrder = append(r.s.txOrder, tx.ID)
	return nil
}

func (r *transactionRepo) GetByID(_ context.Context, id string) (*models.Transaction, error) {
	tx, ok := r.s.txs[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	return &tx, nil
}

func (r *transactionRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r *transactionRepo) UpdateStatus(_ context.Context, id string, status models.StatusType) error {
	if !status.Valid() || status == models.StatusPending {
		return pkgerrors.ErrInvalidTransactionStatus
	}
	tx, ok := r.s.txs[id]
	if !ok || tx.Status != models.StatusPending {
		return pkgerrors.ErrInvalidTransactionState
	}
	tx.Status = status
	r.s.txs[id] = tx
	return nil
}

func (r *transactionRepo) ListByWallets(_ context.Context, walletIDs []string, filter repository.TransactionFilter) ([]models.Transaction, error) {
	out := []models.Transaction{}
	// Newest first; insertion order breaks created_at ties.
	for i := len(r.s.txOrder) - 1; i >= 0; i-- {
		tx := r.s.txs[r.s.txOrder[i]]
		if !slices.Contains(walletIDs, tx.WalletID) {
			continue
		}
		if len(filter.Types) > 0 && !slices.Contains(filter.Types, tx.Type) {
			continue
		}
		out = append(out, tx)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []models.Transaction{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *transactionRepo) SumByReferenceAndTypes(_ context.Context, reference string, types []models.TransactionType) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, tx := range r.s.txs {
		if tx.Reference == reference && tx.Status == models.StatusCompleted && slices.Contains(types, tx.Type) {
			sum = sum.Add(tx.Amount.Abs())
		}
	}
	return sum, nil
}

func (r *transactionRepo) SumCompletedByWallet(_ context.Context, walletID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, tx := range r.s.txs {
		if tx.WalletID == walletID && tx.Status == models.StatusCompleted {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

type loanRepo struct {
	s   *state
	now func() time.Time
}

func (r *loanRepo) Create(_ context.Context, loan *models.Loan) error {
	if loan == nil || loan.BorrowerID == "" {
		return pkgerrors.ErrInvalidInput
	}
	if !loan.Principal.IsPositive() {
		return pkgerrors.ErrInvalidAmount
	}
	loan.CreatedAt = r.now()
	loan.UpdatedAt = loan.CreatedAt
	r.s.loans[loan.ID] = *loan
	return nil
}

func (r *loanRepo) GetByID(_ context.Context, id string) (*models.Loan, error) {
	l, ok := r.s.loans[id]
	if !ok {
		return nil, pkgerrors.ErrLoanNotFound
	}
	return &l, nil
}

func (r *loanRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Loan, error) {
	return r.GetByID(ctx, id)
}

func (r *loanRepo) UpdateStatus(_ context.Context, id string, status models.LoanStatus) error {
	l, ok := r.s.loans[id]
	if !ok {
		return pkgerrors.ErrLoanNotFound
	}
	l.Status = status
	l.UpdatedAt = r.now()
	r.s.loans[id] = l
	return nil
}

func (r *loanRepo) ListByBorrower(_ context.Context, borrowerID string) ([]models.Loan, error) {
	out := []models.Loan{}
	for _, l := range r.s.loans {
		if l.BorrowerID == borrowerID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type orderRepo struct {
	s   *state
	now func() time.Time
}

func (r *orderRepo) Create(_ context.Context, order *models.Order) error {
	if order == nil || len(order.Items) == 0 {
		return pkgerrors.ErrInvalidInput
	}
	order.CreatedAt = r.now()
	stored := *order
	stored.Items = slices.Clone(order.Items)
	r.s.orders[order.ID] = stored
	return nil
}

func (r *orderRepo) GetByID(_ context.Context, id string) (*models.Order, error) {
	o, ok := r.s.orders[id]
	if !ok {
		return nil, pkgerrors.ErrOrderNotFound
	}
	return &o, nil
}

type productRepo struct {
	s *state
}

func (r *productRepo) GetByID(_ context.Context, id string) (*models.Product, error) {
	p, ok := r.s.products[id]
	if !ok {
		return nil, pkgerrors.ErrProductNotFound
	}
	return &p, nil
}

type gasRepo struct {
	s   *state
	now func() time.Time
}

func (r *gasRepo) CreateTopup(_ context.Context, topup *models.GasTopup) error {
	if topup == nil || topup.MeterNumber == "" {
		return pkgerrors.ErrInvalidInput
	}
	topup.CreatedAt = r.now()
	r.s.topups[topup.ID] = *topup
	return nil
}

func (r *gasRepo) AddRewardUnits(_ context.Context, consumerID string, units decimal.Decimal) (decimal.Decimal, error) {
	if !units.IsPositive() {
		return decimal.Zero, pkgerrors.ErrInvalidAmount
	}
	reward, ok := r.s.rewards[consumerID]
	if !ok {
		reward = models.GasReward{ConsumerID: consumerID, Units: decimal.Zero}
	}
	reward.Units = reward.Units.Add(units)
	reward.UpdatedAt = r.now()
	r.s.rewards[consumerID] = reward
	return reward.Units, nil
}

func (r *gasRepo) RecordAccrual(_ context.Context, topupID, consumerID string, units decimal.Decimal) (bool, error) {
	if topupID == "" || consumerID == "" {
		return false, pkgerrors.ErrInvalidInput
	}
	if !units.IsPositive() {
		return false, pkgerrors.ErrInvalidAmount
	}
	if _, ok := r.s.accrued[topupID]; ok {
		return false, nil
	}
	r.s.accrued[topupID] = consumerID
	return true, nil
}

func (r *gasRepo) DeductRewardUnits(_ context.Context, consumerID string, units decimal.Decimal) (decimal.Decimal, error) {
	if !units.IsPositive() {
		return decimal.Zero, pkgerrors.ErrInvalidAmount
	}
	reward, ok := r.s.rewards[consumerID]
	if !ok || reward.Units.LessThan(units) {
		return decimal.Zero, pkgerrors.ErrInsufficientRewards
	}
	reward.Units = reward.Units.Sub(units)
	reward.UpdatedAt = r.now()
	r.s.rewards[consumerID] = reward
	return reward.Units, nil
}

func (r *gasRepo) GetReward(_ context.Context, consumerID string) (*models.GasReward, error) {
	reward, ok := r.s.rewards[consumerID]
	if !ok {
		return &models.GasReward{ConsumerID: consumerID, Units: decimal.Zero}, nil
	}
	return &reward, nil
}

type profileRepo struct {
	s   *state
	now func() time.Time
}

func (r *profileRepo) Create(_ context.Context, profile *models.Profile) error {
	if profile == nil || profile.Username == "" || profile.PasswordHash == "" || !profile.Role.Valid() {
		return pkgerrors.ErrInvalidInput
	}
	for _, p := range r.s.profiles {
		if p.Username == profile.Username {
			return pkgerrors.ErrUsernameExists
		}
	}
	profile.CreatedAt = r.now()
	r.s.profiles[profile.ID] = *profile
	return nil
}

func (r *profileRepo) GetByID(_ context.Context, id string) (*models.Profile, error) {
	p, ok := r.s.profiles[id]
	if !ok {
		return nil, pkgerrors.ErrProfileNotFound
	}
	return &p, nil
}

func (r *profileRepo) GetByUsername(_ context.Context, username string) (*models.Profile, error) {
	for _, p := range r.s.profiles {
		if p.Username == username {
			return &p, nil
		}
	}
	return nil, pkgerrors.ErrProfileNotFound
}
