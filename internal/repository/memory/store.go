// Package memory is an in-process implementation of the repository
// interfaces. A Store serializes every unit of work behind one mutex and
// applies a unit's writes only when it succeeds, which makes it a faithful
// stand-in for the Postgres unit of work inside a single process.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lightlabcreation/big-pos-backend/internal/models"
	"github.com/lightlabcreation/big-pos-backend/internal/repository"
)

type Store struct {
	mu    sync.Mutex
	st    *state
	now   func() time.Time
	fails []error
}

var _ repository.UnitOfWork = (*Store)(nil)

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithClock replaces the clock used for created_at/updated_at stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// FailNext makes the next len(errs) units fail with the given errors before
// running. Used to simulate storage conflicts and outages.
func (s *Store) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails = append(s.fails, errs...)
}

func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, st repository.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.fails) > 0 {
		err := s.fails[0]
		s.fails = s.fails[1:]
		return err
	}

	work := s.st.clone()
	if err := fn(ctx, work.stores(s.now)); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, st repository.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, s.st.clone().stores(s.now))
}

// AddProfile seeds a profile.
func (s *Store) AddProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.st.profiles[p.ID] = p
}

// AddProduct seeds a product.
func (s *Store) AddProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

// AddLoan seeds a loan as stored.
func (s *Store) AddLoan(l models.Loan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
	s.st.loans[l.ID] = l
}

// Transactions returns every stored transaction in insertion order.
func (s *Store) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Transaction, 0, len(s.st.txOrder))
	for _, id := range s.st.txOrder {
		out = append(out, s.st.txs[id])
	}
	return out
}

// Orders returns every stored order.
func (s *Store) Orders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0, len(s.st.orders))
	for _, o := range s.st.orders {
		out = append(out, o)
	}
	return out
}

// GasTopups returns every stored gas topup.
func (s *Store) GasTopups() []models.GasTopup {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.GasTopup, 0, len(s.st.topups))
	for _, t := range s.st.topups {
		out = append(out, t)
	}
	return out
}
