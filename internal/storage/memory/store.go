// Package memory provides an in-process ledger store. State lives for the
// lifetime of the process.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/ledger"
)

type Store struct {
	mu          sync.RWMutex
	initialized bool
	owner       domain.Account
	count       uint64
	histories   map[domain.Account][]domain.Payment
}

func NewStore() *Store {
	return &Store{histories: make(map[domain.Account][]domain.Payment)}
}

func (s *Store) Initialize(_ context.Context, owner domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return fmt.Errorf("Initialize: %w", domain.ErrAlreadyInitialized)
	}
	s.initialized = true
	s.owner = owner
	s.count = 0
	clear(s.histories)
	return nil
}

func (s *Store) Owner(_ context.Context) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return domain.Account{}, fmt.Errorf("Owner: %w", domain.ErrNotInitialized)
	}
	return s.owner, nil
}

func (s *Store) History(_ context.Context, account domain.Account) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.histories[account]), nil
}

func (s *Store) PaymentCount(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count, nil
}

// Update stages writes in a tx overlay and applies them only if fn succeeds.
func (s *Store) Update(_ context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("Update: %w", domain.ErrNotInitialized)
	}

	tx := &memTx{store: s, count: s.count, staged: make(map[domain.Account][]domain.Payment)}
	if err := fn(tx); err != nil {
		return err
	}

	for account, payments := range tx.staged {
		s.histories[account] = payments
	}
	s.count = tx.count
	return nil
}

type memTx struct {
	store  *Store
	count  uint64
	staged map[domain.Account][]domain.Payment
}

func (t *memTx) PaymentCount(context.Context) (uint64, error) {
	return t.count, nil
}

func (t *memTx) SetPaymentCount(_ context.Context, n uint64) error {
	t.count = n
	return nil
}

func (t *memTx) History(_ context.Context, account domain.Account) ([]domain.Payment, error) {
	if staged, ok := t.staged[account]; ok {
		return slices.Clone(staged), nil
	}
	return slices.Clone(t.store.histories[account]), nil
}

func (t *memTx) PutHistory(_ context.Context, account domain.Account, payments []domain.Payment) error {
	t.staged[account] = slices.Clone(payments)
	return nil
}
