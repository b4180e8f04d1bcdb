// Package ledger implements the payment ledger state machine: validate the
// attached value, move it through the host transfer primitive, then record the
// payment in both parties' histories and bump the global counter.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/logging"
)

// Call carries the ambient host context of one invocation. Reference names
// the transfer to custody and must stay the same when a request is retried;
// an empty Reference gets a fresh one.
type Call struct {
	Caller    domain.Account
	Amount    uint64
	Reference string
}

type Ledger struct {
	mu       sync.Mutex
	owner    domain.Account
	store    Store
	transfer Transferer
	clock    Clock
	events   EventSink
}

type Option func(*Ledger)

func WithEventSink(sink EventSink) Option {
	return func(l *Ledger) {
		if sink != nil {
			l.events = sink
		}
	}
}

// Initialize creates a ledger owned by caller on an empty store.
func Initialize(ctx context.Context, store Store, caller domain.Account, transfer Transferer, clock Clock, opts ...Option) (*Ledger, error) {
	if err := store.Initialize(ctx, caller); err != nil {
		return nil, fmt.Errorf("Initialize: %w", err)
	}
	return newLedger(caller, store, transfer, clock, opts), nil
}

// Open loads a ledger previously created with Initialize.
func Open(ctx context.Context, store Store, transfer Transferer, clock Clock, opts ...Option) (*Ledger, error) {
	owner, err := store.Owner(ctx)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	return newLedger(owner, store, transfer, clock, opts), nil
}

// OpenOrInitialize opens the ledger held by store, initializing it with
// caller as owner when the store is empty.
func OpenOrInitialize(ctx context.Context, store Store, caller domain.Account, transfer Transferer, clock Clock, opts ...Option) (*Ledger, error) {
	l, err := Open(ctx, store, transfer, clock, opts...)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, domain.ErrNotInitialized) {
		return nil, fmt.Errorf("OpenOrInitialize: %w", err)
	}
	l, err = Initialize(ctx, store, caller, transfer, clock, opts...)
	if err != nil {
		return nil, fmt.Errorf("OpenOrInitialize: %w", err)
	}
	return l, nil
}

func newLedger(owner domain.Account, store Store, transfer Transferer, clock Clock, opts []Option) *Ledger {
	l := &Ledger{
		owner:    owner,
		store:    store,
		transfer: transfer,
		clock:    clock,
		events:   nopSink{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordPayment moves call.Amount to recipient and records the payment.
// On any error no ledger state has changed.
func (l *Ledger) RecordPayment(ctx context.Context, call Call, recipient domain.Account, description domain.Description) (uint64, error) {
	if call.Amount == 0 {
		return 0, fmt.Errorf("RecordPayment: %w", domain.ErrInvalidAmount)
	}

	reference := call.Reference
	if reference == "" {
		reference = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var p domain.Payment
	err := l.store.Update(ctx, func(tx Tx) error {
		count, err := tx.PaymentCount(ctx)
		if err != nil {
			return fmt.Errorf("read payment count: %w", err)
		}

		p = domain.Payment{
			ID:          count + 1,
			Sender:      call.Caller,
			Recipient:   recipient,
			Amount:      call.Amount,
			Description: description,
			Timestamp:   l.clock.Now(),
		}

		if err := l.transfer.Transfer(ctx, reference, recipient, call.Amount); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrPaymentFailed, err)
		}

		for _, account := range p.Participants() {
			if err := appendHistory(ctx, tx, account, p); err != nil {
				return err
			}
		}

		if err := tx.SetPaymentCount(ctx, p.ID); err != nil {
			return fmt.Errorf("write payment count: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrPaymentFailed) && p.ID != 0 {
			logging.FromContext(ctx).Error("payment record not committed",
				"payment_id", p.ID,
				"sender", p.Sender,
				"recipient", p.Recipient,
				"amount", p.Amount,
				"error", err,
			)
		}
		return 0, fmt.Errorf("RecordPayment: %w", err)
	}

	l.events.PaymentRecorded(ctx, p.Recorded())

	logging.FromContext(ctx).Info("payment recorded",
		"payment_id", p.ID,
		"sender", p.Sender,
		"recipient", p.Recipient,
		"amount", p.Amount,
	)

	return p.ID, nil
}

func appendHistory(ctx context.Context, tx Tx, account domain.Account, p domain.Payment) error {
	history, err := tx.History(ctx, account)
	if err != nil {
		return fmt.Errorf("read history %s: %w", account, err)
	}
	history = append(history, p)
	if err := tx.PutHistory(ctx, account, history); err != nil {
		return fmt.Errorf("write history %s: %w", account, err)
	}
	return nil
}

// PaymentHistory returns the payments account took part in, oldest first.
// Accounts that never participated get an empty, non-nil slice.
func (l *Ledger) PaymentHistory(ctx context.Context, account domain.Account) ([]domain.Payment, error) {
	history, err := l.store.History(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("PaymentHistory: %w", err)
	}
	if history == nil {
		history = []domain.Payment{}
	}
	return history, nil
}

func (l *Ledger) PaymentCount(ctx context.Context) (uint64, error) {
	n, err := l.store.PaymentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("PaymentCount: %w", err)
	}
	return n, nil
}

func (l *Ledger) Owner() domain.Account {
	return l.owner
}

// RequireOwner gates owner-restricted operations.
func (l *Ledger) RequireOwner(caller domain.Account) error {
	if caller != l.owner {
		return fmt.Errorf("RequireOwner: %w", domain.ErrNotOwner)
	}
	return nil
}
