package ledger

import (
	"context"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
)

// Store persists the ledger aggregate. Implementations must make Update
// all-or-nothing: if fn returns an error, nothing fn wrote is kept.
type Store interface {
	// Initialize records the owner once. ErrAlreadyInitialized otherwise.
	Initialize(ctx context.Context, owner domain.Account) error
	// Owner returns ErrNotInitialized before Initialize.
	Owner(ctx context.Context) (domain.Account, error)
	History(ctx context.Context, account domain.Account) ([]domain.Payment, error)
	PaymentCount(ctx context.Context) (uint64, error)
	Update(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write view handed to Store.Update. Histories are replaced whole
// because the backing store may not support in-place append.
type Tx interface {
	PaymentCount(ctx context.Context) (uint64, error)
	SetPaymentCount(ctx context.Context, n uint64) error
	History(ctx context.Context, account domain.Account) ([]domain.Payment, error)
	PutHistory(ctx context.Context, account domain.Account, payments []domain.Payment) error
}

// Transferer moves value out of ledger custody. A returned error means no
// value moved, unless it wraps domain.ErrTransferOutcomeUnknown. Transfers
// sharing a reference are performed at most once.
type Transferer interface {
	Transfer(ctx context.Context, reference string, to domain.Account, amount uint64) error
}

// Clock supplies a non-decreasing timestamp per call.
type Clock interface {
	Now() uint64
}

// EventSink receives fire-and-forget notifications. Delivery is best effort.
type EventSink interface {
	PaymentRecorded(ctx context.Context, event domain.PaymentRecorded)
}

type nopSink struct{}

func (nopSink) PaymentRecorded(context.Context, domain.PaymentRecorded) {}
