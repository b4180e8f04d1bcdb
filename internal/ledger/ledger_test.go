package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/ledger"
	"github.com/josh-kwaku/payment-ledger/internal/ledger/ledgertest"
	"github.com/josh-kwaku/payment-ledger/internal/storage/memory"
)

var (
	owner = ledgertest.Owner
	alice = ledgertest.Alice
	bob   = ledgertest.Bob
)

type transferCall struct {
	reference string
	to        domain.Account
	amount    uint64
}

type fakeTransferer struct {
	calls []transferCall
	err   error
}

func (f *fakeTransferer) Transfer(_ context.Context, reference string, to domain.Account, amount uint64) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, transferCall{reference: reference, to: to, amount: amount})
	return nil
}

type fakeClock struct {
	now uint64
}

func (c *fakeClock) Now() uint64 { return c.now }

type recordingSink struct {
	events []domain.PaymentRecorded
}

func (s *recordingSink) PaymentRecorded(_ context.Context, e domain.PaymentRecorded) {
	s.events = append(s.events, e)
}

type fixture struct {
	ledger   *ledger.Ledger
	store    *memory.Store
	transfer *fakeTransferer
	clock    *fakeClock
	sink     *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewStore(),
		transfer: &fakeTransferer{},
		clock:    &fakeClock{},
		sink:     &recordingSink{},
	}
	l, err := ledger.Initialize(context.Background(), f.store, owner, f.transfer, f.clock, ledger.WithEventSink(f.sink))
	require.NoError(t, err)
	f.ledger = l
	return f
}

func (f *fixture) pay(t *testing.T, from, to domain.Account, amount, at uint64, desc domain.Description) (uint64, error) {
	t.Helper()
	f.clock.now = at
	return f.ledger.RecordPayment(context.Background(), ledger.Call{Caller: from, Amount: amount}, to, desc)
}

func TestInitialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, owner, f.ledger.Owner())

	count, err := f.ledger.PaymentCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	history, err := f.ledger.PaymentHistory(ctx, owner)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)

	_, err = ledger.Initialize(ctx, f.store, alice, f.transfer, f.clock)
	require.ErrorIs(t, err, domain.ErrAlreadyInitialized)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	_, err := ledger.Open(ctx, store, &fakeTransferer{}, &fakeClock{})
	require.ErrorIs(t, err, domain.ErrNotInitialized)

	first, err := ledger.OpenOrInitialize(ctx, store, owner, &fakeTransferer{}, &fakeClock{})
	require.NoError(t, err)
	assert.Equal(t, owner, first.Owner())

	// a later start with a different configured caller keeps the stored owner
	second, err := ledger.OpenOrInitialize(ctx, store, alice, &fakeTransferer{}, &fakeClock{})
	require.NoError(t, err)
	assert.Equal(t, owner, second.Owner())
}

func TestRecordPayment_RentScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.pay(t, owner, bob, 100, 1000, domain.SomeDescription("rent"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	want := domain.Payment{
		ID:          1,
		Sender:      owner,
		Recipient:   bob,
		Amount:      100,
		Description: domain.SomeDescription("rent"),
		Timestamp:   1000,
	}

	ownerHistory, err := f.ledger.PaymentHistory(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []domain.Payment{want}, ownerHistory)

	bobHistory, err := f.ledger.PaymentHistory(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []domain.Payment{want}, bobHistory)

	count, err := f.ledger.PaymentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	assert.Equal(t, []transferCall{{to: bob, amount: 100}}, f.transfer.calls)
	assert.Equal(t, []domain.PaymentRecorded{{ID: 1, Sender: owner, Recipient: bob, Amount: 100, Timestamp: 1000}}, f.sink.events)

	id, err = f.pay(t, bob, owner, 50, 2000, domain.NoDescription())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)

	ownerHistory, err = f.ledger.PaymentHistory(ctx, owner)
	require.NoError(t, err)
	require.Len(t, ownerHistory, 2)
	assert.Equal(t, uint64(1), ownerHistory[0].ID)
	assert.Equal(t, uint64(2), ownerHistory[1].ID)
	assert.Equal(t, uint64(2000), ownerHistory[1].Timestamp)

	bobHistory, err = f.ledger.PaymentHistory(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, bobHistory, 2)

	count, err = f.ledger.PaymentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestRecordPayment_ZeroAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pay(t, owner, bob, 100, 1000, domain.NoDescription())
	require.NoError(t, err)

	_, err = f.pay(t, owner, bob, 0, 1500, domain.SomeDescription("nothing"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	count, err := f.ledger.PaymentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	history, err := f.ledger.PaymentHistory(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	assert.Len(t, f.transfer.calls, 1, "zero amount must not reach the transfer primitive")
	assert.Len(t, f.sink.events, 1)
}

func TestRecordPayment_TransferFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pay(t, owner, bob, 100, 1000, domain.NoDescription())
	require.NoError(t, err)

	before, err := f.ledger.PaymentHistory(ctx, alice)
	require.NoError(t, err)

	rejected := errors.New("recipient rejected transfer")
	f.transfer.err = rejected

	_, err = f.pay(t, alice, bob, 25, 2000, domain.NoDescription())
	require.ErrorIs(t, err, domain.ErrPaymentFailed)
	require.ErrorIs(t, err, rejected)

	count, err := f.ledger.PaymentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	after, err := f.ledger.PaymentHistory(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	bobHistory, err := f.ledger.PaymentHistory(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, bobHistory, 1)
	assert.Len(t, f.sink.events, 1)

	// the next successful payment takes the next id with no gap
	f.transfer.err = nil
	id, err := f.pay(t, alice, bob, 25, 3000, domain.NoDescription())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
}

func TestRecordPayment_SelfPaymentRecordedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.pay(t, alice, alice, 10, 1000, domain.SomeDescription("to self"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	history, err := f.ledger.PaymentHistory(ctx, alice)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, alice, history[0].Sender)
	assert.Equal(t, alice, history[0].Recipient)

	// both appends survive when the self-payment follows earlier activity
	_, err = f.pay(t, alice, bob, 5, 2000, domain.NoDescription())
	require.NoError(t, err)
	_, err = f.pay(t, alice, alice, 7, 3000, domain.NoDescription())
	require.NoError(t, err)

	history, err = f.ledger.PaymentHistory(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	count, err := f.ledger.PaymentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestRecordPayment_Invariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	accounts := []domain.Account{owner, alice, bob}
	failing := errors.New("custody unavailable")

	var ids []uint64
	for i := range 30 {
		from := accounts[i%3]
		to := accounts[(i*7+1)%3]
		amount := uint64(i % 4)

		f.transfer.err = nil
		if i%5 == 4 {
			f.transfer.err = failing
		}

		id, err := f.pay(t, from, to, amount, uint64(1000+i), domain.NoDescription())
		if err != nil {
			assert.True(t, errors.Is(err, domain.ErrInvalidAmount) || errors.Is(err, domain.ErrPaymentFailed), "unexpected error: %v", err)
			continue
		}
		ids = append(ids, id)
	}

	require.NotEmpty(t, ids)
	for i, id := range ids {
		assert.Equal(t, uint64(i+1), id, "ids must start at 1 with no gaps")
	}

	count, err := f.ledger.PaymentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(ids)), count)
	assert.Len(t, f.sink.events, len(ids))

	seen := make(map[uint64]int)
	for _, a := range accounts {
		history, err := f.ledger.PaymentHistory(ctx, a)
		require.NoError(t, err)

		var last uint64
		for _, p := range history {
			assert.True(t, p.Involves(a), "payment %d in history of uninvolved account %s", p.ID, a)
			assert.Greater(t, p.ID, last, "history must be in insertion order")
			assert.NotZero(t, p.Amount)
			last = p.ID
			seen[p.ID]++
		}
	}

	for _, id := range ids {
		assert.Contains(t, seen, id)
	}
}

func TestRecordPayment_ConcurrentCallersGetDistinctIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 50
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := alice
			if i%2 == 0 {
				from = bob
			}
			id, err := f.ledger.RecordPayment(ctx, ledger.Call{Caller: from, Amount: uint64(i + 1)}, owner, domain.NoDescription())
			assert.NoError(t, err)
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	for id := uint64(1); id <= n; id++ {
		assert.True(t, seen[id], "id %d missing", id)
	}

	history, err := f.ledger.PaymentHistory(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, history, n)
	assert.Len(t, f.transfer.calls, n)
}

func TestPaymentHistory_ReadsAreIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pay(t, owner, bob, 100, 1000, domain.SomeDescription("rent"))
	require.NoError(t, err)

	first, err := f.ledger.PaymentHistory(ctx, bob)
	require.NoError(t, err)
	second, err := f.ledger.PaymentHistory(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	first[0].Amount = 1
	third, err := f.ledger.PaymentHistory(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, second, third)
}

type failingCommitStore struct {
	*memory.Store
	err error
}

func (s *failingCommitStore) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.Store.Update(ctx, func(tx ledger.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return s.err
	})
}

func TestRecordPayment_StoreFailureIsNotPaymentFailed(t *testing.T) {
	ctx := context.Background()
	diskFull := errors.New("disk full")
	store := &failingCommitStore{Store: memory.NewStore(), err: diskFull}
	transfer := &fakeTransferer{}
	sink := &recordingSink{}

	l, err := ledger.Initialize(ctx, store, owner, transfer, &fakeClock{now: 5}, ledger.WithEventSink(sink))
	require.NoError(t, err)

	_, err = l.RecordPayment(ctx, ledger.Call{Caller: alice, Amount: 10}, bob, domain.NoDescription())
	require.ErrorIs(t, err, diskFull)
	assert.False(t, errors.Is(err, domain.ErrPaymentFailed))

	count, err := l.PaymentCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, sink.events)
}

func TestRecordPayment_TransferReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.RecordPayment(ctx, ledger.Call{Caller: alice, Amount: 1, Reference: "alice:key-1"}, bob, domain.NoDescription())
	require.NoError(t, err)
	_, err = f.ledger.RecordPayment(ctx, ledger.Call{Caller: alice, Amount: 1}, bob, domain.NoDescription())
	require.NoError(t, err)
	_, err = f.ledger.RecordPayment(ctx, ledger.Call{Caller: alice, Amount: 1}, bob, domain.NoDescription())
	require.NoError(t, err)

	require.Len(t, f.transfer.calls, 3)
	assert.Equal(t, "alice:key-1", f.transfer.calls[0].reference)
	assert.NotEmpty(t, f.transfer.calls[1].reference)
	assert.NotEqual(t, f.transfer.calls[1].reference, f.transfer.calls[2].reference, "generated references are unique")
}

func TestRecordPayment_UnknownTransferOutcome(t *testing.T) {
	f := newFixture(t)
	f.transfer.err = fmt.Errorf("Transfer: send: %w: %w", domain.ErrTransferOutcomeUnknown, context.DeadlineExceeded)

	_, err := f.pay(t, alice, bob, 10, 1000, domain.NoDescription())
	require.ErrorIs(t, err, domain.ErrPaymentFailed)
	require.ErrorIs(t, err, domain.ErrTransferOutcomeUnknown)

	count, err := f.ledger.PaymentCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRequireOwner(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ledger.RequireOwner(owner))
	require.ErrorIs(t, f.ledger.RequireOwner(alice), domain.ErrNotOwner)
}
