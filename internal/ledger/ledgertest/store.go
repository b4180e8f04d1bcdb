// Package ledgertest holds the conformance suites every ledger.Store and
// idempotency cache must pass.
package ledgertest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/ledger"
)

var (
	Owner = domain.MustParseAccount("0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d")
	Alice = domain.MustParseAccount("0x8eaf04151687736326c9fea17e25fc5287613693c912909cb226aa4794f26a48")
	Bob   = domain.MustParseAccount("0x90b5ab205c6974c9ea841be688864633dc9ca8a357843eeacf2314649965fe22")
)

var errAbort = errors.New("abort")

// RunStoreSuite runs the conformance cases. newStore must return an empty,
// uninitialized store on every call.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("owner before initialize", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Owner(context.Background())
		require.ErrorIs(t, err, domain.ErrNotInitialized)
	})

	t.Run("initialize once", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Initialize(ctx, Owner))
		owner, err := s.Owner(ctx)
		require.NoError(t, err)
		assert.Equal(t, Owner, owner)

		err = s.Initialize(ctx, Alice)
		require.ErrorIs(t, err, domain.ErrAlreadyInitialized)

		owner, err = s.Owner(ctx)
		require.NoError(t, err)
		assert.Equal(t, Owner, owner, "owner must not change")
	})

	t.Run("empty reads", func(t *testing.T) {
		s := initialized(t, newStore)
		ctx := context.Background()

		history, err := s.History(ctx, Alice)
		require.NoError(t, err)
		assert.Empty(t, history)

		count, err := s.PaymentCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("update commits", func(t *testing.T) {
		s := initialized(t, newStore)
		ctx := context.Background()

		p1 := payment(1, Alice, Bob, 100, domain.SomeDescription("rent"), 1000)
		p2 := payment(2, Bob, Alice, 50, domain.NoDescription(), 2000)

		err := s.Update(ctx, func(tx ledger.Tx) error {
			require.NoError(t, tx.PutHistory(ctx, Alice, []domain.Payment{p1, p2}))
			require.NoError(t, tx.PutHistory(ctx, Bob, []domain.Payment{p1}))
			return tx.SetPaymentCount(ctx, 2)
		})
		require.NoError(t, err)

		history, err := s.History(ctx, Alice)
		require.NoError(t, err)
		assert.Equal(t, []domain.Payment{p1, p2}, history)

		history, err = s.History(ctx, Bob)
		require.NoError(t, err)
		assert.Equal(t, []domain.Payment{p1}, history)

		count, err := s.PaymentCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), count)
	})

	t.Run("update rolls back on error", func(t *testing.T) {
		s := initialized(t, newStore)
		ctx := context.Background()

		p1 := payment(1, Alice, Bob, 100, domain.NoDescription(), 1000)
		err := s.Update(ctx, func(tx ledger.Tx) error {
			require.NoError(t, tx.PutHistory(ctx, Alice, []domain.Payment{p1}))
			require.NoError(t, tx.SetPaymentCount(ctx, 1))
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		history, err := s.History(ctx, Alice)
		require.NoError(t, err)
		assert.Empty(t, history)

		count, err := s.PaymentCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("tx reads its own writes", func(t *testing.T) {
		s := initialized(t, newStore)
		ctx := context.Background()

		p1 := payment(1, Alice, Alice, 10, domain.NoDescription(), 1)
		err := s.Update(ctx, func(tx ledger.Tx) error {
			require.NoError(t, tx.PutHistory(ctx, Alice, []domain.Payment{p1}))
			require.NoError(t, tx.SetPaymentCount(ctx, 1))

			history, err := tx.History(ctx, Alice)
			require.NoError(t, err)
			assert.Equal(t, []domain.Payment{p1}, history)

			count, err := tx.PaymentCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), count)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("returned history is a copy", func(t *testing.T) {
		s := initialized(t, newStore)
		ctx := context.Background()

		p1 := payment(1, Alice, Bob, 100, domain.NoDescription(), 1000)
		require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
			return tx.PutHistory(ctx, Alice, []domain.Payment{p1})
		}))

		history, err := s.History(ctx, Alice)
		require.NoError(t, err)
		history[0].Amount = 999

		again, err := s.History(ctx, Alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), again[0].Amount)
	})

	t.Run("large values survive", func(t *testing.T) {
		s := initialized(t, newStore)
		ctx := context.Background()

		p := payment(1, Alice, Bob, ^uint64(0), domain.SomeDescription("ünïcode ✓"), ^uint64(0)>>1)
		require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
			return tx.PutHistory(ctx, Bob, []domain.Payment{p})
		}))

		history, err := s.History(ctx, Bob)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, p, history[0])
	})
}

func initialized(t *testing.T, newStore func(t *testing.T) ledger.Store) ledger.Store {
	t.Helper()
	s := newStore(t)
	require.NoError(t, s.Initialize(context.Background(), Owner))
	return s
}

func payment(id uint64, from, to domain.Account, amount uint64, desc domain.Description, ts uint64) domain.Payment {
	return domain.Payment{
		ID:          id,
		Sender:      from,
		Recipient:   to,
		Amount:      amount,
		Description: desc,
		Timestamp:   ts,
	}
}
