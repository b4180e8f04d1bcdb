package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/ledger/ledgertest"
)

func TestIdempotency_Conformance(t *testing.T) {
	ledgertest.RunIdempotencySuite(t, func(t *testing.T) ledgertest.IdempotencyCache {
		return NewIdempotency()
	})
}

func TestIdempotency_HoldsItsOwnCopy(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := NewIdempotency()
	c.now = func() time.Time { return now }

	entry := &domain.IdempotencyEntry{
		Key: "k", Caller: ledgertest.Alice, RequestHash: "h", StatusCode: 201,
		ResponseBody: []byte("body"), CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, c.Set(ctx, entry))
	entry.ResponseBody[0] = 'X'

	got, err := c.Get(ctx, "k", ledgertest.Alice)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("body"), got.ResponseBody)

	got.ResponseBody[0] = 'Y'
	again, err := c.Get(ctx, "k", ledgertest.Alice)
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), again.ResponseBody)
}
