package ledgertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
)

// IdempotencyCache is the storage surface behind the idempotency middleware.
type IdempotencyCache interface {
	Get(ctx context.Context, key string, caller domain.Account) (*domain.IdempotencyEntry, error)
	Reserve(ctx context.Context, entry *domain.IdempotencyEntry) (*domain.IdempotencyEntry, error)
	Set(ctx context.Context, entry *domain.IdempotencyEntry) error
	CleanExpired(ctx context.Context) (int64, error)
}

func pendingEntry(key string, caller domain.Account, hash string, ttl time.Duration) *domain.IdempotencyEntry {
	now := time.Now().UTC()
	return &domain.IdempotencyEntry{
		Key:         key,
		Caller:      caller,
		RequestHash: hash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// RunIdempotencySuite runs the conformance cases against wall-clock time.
// newCache must return an empty cache on every call.
func RunIdempotencySuite(t *testing.T, newCache func(t *testing.T) IdempotencyCache) {
	t.Run("reserve then complete", func(t *testing.T) {
		c := newCache(t)
		ctx := context.Background()

		got, err := c.Get(ctx, "k", Alice)
		require.NoError(t, err)
		assert.Nil(t, got)

		entry := pendingEntry("k", Alice, "h1", time.Hour)
		existing, err := c.Reserve(ctx, entry)
		require.NoError(t, err)
		assert.Nil(t, existing, "first reservation wins")

		existing, err = c.Reserve(ctx, pendingEntry("k", Alice, "h1", time.Hour))
		require.NoError(t, err)
		require.NotNil(t, existing)
		assert.True(t, existing.Pending())
		assert.Equal(t, "h1", existing.RequestHash)

		entry.StatusCode = 201
		entry.ResponseBody = []byte(`{"success":true}`)
		require.NoError(t, c.Set(ctx, entry))

		existing, err = c.Reserve(ctx, pendingEntry("k", Alice, "h1", time.Hour))
		require.NoError(t, err)
		require.NotNil(t, existing)
		assert.False(t, existing.Pending())
		assert.Equal(t, 201, existing.StatusCode)
		assert.Equal(t, []byte(`{"success":true}`), existing.ResponseBody)
	})

	t.Run("keys are scoped per caller", func(t *testing.T) {
		c := newCache(t)
		ctx := context.Background()

		_, err := c.Reserve(ctx, pendingEntry("k", Alice, "h1", time.Hour))
		require.NoError(t, err)

		existing, err := c.Reserve(ctx, pendingEntry("k", Bob, "h1", time.Hour))
		require.NoError(t, err)
		assert.Nil(t, existing)

		got, err := c.Get(ctx, "k", Bob)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, Bob, got.Caller)
	})

	t.Run("expired key is reclaimed", func(t *testing.T) {
		c := newCache(t)
		ctx := context.Background()

		stale := pendingEntry("k", Alice, "old", -time.Minute)
		stale.StatusCode = 500
		stale.ResponseBody = []byte(`{}`)
		require.NoError(t, c.Set(ctx, stale))

		got, err := c.Get(ctx, "k", Alice)
		require.NoError(t, err)
		assert.Nil(t, got, "expired entries are invisible")

		existing, err := c.Reserve(ctx, pendingEntry("k", Alice, "new", time.Hour))
		require.NoError(t, err)
		assert.Nil(t, existing, "an expired entry does not block a new reservation")

		fresh := pendingEntry("k", Alice, "new", time.Hour)
		fresh.StatusCode = 201
		fresh.ResponseBody = []byte(`{"id":2}`)
		require.NoError(t, c.Set(ctx, fresh))

		got, err = c.Get(ctx, "k", Alice)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "new", got.RequestHash)
		assert.Equal(t, 201, got.StatusCode)
	})

	t.Run("concurrent reservations of one key", func(t *testing.T) {
		c := newCache(t)
		ctx := context.Background()

		const n = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				existing, err := c.Reserve(ctx, pendingEntry("race", Alice, "h", time.Hour))
				if !assert.NoError(t, err) {
					return
				}
				if existing == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("clean expired", func(t *testing.T) {
		c := newCache(t)
		ctx := context.Background()

		_, err := c.Reserve(ctx, pendingEntry("live", Alice, "h", time.Hour))
		require.NoError(t, err)
		stale := pendingEntry("stale", Alice, "h", -time.Minute)
		stale.StatusCode = 201
		require.NoError(t, c.Set(ctx, stale))

		n, err := c.CleanExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := c.Get(ctx, "live", Alice)
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}
