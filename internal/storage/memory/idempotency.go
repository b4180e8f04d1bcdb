package memory

import (
	"context"
	"sync"
	"time"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
)

type idempotencyKey struct {
	key    string
	caller domain.Account
}

// Idempotency is a process-local response cache for the idempotency middleware.
type Idempotency struct {
	mu      sync.Mutex
	entries map[idempotencyKey]domain.IdempotencyEntry
	now     func() time.Time
}

func NewIdempotency() *Idempotency {
	return &Idempotency{entries: make(map[idempotencyKey]domain.IdempotencyEntry), now: time.Now}
}

func (c *Idempotency) Get(_ context.Context, key string, caller domain.Account) (*domain.IdempotencyEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(idempotencyKey{key, caller})
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Reserve stores entry unless a live entry already holds its key, in which
// case that entry is returned and nothing is written.
func (c *Idempotency) Reserve(_ context.Context, entry *domain.IdempotencyEntry) (*domain.IdempotencyEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := idempotencyKey{entry.Key, entry.Caller}
	if e, ok := c.live(k); ok {
		return &e, nil
	}
	c.entries[k] = clone(*entry)
	return nil, nil
}

// Set stores the final response for entry's key, replacing any reservation.
func (c *Idempotency) Set(_ context.Context, entry *domain.IdempotencyEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[idempotencyKey{entry.Key, entry.Caller}] = clone(*entry)
	return nil
}

func (c *Idempotency) CleanExpired(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var n int64
	for k, e := range c.entries {
		if e.ExpiresAt.Before(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

func (c *Idempotency) live(k idempotencyKey) (domain.IdempotencyEntry, bool) {
	e, ok := c.entries[k]
	if !ok || !e.ExpiresAt.After(c.now()) {
		return domain.IdempotencyEntry{}, false
	}
	return clone(e), true
}

func clone(e domain.IdempotencyEntry) domain.IdempotencyEntry {
	e.ResponseBody = append([]byte(nil), e.ResponseBody...)
	return e
}
