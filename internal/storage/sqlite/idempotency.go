package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
)

// Idempotency caches responses of mutating requests per key and caller.
type Idempotency struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func (s *Store) Idempotency() *Idempotency {
	return &Idempotency{sqlDB: s.sqlDB, now: time.Now}
}

// Get returns nil, nil when no live entry exists for key and caller.
func (r *Idempotency) Get(ctx context.Context, key string, caller domain.Account) (*domain.IdempotencyEntry, error) {
	var (
		e                    domain.IdempotencyEntry
		rawCaller            string
		createdAt, expiresAt int64
	)
	err := r.sqlDB.QueryRowContext(ctx,
		`SELECT idempotency_key, caller, request_hash, status_code, response_body, created_at, expires_at
		 FROM idempotency_cache
		 WHERE idempotency_key = ? AND caller = ? AND expires_at > ?`,
		key, caller.String(), r.now().UTC().UnixMilli(),
	).Scan(&e.Key, &rawCaller, &e.RequestHash, &e.StatusCode, &e.ResponseBody, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	e.Caller, err = domain.ParseAccount(rawCaller)
	if err != nil {
		return nil, fmt.Errorf("Get: stored caller: %w", err)
	}
	e.CreatedAt = time.UnixMilli(createdAt).UTC()
	e.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &e, nil
}

// Reserve inserts entry unless a live row already holds its key, in which
// case that row is returned. Expired rows are overwritten.
func (r *Idempotency) Reserve(ctx context.Context, entry *domain.IdempotencyEntry) (*domain.IdempotencyEntry, error) {
	res, err := r.sqlDB.ExecContext(ctx,
		`INSERT INTO idempotency_cache (idempotency_key, caller, request_hash, status_code, response_body, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (idempotency_key, caller) DO UPDATE SET
		     request_hash = excluded.request_hash,
		     status_code = excluded.status_code,
		     response_body = excluded.response_body,
		     created_at = excluded.created_at,
		     expires_at = excluded.expires_at
		 WHERE idempotency_cache.expires_at <= ?`,
		entry.Key, entry.Caller.String(), entry.RequestHash, entry.StatusCode, entry.ResponseBody,
		entry.CreatedAt.UTC().UnixMilli(), entry.ExpiresAt.UTC().UnixMilli(), r.now().UTC().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("Reserve: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("Reserve: rows affected: %w", err)
	}
	if n == 1 {
		return nil, nil
	}

	existing, err := r.Get(ctx, entry.Key, entry.Caller)
	if err != nil {
		return nil, fmt.Errorf("Reserve: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("Reserve: key %q expired while contended", entry.Key)
	}
	return existing, nil
}

// Set stores the final response for entry's key, replacing any reservation.
func (r *Idempotency) Set(ctx context.Context, entry *domain.IdempotencyEntry) error {
	_, err := r.sqlDB.ExecContext(ctx,
		`INSERT INTO idempotency_cache (idempotency_key, caller, request_hash, status_code, response_body, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (idempotency_key, caller) DO UPDATE SET
		     request_hash = excluded.request_hash,
		     status_code = excluded.status_code,
		     response_body = excluded.response_body,
		     created_at = excluded.created_at,
		     expires_at = excluded.expires_at`,
		entry.Key, entry.Caller.String(), entry.RequestHash, entry.StatusCode, entry.ResponseBody,
		entry.CreatedAt.UTC().UnixMilli(), entry.ExpiresAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("Set: %w", err)
	}
	return nil
}

func (r *Idempotency) CleanExpired(ctx context.Context) (int64, error) {
	res, err := r.sqlDB.ExecContext(ctx,
		`DELETE FROM idempotency_cache WHERE expires_at < ?`, r.now().UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: rows affected: %w", err)
	}
	return n, nil
}
