package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
)

type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Get returns nil, nil when no live entry exists for key and caller.
func (r *IdempotencyRepository) Get(ctx context.Context, key string, caller domain.Account) (*domain.IdempotencyEntry, error) {
	var (
		e         domain.IdempotencyEntry
		rawCaller string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT idempotency_key, caller, request_hash, status_code, response_body, created_at, expires_at
		FROM idempotency_cache
		WHERE idempotency_key = $1 AND caller = $2 AND expires_at > now()`,
		key, caller.String(),
	).Scan(&e.Key, &rawCaller, &e.RequestHash, &e.StatusCode, &e.ResponseBody, &e.CreatedAt, &e.ExpiresAt)
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
	return &e, nil
}

// Reserve inserts entry unless a live row already holds its key, in which
// case that row is returned. Expired rows are overwritten. Concurrent
// reservations of one key resolve on the primary key: exactly one inserts.
func (r *IdempotencyRepository) Reserve(ctx context.Context, entry *domain.IdempotencyEntry) (*domain.IdempotencyEntry, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO idempotency_cache (idempotency_key, caller, request_hash, status_code, response_body, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key, caller) DO UPDATE SET
			request_hash = EXCLUDED.request_hash,
			status_code = EXCLUDED.status_code,
			response_body = EXCLUDED.response_body,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_cache.expires_at <= now()`,
		entry.Key, entry.Caller.String(), entry.RequestHash, entry.StatusCode, entry.ResponseBody, entry.CreatedAt, entry.ExpiresAt,
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
func (r *IdempotencyRepository) Set(ctx context.Context, entry *domain.IdempotencyEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO idempotency_cache (idempotency_key, caller, request_hash, status_code, response_body, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key, caller) DO UPDATE SET
			request_hash = EXCLUDED.request_hash,
			status_code = EXCLUDED.status_code,
			response_body = EXCLUDED.response_body,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		entry.Key, entry.Caller.String(), entry.RequestHash, entry.StatusCode, entry.ResponseBody, entry.CreatedAt, entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("Set: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) CleanExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_cache WHERE expires_at < now()`,
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
