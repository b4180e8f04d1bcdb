package repository

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
)

const outboxColumns = `id, payment_id, event_type, payload, request_id, status,
	attempts, last_attempt, created_at`

// OutboxClaimLease is how long a row returned by GetPending stays hidden from
// other dispatchers before it is handed out again.
const OutboxClaimLease = time.Minute

type OutboxRepository struct {
	db    *sql.DB
	lease time.Duration
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db, lease: OutboxClaimLease}
}

func (r *OutboxRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO outbox_events (`+outboxColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, int64(event.PaymentID), event.EventType, []byte(event.Payload), event.RequestID,
		event.Status, event.Attempts, event.LastAttempt, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// GetPending claims up to limit pending events, oldest first. Claimed rows
// are skipped by concurrent callers until UpdateStatus releases them or the
// lease runs out, so replicas sharing the database never deliver one row twice.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE outbox_events SET claimed_until = now() + $2::bigint * interval '1 millisecond'
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $1 AND (claimed_until IS NULL OR claimed_until <= now())
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+outboxColumns,
		domain.OutboxEventStatusPending, r.lease.Milliseconds(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("GetPending: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("GetPending: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetPending: rows: %w", err)
	}

	// RETURNING carries no order
	slices.SortStableFunc(events, func(a, b domain.OutboxEvent) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return events, nil
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OutboxEventStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events
		SET status = $1, attempts = attempts + 1, last_attempt = now(), claimed_until = NULL
		WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func scanOutboxEvent(s scanner) (*domain.OutboxEvent, error) {
	var (
		e         domain.OutboxEvent
		paymentID int64
		payload   []byte
	)
	err := s.Scan(
		&e.ID, &paymentID, &e.EventType, &payload, &e.RequestID,
		&e.Status, &e.Attempts, &e.LastAttempt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.PaymentID = uint64(paymentID)
	e.Payload = payload
	return &e, nil
}
