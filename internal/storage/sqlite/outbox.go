package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
)

const outboxColumns = `id, payment_id, event_type, payload, request_id, status, attempts, last_attempt, created_at`

// outboxClaimLease is how long a row returned by GetPending stays hidden from
// other dispatchers on the same file.
const outboxClaimLease = time.Minute

// Outbox stores ledger events awaiting webhook delivery in the same database
// as the ledger.
type Outbox struct {
	sqlDB *sql.DB
	lease time.Duration
}

func (s *Store) Outbox() *Outbox {
	return &Outbox{sqlDB: s.sqlDB, lease: outboxClaimLease}
}

// Create stores a pending outbox event.
func (s *Outbox) Create(ctx context.Context, event *domain.OutboxEvent) error {
	var lastAttempt sql.NullInt64
	if event.LastAttempt != nil {
		lastAttempt = sql.NullInt64{Int64: event.LastAttempt.UTC().UnixMilli(), Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO outbox_events (`+outboxColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID.String(), int64(event.PaymentID), string(event.EventType), string(event.Payload), event.RequestID,
		string(event.Status), event.Attempts, lastAttempt, event.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// GetPending claims up to limit pending events, oldest first. A claimed row
// is not handed out again until UpdateStatus releases it or the lease ends.
func (s *Outbox) GetPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	now := nowMillis()
	rows, err := s.sqlDB.QueryContext(ctx,
		`UPDATE outbox_events SET claimed_until = ?
		 WHERE rowid IN (
		     SELECT rowid FROM outbox_events
		     WHERE status = ? AND (claimed_until IS NULL OR claimed_until <= ?)
		     ORDER BY created_at, rowid
		     LIMIT ?
		 )
		 RETURNING `+outboxColumns,
		now+s.lease.Milliseconds(), string(domain.OutboxEventStatusPending), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("GetPending: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var (
			e           domain.OutboxEvent
			id, payload string
			eventType   string
			status      string
			paymentID   int64
			lastAttempt sql.NullInt64
			createdAt   int64
		)
		if err := rows.Scan(&id, &paymentID, &eventType, &payload, &e.RequestID, &status, &e.Attempts, &lastAttempt, &createdAt); err != nil {
			return nil, fmt.Errorf("GetPending: scan: %w", err)
		}
		e.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("GetPending: event id: %w", err)
		}
		e.PaymentID = uint64(paymentID)
		e.EventType = domain.OutboxEventType(eventType)
		e.Payload = []byte(payload)
		e.Status = domain.OutboxEventStatus(status)
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		if lastAttempt.Valid {
			t := time.UnixMilli(lastAttempt.Int64).UTC()
			e.LastAttempt = &t
		}
		events = append(events, e)
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

// UpdateStatus records a delivery attempt and moves the event to status.
func (s *Outbox) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OutboxEventStatus) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE outbox_events
		 SET status = ?, attempts = attempts + 1, last_attempt = ?, claimed_until = NULL
		 WHERE id = ?`,
		string(status), nowMillis(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}
