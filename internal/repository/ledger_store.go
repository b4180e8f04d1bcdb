package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/lib/pq"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/ledger"
)

const uniqueViolation = "23505"

// LedgerStore keeps the ledger in two tables: a single ledger_meta row holding
// the owner and counter, and one JSONB history document per account.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Initialize(ctx context.Context, owner domain.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_meta (id, owner, payment_count) VALUES (1, $1, 0)`,
		owner.String(),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("Initialize: %w", domain.ErrAlreadyInitialized)
	}
	if err != nil {
		return fmt.Errorf("Initialize: %w", err)
	}
	return nil
}

func (s *LedgerStore) Owner(ctx context.Context) (domain.Account, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT owner FROM ledger_meta WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("Owner: %w", domain.ErrNotInitialized)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("Owner: %w", err)
	}
	owner, err := domain.ParseAccount(raw)
	if err != nil {
		return domain.Account{}, fmt.Errorf("Owner: stored owner: %w", err)
	}
	return owner, nil
}

func (s *LedgerStore) History(ctx context.Context, account domain.Account) ([]domain.Payment, error) {
	history, err := scanHistory(s.db.QueryRowContext(ctx,
		`SELECT payments FROM payment_histories WHERE account = $1`, account.String(),
	))
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return history, nil
}

func (s *LedgerStore) PaymentCount(ctx context.Context) (uint64, error) {
	count, err := scanCount(s.db.QueryRowContext(ctx, `SELECT payment_count FROM ledger_meta WHERE id = 1`))
	if err != nil {
		return 0, fmt.Errorf("PaymentCount: %w", err)
	}
	return count, nil
}

// Update runs fn in a transaction holding the ledger_meta row lock, so
// concurrent writers from any replica are applied one at a time.
func (s *LedgerStore) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Update: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := scanCount(tx.QueryRowContext(ctx,
		`SELECT payment_count FROM ledger_meta WHERE id = 1 FOR UPDATE`,
	)); err != nil {
		return fmt.Errorf("Update: lock ledger: %w", err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Update: commit: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) PaymentCount(ctx context.Context) (uint64, error) {
	count, err := scanCount(t.tx.QueryRowContext(ctx, `SELECT payment_count FROM ledger_meta WHERE id = 1`))
	if err != nil {
		return 0, fmt.Errorf("PaymentCount: %w", err)
	}
	return count, nil
}

func (t *pgTx) SetPaymentCount(ctx context.Context, n uint64) error {
	if n > math.MaxInt64 {
		return fmt.Errorf("SetPaymentCount: count %d exceeds storage range", n)
	}
	_, err := t.tx.ExecContext(ctx,
		`UPDATE ledger_meta SET payment_count = $1, updated_at = now() WHERE id = 1`, int64(n),
	)
	if err != nil {
		return fmt.Errorf("SetPaymentCount: %w", err)
	}
	return nil
}

func (t *pgTx) History(ctx context.Context, account domain.Account) ([]domain.Payment, error) {
	history, err := scanHistory(t.tx.QueryRowContext(ctx,
		`SELECT payments FROM payment_histories WHERE account = $1`, account.String(),
	))
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return history, nil
}

func (t *pgTx) PutHistory(ctx context.Context, account domain.Account, payments []domain.Payment) error {
	encoded, err := json.Marshal(payments)
	if err != nil {
		return fmt.Errorf("PutHistory: marshal: %w", err)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO payment_histories (account, payments, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (account) DO UPDATE SET payments = EXCLUDED.payments, updated_at = EXCLUDED.updated_at`,
		account.String(), encoded,
	)
	if err != nil {
		return fmt.Errorf("PutHistory: %w", err)
	}
	return nil
}

func scanCount(s scanner) (uint64, error) {
	var count int64
	err := s.Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotInitialized
	}
	if err != nil {
		return 0, err
	}
	return uint64(count), nil
}

func scanHistory(s scanner) ([]domain.Payment, error) {
	var raw []byte
	err := s.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.Payment{}, nil
	}
	if err != nil {
		return nil, err
	}
	var payments []domain.Payment
	if err := json.Unmarshal(raw, &payments); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return payments, nil
}
