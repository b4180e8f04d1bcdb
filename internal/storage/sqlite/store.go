// Package sqlite provides a SQLite-backed ledger store and event outbox for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/ledger"
	"github.com/josh-kwaku/payment-ledger/internal/storage/sqlite/migrations"
)

// Store persists ledger state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

// Open opens a SQLite ledger store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("Open: storage path is required")
	}
	// modernc applies _pragma on every new connection; writers queue on
	// busy_timeout instead of failing with SQLITE_BUSY.
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("Open: ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("Open: run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) PingContext(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) Initialize(ctx context.Context, owner domain.Account) error {
	now := nowMillis()
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO ledger_meta (id, owner, payment_count, created_at, updated_at) VALUES (1, ?, 0, ?, ?)`,
		owner.String(), now, now,
	)
	if isConstraintError(err) {
		return fmt.Errorf("Initialize: %w", domain.ErrAlreadyInitialized)
	}
	if err != nil {
		return fmt.Errorf("Initialize: %w", err)
	}
	return nil
}

func (s *Store) Owner(ctx context.Context) (domain.Account, error) {
	var raw string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT owner FROM ledger_meta WHERE id = 1`).Scan(&raw)
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

func (s *Store) History(ctx context.Context, account domain.Account) ([]domain.Payment, error) {
	history, err := readHistory(ctx, s.sqlDB, account)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return history, nil
}

func (s *Store) PaymentCount(ctx context.Context) (uint64, error) {
	count, err := readCount(ctx, s.sqlDB)
	if err != nil {
		return 0, fmt.Errorf("PaymentCount: %w", err)
	}
	return count, nil
}

// Update runs fn in one SQLite transaction. The connection is opened with an
// immediate transaction lock, so writers are serialized across processes.
func (s *Store) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Update: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := readCount(ctx, tx); err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Update: commit: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) PaymentCount(ctx context.Context) (uint64, error) {
	return readCount(ctx, t.tx)
}

func (t *sqliteTx) SetPaymentCount(ctx context.Context, n uint64) error {
	if n > math.MaxInt64 {
		return fmt.Errorf("SetPaymentCount: count %d exceeds storage range", n)
	}
	_, err := t.tx.ExecContext(ctx,
		`UPDATE ledger_meta SET payment_count = ?, updated_at = ? WHERE id = 1`,
		int64(n), nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("SetPaymentCount: %w", err)
	}
	return nil
}

func (t *sqliteTx) History(ctx context.Context, account domain.Account) ([]domain.Payment, error) {
	return readHistory(ctx, t.tx, account)
}

func (t *sqliteTx) PutHistory(ctx context.Context, account domain.Account, payments []domain.Payment) error {
	encoded, err := json.Marshal(payments)
	if err != nil {
		return fmt.Errorf("PutHistory: marshal: %w", err)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO payment_histories (account, payments, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (account) DO UPDATE SET payments = excluded.payments, updated_at = excluded.updated_at`,
		account.String(), string(encoded), nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("PutHistory: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readCount(ctx context.Context, q queryer) (uint64, error) {
	var count int64
	err := q.QueryRowContext(ctx, `SELECT payment_count FROM ledger_meta WHERE id = 1`).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotInitialized
	}
	if err != nil {
		return 0, err
	}
	return uint64(count), nil
}

func readHistory(ctx context.Context, q queryer, account domain.Account) ([]domain.Payment, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT payments FROM payment_histories WHERE account = ?`, account.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.Payment{}, nil
	}
	if err != nil {
		return nil, err
	}
	var payments []domain.Payment
	if err := json.Unmarshal([]byte(raw), &payments); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", account, err)
	}
	return payments, nil
}

func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
