package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payment-ledger/internal/config"
	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/ledger"
	"github.com/josh-kwaku/payment-ledger/internal/repository"
	"github.com/josh-kwaku/payment-ledger/internal/storage/memory"
	"github.com/josh-kwaku/payment-ledger/internal/storage/sqlite"
)

type outboxStore interface {
	Create(ctx context.Context, event *domain.OutboxEvent) error
	GetPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OutboxEventStatus) error
}

type idempotencyStore interface {
	Reserve(ctx context.Context, entry *domain.IdempotencyEntry) (*domain.IdempotencyEntry, error)
	Set(ctx context.Context, entry *domain.IdempotencyEntry) error
	CleanExpired(ctx context.Context) (int64, error)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// backend bundles the storage pieces for one STORE_DRIVER. outbox and pinger
// are nil for the memory driver.
type backend struct {
	store       ledger.Store
	outbox      outboxStore
	idempotency idempotencyStore
	pinger      pinger
	close       func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := connectDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:       repository.NewLedgerStore(db),
			outbox:      repository.NewOutboxRepository(db),
			idempotency: repository.NewIdempotencyRepository(db),
			pinger:      db,
			close:       func() { db.Close() },
		}, nil

	case config.StoreDriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("openBackend: create data dir: %w", err)
			}
		}
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("openBackend: %w", err)
		}
		return &backend{
			store:       s,
			outbox:      s.Outbox(),
			idempotency: s.Idempotency(),
			pinger:      s,
			close:       func() { s.Close() },
		}, nil

	case config.StoreDriverMemory:
		slog.Warn("memory store selected, ledger state is lost on restart")
		return &backend{
			store:       memory.NewStore(),
			idempotency: memory.NewIdempotency(),
			close:       func() {},
		}, nil
	}
	return nil, fmt.Errorf("openBackend: unknown driver %q", cfg.StoreDriver)
}

// connectDB retries while the database container is still starting.
func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var err error
	for i := range 30 {
		var db *sql.DB
		if db, err = repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connectDB: %w", ctx.Err())
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
