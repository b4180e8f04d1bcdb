package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/josh-kwaku/payment-ledger/internal/clock"
	"github.com/josh-kwaku/payment-ledger/internal/config"
	"github.com/josh-kwaku/payment-ledger/internal/custody"
	"github.com/josh-kwaku/payment-ledger/internal/events"
	"github.com/josh-kwaku/payment-ledger/internal/handler"
	"github.com/josh-kwaku/payment-ledger/internal/ledger"
	"github.com/josh-kwaku/payment-ledger/internal/logging"
	"github.com/josh-kwaku/payment-ledger/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("payment-ledger", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer b.close()

	// Outbox events are only written when something will deliver them.
	webhooks := cfg.WebhookURL != "" && b.outbox != nil
	sinks := []events.Sink{events.MetricsSink{}}
	if webhooks {
		sinks = append(sinks, events.NewOutboxSink(b.outbox))
	}

	l, err := ledger.OpenOrInitialize(ctx, b.store, cfg.Owner(),
		custody.NewClient(cfg.CustodyURL, cfg.CustodyTimeout()),
		clock.NewSystem(),
		ledger.WithEventSink(events.Multi(sinks...)),
	)
	if err != nil {
		slog.Error("failed to open ledger", "error", err)
		os.Exit(1)
	}
	slog.Info("ledger ready", "owner", l.Owner(), "driver", cfg.StoreDriver)

	if webhooks {
		dispatcher := events.NewDispatcher(b.outbox, events.DispatcherConfig{
			URL:         cfg.WebhookURL,
			Secret:      cfg.WebhookSecret,
			Interval:    cfg.DispatchInterval(),
			MaxAttempts: cfg.DispatchMaxAttempts,
		}, slog.Default())
		go dispatcher.Start(ctx)
	}

	ledgerHandler := handler.NewLedgerHandler(l, cfg.Denomination(), cfg.MaxDescriptionBytes)
	adminHandler := handler.NewAdminHandler(l, b.idempotency)
	healthHandler := handler.NewHealthHandler(b.pinger)

	authenticated := middleware.Auth(cfg.JWTSecret)
	idempotent := middleware.Idempotency(b.idempotency)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/v1/payments", authenticated(idempotent(http.HandlerFunc(ledgerHandler.CreatePayment))))
	mux.HandleFunc("GET /api/v1/accounts/{account}/payments", ledgerHandler.History)
	mux.HandleFunc("GET /api/v1/ledger", ledgerHandler.Summary)
	mux.HandleFunc("GET /api/v1/ledger/owner", ledgerHandler.Owner)
	mux.HandleFunc("GET /api/v1/ledger/payment-count", ledgerHandler.PaymentCount)
	mux.Handle("POST /api/v1/admin/idempotency/purge", authenticated(http.HandlerFunc(adminHandler.PurgeIdempotency)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.Tracing(middleware.Logging(middleware.Recovery(middleware.Metrics(mux)))),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	slog.Info("server stopped")
}
