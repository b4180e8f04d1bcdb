// Command custody-mock stands in for the custody service in local runs. It
// holds a single balance, performs each transfer reference at most once, and
// doubles as a webhook receiver that verifies and logs ledger events.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	env "github.com/caarlos0/env/v11"
	"github.com/google/uuid"

	"github.com/josh-kwaku/payment-ledger/internal/custody"
	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/events"
	"github.com/josh-kwaku/payment-ledger/internal/logging"
)

type mockConfig struct {
	Port             int      `env:"PORT" envDefault:"8081"`
	Balance          uint64   `env:"CUSTODY_BALANCE" envDefault:"1000000000000000"`
	RejectRecipients []string `env:"REJECT_RECIPIENTS" envSeparator:","`
	WebhookSecret    string   `env:"WEBHOOK_SECRET"`
	LogLevel         string   `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv           string   `env:"APP_ENV" envDefault:"development"`
}

func main() {
	cfg, err := env.ParseAs[mockConfig]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("custody-mock", cfg.LogLevel, cfg.AppEnv)

	srv, err := newServer(cfg)
	if err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("custody mock started", "addr", addr, "balance", cfg.Balance)
	if err := http.ListenAndServe(addr, srv.routes()); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

type completedTransfer struct {
	id     string
	to     domain.Account
	amount uint64
}

type server struct {
	mu            sync.Mutex
	balance       uint64
	rejected      map[domain.Account]bool
	completed     map[string]completedTransfer
	webhookSecret string
}

func newServer(cfg mockConfig) (*server, error) {
	s := &server{
		balance:       cfg.Balance,
		rejected:      make(map[domain.Account]bool),
		completed:     make(map[string]completedTransfer),
		webhookSecret: cfg.WebhookSecret,
	}
	for _, raw := range cfg.RejectRecipients {
		acc, err := domain.ParseAccount(raw)
		if err != nil {
			return nil, fmt.Errorf("REJECT_RECIPIENTS: %w", err)
		}
		s.rejected[acc] = true
	}
	return s, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /balance", s.handleBalance)
	mux.HandleFunc("POST /transfers", s.handleTransfer)
	mux.HandleFunc("POST /webhooks", s.handleWebhook)
	return mux
}

func (s *server) handleBalance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": s.balance})
}

func (s *server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req custody.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Amount == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be positive"})
		return
	}
	if req.Reference == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reference is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if done, ok := s.completed[req.Reference]; ok {
		if done.to != req.To || done.amount != req.Amount {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "reference already used for a different transfer"})
			return
		}
		slog.Info("transfer replayed", "reference", req.Reference, "transfer_id", done.id)
		writeJSON(w, http.StatusOK, custody.TransferResponse{TransferID: done.id, Replayed: true})
		return
	}

	if s.rejected[req.To] {
		slog.Info("transfer rejected", "recipient", req.To, "amount", req.Amount)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "recipient rejected"})
		return
	}
	if req.Amount > s.balance {
		slog.Info("insufficient balance", "recipient", req.To, "amount", req.Amount, "balance", s.balance)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "insufficient balance"})
		return
	}

	s.balance -= req.Amount
	id := uuid.NewString()
	s.completed[req.Reference] = completedTransfer{id: id, to: req.To, amount: req.Amount}
	slog.Info("transfer completed", "reference", req.Reference, "transfer_id", id, "recipient", req.To, "amount", req.Amount, "balance", s.balance)
	writeJSON(w, http.StatusOK, custody.TransferResponse{TransferID: id})
}

func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	if s.webhookSecret != "" && !events.Verify(body, r.Header.Get(events.SignatureHeader), s.webhookSecret) {
		slog.Warn("webhook signature mismatch", "event_id", r.Header.Get(events.EventIDHeader))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}
	slog.Info("webhook received", "event_id", r.Header.Get(events.EventIDHeader), "body", string(body))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
