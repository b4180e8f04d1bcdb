package handler

import (
	"context"
	"net/http"

	"github.com/josh-kwaku/payment-ledger/internal/auth"
	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/logging"
)

type ownerGate interface {
	RequireOwner(caller domain.Account) error
}

type idempotencyPurger interface {
	CleanExpired(ctx context.Context) (int64, error)
}

// AdminHandler serves maintenance endpoints restricted to the ledger owner.
type AdminHandler struct {
	gate   ownerGate
	purger idempotencyPurger
}

func NewAdminHandler(gate ownerGate, purger idempotencyPurger) *AdminHandler {
	return &AdminHandler{gate: gate, purger: purger}
}

func (h *AdminHandler) requireOwner(w http.ResponseWriter, r *http.Request) bool {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return false
	}
	if err := h.gate.RequireOwner(caller); err != nil {
		logging.FromContext(r.Context()).Warn("owner check failed", "caller", caller, "error", err)
		RespondDomainError(w, err)
		return false
	}
	return true
}

func (h *AdminHandler) PurgeIdempotency(w http.ResponseWriter, r *http.Request) {
	if !h.requireOwner(w, r) {
		return
	}

	n, err := h.purger.CleanExpired(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("idempotency purge failed", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}
	logging.FromContext(r.Context()).Info("idempotency cache purged", "removed", n)
	RespondSuccess(w, http.StatusOK, map[string]int64{"removed": n})
}
