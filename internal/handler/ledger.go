package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/josh-kwaku/payment-ledger/internal/auth"
	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/ledger"
	"github.com/josh-kwaku/payment-ledger/internal/logging"
)

type ledgerService interface {
	RecordPayment(ctx context.Context, call ledger.Call, recipient domain.Account, description domain.Description) (uint64, error)
	PaymentHistory(ctx context.Context, account domain.Account) ([]domain.Payment, error)
	PaymentCount(ctx context.Context) (uint64, error)
	Owner() domain.Account
}

type LedgerHandler struct {
	ledger         ledgerService
	denom          domain.Denomination
	maxDescription int
}

func NewLedgerHandler(l ledgerService, denom domain.Denomination, maxDescriptionBytes int) *LedgerHandler {
	return &LedgerHandler{ledger: l, denom: denom, maxDescription: maxDescriptionBytes}
}

type createPaymentRequest struct {
	Recipient   string             `json:"recipient"`
	Description domain.Description `json:"description"`
	Value       uint64             `json:"value"`
}

func (r createPaymentRequest) Validate(maxDescription int) (domain.Account, []FieldError) {
	var errs []FieldError

	var recipient domain.Account
	if r.Recipient == "" {
		errs = append(errs, FieldError{Field: "recipient", Message: "required"})
	} else if acc, err := domain.ParseAccount(r.Recipient); err != nil {
		errs = append(errs, FieldError{Field: "recipient", Message: "must be 0x followed by 64 hex digits"})
	} else {
		recipient = acc
	}

	if text, ok := r.Description.Get(); ok && maxDescription > 0 && len(text) > maxDescription {
		errs = append(errs, FieldError{Field: "description", Message: fmt.Sprintf("must be at most %d bytes", maxDescription)})
	}

	return recipient, errs
}

type paymentDTO struct {
	ID            uint64             `json:"id"`
	Sender        domain.Account     `json:"sender"`
	Recipient     domain.Account     `json:"recipient"`
	Amount        uint64             `json:"amount"`
	AmountDisplay string             `json:"amount_display"`
	Description   domain.Description `json:"description"`
	Timestamp     uint64             `json:"timestamp"`
}

func (h *LedgerHandler) toPaymentDTO(p domain.Payment) paymentDTO {
	return paymentDTO{
		ID:            p.ID,
		Sender:        p.Sender,
		Recipient:     p.Recipient,
		Amount:        p.Amount,
		AmountDisplay: h.denom.Format(p.Amount),
		Description:   p.Description,
		Timestamp:     p.Timestamp,
	}
}

type createPaymentResponse struct {
	ID            uint64             `json:"id"`
	Sender        domain.Account     `json:"sender"`
	Recipient     domain.Account     `json:"recipient"`
	Amount        uint64             `json:"amount"`
	AmountDisplay string             `json:"amount_display"`
	Description   domain.Description `json:"description"`
}

func (h *LedgerHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	recipient, fields := req.Validate(h.maxDescription)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	call := ledger.Call{Caller: caller, Amount: req.Value}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		call.Reference = caller.String() + ":" + key
	}

	id, err := h.ledger.RecordPayment(r.Context(), call, recipient, req.Description)
	if err != nil {
		log.Warn("payment not recorded", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/%s/payments", caller))
	RespondSuccess(w, http.StatusCreated, createPaymentResponse{
		ID:            id,
		Sender:        caller,
		Recipient:     recipient,
		Amount:        req.Value,
		AmountDisplay: h.denom.Format(req.Value),
		Description:   req.Description,
	})
}

func (h *LedgerHandler) History(w http.ResponseWriter, r *http.Request) {
	account, err := domain.ParseAccount(r.PathValue("account"))
	if err != nil {
		RespondAppError(w, ErrInvalidAccount, nil)
		return
	}

	history, err := h.ledger.PaymentHistory(r.Context(), account)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment history lookup failed", "account", account, "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]paymentDTO, len(history))
	for i, p := range history {
		dtos[i] = h.toPaymentDTO(p)
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

type ledgerSummary struct {
	Owner        domain.Account `json:"owner"`
	PaymentCount uint64         `json:"payment_count"`
	Currency     string         `json:"currency,omitempty"`
	Decimals     int32          `json:"decimals"`
}

func (h *LedgerHandler) Summary(w http.ResponseWriter, r *http.Request) {
	count, err := h.ledger.PaymentCount(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment count lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, ledgerSummary{
		Owner:        h.ledger.Owner(),
		PaymentCount: count,
		Currency:     h.denom.Symbol,
		Decimals:     h.denom.Decimals,
	})
}

func (h *LedgerHandler) Owner(w http.ResponseWriter, r *http.Request) {
	RespondSuccess(w, http.StatusOK, map[string]domain.Account{"owner": h.ledger.Owner()})
}

func (h *LedgerHandler) PaymentCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.ledger.PaymentCount(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment count lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]uint64{"payment_count": count})
}
