package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount     = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrPaymentFailed     = &AppError{http.StatusUnprocessableEntity, "PAYMENT_FAILED", "Value transfer to the recipient failed"}
	ErrTransferUnknown   = &AppError{http.StatusBadGateway, "TRANSFER_OUTCOME_UNKNOWN", "Transfer outcome unknown, retry with the same Idempotency-Key"}
	ErrNotOwner          = &AppError{http.StatusForbidden, "NOT_OWNER", "Caller is not the ledger owner"}
	ErrInvalidAccount    = &AppError{http.StatusBadRequest, "INVALID_ACCOUNT", "Account must be 0x followed by 64 hex digits"}
	ErrLedgerUnavailable = &AppError{http.StatusServiceUnavailable, "LEDGER_NOT_INITIALIZED", "Ledger has not been initialized"}
	ErrLedgerInitialized = &AppError{http.StatusConflict, "LEDGER_ALREADY_INITIALIZED", "Ledger is already initialized"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrIdempotencyInProgress = &AppError{http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "A request with this Idempotency-Key is still being processed"}
)
