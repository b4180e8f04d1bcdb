package domain

import "errors"

var (
	// Ledger error taxonomy. All are recoverable by the caller.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	ErrPaymentFailed = errors.New("payment failed")
	ErrNotOwner      = errors.New("caller is not the ledger owner")

	ErrNotInitialized     = errors.New("ledger not initialized")
	ErrAlreadyInitialized = errors.New("ledger already initialized")
	ErrInvalidAccount     = errors.New("invalid account")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNotFound           = errors.New("not found")

	// ErrTransferOutcomeUnknown marks a transfer that may have completed even
	// though the call failed, such as a timeout. It always travels with
	// ErrPaymentFailed.
	ErrTransferOutcomeUnknown = errors.New("transfer outcome unknown")
)
