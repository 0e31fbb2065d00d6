package services

import (
	"errors"
	"net/http"

	"github.com/heartlink/backend/internal/gateway"
)

// Wallet error taxonomy. Validation errors are raised before any
// mutation; the rest describe what happened after a debit was applied.
var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidDestination     = errors.New("invalid payout destination")
	ErrSelfTransfer           = errors.New("cannot transfer to own account")
	ErrAlreadyConnected       = errors.New("connection already exists")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrAccountNotFound        = errors.New("account not found")
	ErrCheckoutNotFound       = errors.New("checkout not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrCompensationFailed means an account was debited and the
	// compensating credit also failed. The balance must be restored by
	// hand; the audit log carries the amounts.
	ErrCompensationFailed = errors.New("compensation failed, manual reconciliation required")

	ErrWithdrawalCreationFailed = errors.New("withdrawal request could not be created")
	ErrConnectionCreationFailed = errors.New("connection could not be created")

	ErrGatewayUnavailable = gateway.ErrUnavailable
)

// statusForError maps the taxonomy onto HTTP status codes. Anything
// outside the taxonomy is a 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidDestination),
		errors.Is(err, ErrSelfTransfer):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrCheckoutNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyConnected),
		errors.Is(err, ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
