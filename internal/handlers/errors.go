package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/affiliate/internal/apperrors"
	"github.com/nkiryanov/affiliate/internal/handlers/render"
	"github.com/nkiryanov/affiliate/internal/logger"
)

// Map service error to http status and render it
// Unknown errors and broken ledger invariants are logged, others are expected outcomes
func renderError(w http.ResponseWriter, err error, l logger.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrAccountNotFound):
		render.ServiceError(w, "Account not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrReferralCodeNotFound):
		render.ServiceError(w, "Referral code not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrCommissionNotFound):
		render.ServiceError(w, "Commission not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrCashoutNotFound):
		render.ServiceError(w, "Cashout request not found", http.StatusNotFound)

	case errors.Is(err, apperrors.ErrAccountAlreadyExists):
		render.ServiceError(w, "Account already exists", http.StatusConflict)
	case errors.Is(err, apperrors.ErrDuplicateSale):
		render.ServiceError(w, "Commission for the sale already exists", http.StatusConflict)
	case errors.Is(err, apperrors.ErrInvalidState):
		render.ServiceError(w, "Commission state does not allow the operation", http.StatusConflict)
	case errors.Is(err, apperrors.ErrAlreadyProcessed):
		render.ServiceError(w, "Cashout request already processed", http.StatusConflict)

	// Invariant wraps ErrInsufficientBalance, so it goes first
	case errors.Is(err, apperrors.ErrLedgerInvariant):
		l.Error("Ledger invariant violated", "error", err)
		render.ServiceError(w, "Ledger invariant violated, account flagged for reconciliation", http.StatusInternalServerError)

	case errors.Is(err, apperrors.ErrInsufficientBalance):
		render.ServiceError(w, "Balance is below the minimum cashout threshold", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrExceedsBalance):
		render.ServiceError(w, "Requested amount exceeds balance", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrBelowFee):
		render.ServiceError(w, "Requested amount does not cover processing fee", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrInvalidAmount):
		render.ServiceError(w, "Amount must be positive", http.StatusBadRequest)

	default:
		l.Error("Request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// Read uuid from path. Renders 400 and returns false if it is malformed
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		render.ServiceError(w, "Invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
