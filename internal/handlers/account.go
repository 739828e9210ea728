package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/affiliate/internal/apperrors"
	"github.com/nkiryanov/affiliate/internal/handlers/render"
	"github.com/nkiryanov/affiliate/internal/logger"
	"github.com/nkiryanov/affiliate/internal/models"
)

type accountResponse struct {
	ID                uuid.UUID       `json:"id"`
	Username          string          `json:"username"`
	ReferralCode      string          `json:"referral_code"`
	ReferredBy        *uuid.UUID      `json:"referred_by"`
	CommissionBalance decimal.Decimal `json:"commission_balance"`
	GeneralBalance    decimal.Decimal `json:"general_balance"`
	CreatedAt         time.Time       `json:"created_at"`
}

func newAccountResponse(a models.Account) accountResponse {
	return accountResponse{
		ID:                a.ID,
		Username:          a.Username,
		ReferralCode:      a.ReferralCode,
		ReferredBy:        a.ReferredBy,
		CommissionBalance: a.CommissionBalance,
		GeneralBalance:    a.GeneralBalance,
		CreatedAt:         a.CreatedAt,
	}
}

func handleCreateAccount(accountService accountService, l logger.Logger) http.Handler {
	type request struct {
		Username     string `json:"username" validate:"required,max=150"`
		ReferralCode string `json:"referral_code" validate:"omitempty,max=32"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		account, err := accountService.CreateAccount(r.Context(), req.Username, req.ReferralCode)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONStatus(w, newAccountResponse(account), http.StatusCreated)
	})
}

func handleGetAccount(accountService accountService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathID(w, r, "accountID")
		if !ok {
			return
		}

		account, err := accountService.GetAccount(r.Context(), accountID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newAccountResponse(account))
	})
}

func handleDeleteAccount(accountService accountService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathID(w, r, "accountID")
		if !ok {
			return
		}

		if err := accountService.DeleteAccount(r.Context(), accountID); err != nil {
			renderError(w, err, l)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

type summaryResponse struct {
	Available          decimal.Decimal `json:"available"`
	PendingWithdrawals decimal.Decimal `json:"pending_withdrawals"`
	PendingCommissions decimal.Decimal `json:"pending_commissions"`
	TotalCashout       decimal.Decimal `json:"total_cashout"`
	ReferralCount      int             `json:"referral_count"`
	ProjectedBalance   decimal.Decimal `json:"projected_balance"`
	Consistent         bool            `json:"consistent"`
}

func newSummaryResponse(s models.Summary) summaryResponse {
	return summaryResponse{
		Available:          s.Available,
		PendingWithdrawals: s.PendingWithdrawals,
		PendingCommissions: s.PendingCommissions,
		TotalCashout:       s.TotalCashedOut,
		ReferralCount:      s.ReferralCount,
		ProjectedBalance:   s.ProjectedBalance,
		Consistent:         s.Consistent,
	}
}

func handleSummary(projectionService projectionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathID(w, r, "accountID")
		if !ok {
			return
		}

		summary, err := projectionService.ComputeSummary(r.Context(), accountID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newSummaryResponse(summary))
	})
}

func handleHistory(projectionService projectionService, l logger.Logger) http.Handler {
	type point struct {
		Date    string          `json:"date"`
		Balance decimal.Decimal `json:"balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathID(w, r, "accountID")
		if !ok {
			return
		}

		history, err := projectionService.ComputeHistory(r.Context(), accountID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		points := make([]point, 0, len(history))
		for _, p := range history {
			points = append(points, point{Date: p.Date.Format(time.DateOnly), Balance: p.Balance})
		}
		render.JSON(w, points)
	})
}

// Drift is an expected outcome here: the account is flagged and the summary is returned as is
func handleReconcile(projectionService projectionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathID(w, r, "accountID")
		if !ok {
			return
		}

		summary, err := projectionService.Reconcile(r.Context(), accountID)
		switch {
		case err == nil, errors.Is(err, apperrors.ErrLedgerInvariant):
			render.JSON(w, newSummaryResponse(summary))
		default:
			renderError(w, err, l)
		}
	})
}
