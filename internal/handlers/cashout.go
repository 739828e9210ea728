package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/affiliate/internal/handlers/render"
	"github.com/nkiryanov/affiliate/internal/logger"
	"github.com/nkiryanov/affiliate/internal/models"
)

type cashoutResponse struct {
	ID              uuid.UUID       `json:"id"`
	AccountID       uuid.UUID       `json:"account_id"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	ProcessingFee   decimal.Decimal `json:"processing_fee"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	Status          string          `json:"status"`
	Processed       bool            `json:"processed"`
	Date            time.Time       `json:"date"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func newCashoutResponse(c models.CashoutRequest) cashoutResponse {
	return cashoutResponse{
		ID:              c.ID,
		AccountID:       c.AccountID,
		RequestedAmount: c.RequestedAmount,
		ProcessingFee:   c.ProcessingFee,
		NetAmount:       c.NetAmount,
		Status:          c.Status,
		Processed:       c.Processed,
		Date:            c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

type overviewResponse struct {
	Balance decimal.Decimal   `json:"balance"`
	History []cashoutResponse `json:"history"`
}

func newOverviewResponse(o models.CashoutOverview) overviewResponse {
	history := make([]cashoutResponse, 0, len(o.History))
	for _, c := range o.History {
		history = append(history, newCashoutResponse(c))
	}
	return overviewResponse{Balance: o.Balance, History: history}
}

func handleRequestCashout(cashoutService cashoutService, l logger.Logger) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount" validate:"money"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathID(w, r, "accountID")
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		overview, err := cashoutService.RequestCashout(r.Context(), accountID, req.Amount)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONStatus(w, newOverviewResponse(overview), http.StatusCreated)
	})
}

func handleCashoutOverview(cashoutService cashoutService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathID(w, r, "accountID")
		if !ok {
			return
		}

		overview, err := cashoutService.Overview(r.Context(), accountID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newOverviewResponse(overview))
	})
}

func handleGetCashout(cashoutService cashoutService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cashoutID, ok := pathID(w, r, "cashoutID")
		if !ok {
			return
		}

		cashout, err := cashoutService.GetCashout(r.Context(), cashoutID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newCashoutResponse(cashout))
	})
}

func handleDecideCashout(cashoutService cashoutService, l logger.Logger) http.Handler {
	type request struct {
		Approve *bool `json:"approve" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cashoutID, ok := pathID(w, r, "cashoutID")
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		cashout, err := cashoutService.Decide(r.Context(), cashoutID, *req.Approve)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newCashoutResponse(cashout))
	})
}
