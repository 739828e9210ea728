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

type commissionResponse struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"commission_type"`
	Status        string          `json:"status"`
	SaleReference string          `json:"sale_reference"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
	CancelledAt   *time.Time      `json:"cancelled_at"`
}

func newCommissionResponse(c models.Commission) commissionResponse {
	return commissionResponse{
		ID:            c.ID,
		AccountID:     c.AccountID,
		Amount:        c.Amount,
		Type:          c.Type,
		Status:        c.Status,
		SaleReference: c.SaleReference,
		Description:   c.Description,
		CreatedAt:     c.CreatedAt,
		CancelledAt:   c.CancelledAt,
	}
}

// Approved sale of a referred product. Same payload the sale processor reads from kafka
func handleApproveSale(commissionService commissionService, l logger.Logger) http.Handler {
	type request struct {
		SaleID    string         `json:"sale_id" validate:"required,max=100"`
		AccountID uuid.UUID      `json:"account_id" validate:"required"`
		Product   models.Product `json:"product"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		commission, err := commissionService.ApproveSale(r.Context(), req.SaleID, req.AccountID, req.Product)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONStatus(w, newCommissionResponse(commission), http.StatusCreated)
	})
}

func handleGetCommission(commissionService commissionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		commissionID, ok := pathID(w, r, "commissionID")
		if !ok {
			return
		}

		commission, err := commissionService.GetCommission(r.Context(), commissionID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newCommissionResponse(commission))
	})
}

func handleMarkPaid(commissionService commissionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		commissionID, ok := pathID(w, r, "commissionID")
		if !ok {
			return
		}

		commission, err := commissionService.MarkPaid(r.Context(), commissionID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newCommissionResponse(commission))
	})
}

func handleCancelCommission(commissionService commissionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		commissionID, ok := pathID(w, r, "commissionID")
		if !ok {
			return
		}

		commission, err := commissionService.CancelCommission(r.Context(), commissionID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newCommissionResponse(commission))
	})
}
