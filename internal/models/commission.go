package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	CommissionStatusPending   = "pending"
	CommissionStatusPaid      = "paid"
	CommissionStatusCancelled = "cancelled"
)

const (
	CommissionTypeFlat    = "flat"
	CommissionTypePercent = "percent"
)

type Commission struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	Amount        decimal.Decimal
	Type          string
	Status        string
	SaleReference string
	Description   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CancelledAt   *time.Time // set when the credit was reversed
}

// Product snapshot sent along with a sale
// The catalog lives elsewhere, the ledger only needs the fixed commission
type Product struct {
	ID               string          `json:"id" validate:"required"`
	Name             string          `json:"name"`
	CommissionAmount decimal.Decimal `json:"commission_amount" validate:"money"`
	CommissionType   string          `json:"commission_type" validate:"omitempty,oneof=flat percent"`
}

// Idempotency key of the commission created for the sale of the product
func SaleReference(saleID string, productID string) string {
	return saleID + ":" + productID
}
