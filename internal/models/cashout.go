package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	CashoutStatusPending  = "pending"
	CashoutStatusApproved = "approved"
	CashoutStatusRejected = "rejected"
)

type CashoutRequest struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	RequestedAmount decimal.Decimal
	ProcessingFee   decimal.Decimal
	NetAmount       decimal.Decimal // always requested - fee, computed by storage
	Status          string
	Processed       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Balance after an operation together with the account's cashout history (newest first)
type CashoutOverview struct {
	Balance decimal.Decimal
	History []CashoutRequest
}
