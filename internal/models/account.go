package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Username  string

	// Spendable commission funds. Mutated only through the ledger credit/debit operations
	CommissionBalance decimal.Decimal

	// Legacy earnings field, kept as is and never touched by the ledger
	GeneralBalance decimal.Decimal

	ReferralCode string
	ReferredBy   *uuid.UUID // nil if account was not referred or the referrer was deleted
}

type Referral struct {
	ReferrerID uuid.UUID
	ReferredID uuid.UUID
	CreatedAt  time.Time
}
