package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Running balance at the end of a day
type HistoryPoint struct {
	Date    time.Time
	Balance decimal.Decimal
}

type Summary struct {
	Available          decimal.Decimal
	PendingWithdrawals decimal.Decimal
	PendingCommissions decimal.Decimal
	TotalCashedOut     decimal.Decimal
	ReferralCount      int

	// Balance derived from the event history; equals Available for consistent accounts
	ProjectedBalance decimal.Decimal
	Consistent       bool
}
