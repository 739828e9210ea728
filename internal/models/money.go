package models

import "github.com/shopspring/decimal"

// Largest amount that fits NUMERIC(12, 2)
var maxMoney = decimal.New(1, 10)

// IsMoney reports whether d is a positive amount the ledger stores without rounding
func IsMoney(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Round(2)) && d.LessThan(maxMoney)
}
