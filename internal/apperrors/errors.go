package apperrors

import (
	"errors"
)

var (
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountNotFound      = errors.New("account not found")
	ErrReferralCodeNotFound = errors.New("referral code not found")

	ErrInvalidAmount = errors.New("amount must be positive")

	ErrDuplicateSale      = errors.New("commission for the sale already exists")
	ErrCommissionNotFound = errors.New("commission not found")
	ErrInvalidState       = errors.New("commission state does not allow the transition")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrExceedsBalance      = errors.New("requested amount exceeds balance")
	ErrBelowFee            = errors.New("requested amount does not cover processing fee")
	ErrCashoutNotFound     = errors.New("cashout request not found")
	ErrAlreadyProcessed    = errors.New("cashout request already processed")

	// Balance would go negative for a well-formed request: the stored state is corrupted
	// Never retried automatically, the account is flagged for manual reconciliation
	ErrLedgerInvariant = errors.New("ledger invariant violated")
)
