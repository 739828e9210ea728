package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/affiliate/internal/models"
)

// Account repository interface. It is the ledger store: the only place where commission balance changes
type AccountRepo interface {
	// Create account
	// If account with the username or referral code exists already has to return apperrors.ErrAccountAlreadyExists
	CreateAccount(ctx context.Context, account models.Account) (models.Account, error)

	// Get account by id or referral code
	// If account not found must return apperrors.ErrAccountNotFound (or apperrors.ErrReferralCodeNotFound)
	// forUpdate locks the account row till the end of the current transaction
	GetAccount(ctx context.Context, accountID uuid.UUID, forUpdate bool) (models.Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (models.Account, error)

	// Get account and hold shared row lock till the end of the current transaction
	// Every balance change updates the row, so nothing affecting the balance commits while the lock is held
	GetAccountForShare(ctx context.Context, accountID uuid.UUID) (models.Account, error)

	// Delete account with all its commissions and cashout requests
	// Accounts referred by it stay with nil ReferredBy
	DeleteAccount(ctx context.Context, accountID uuid.UUID) error

	// Atomically add amount to commission balance
	CreditBalance(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (models.Account, error)

	// Atomically subtract amount from commission balance
	// Must return apperrors.ErrInsufficientBalance if balance would become negative
	DebitBalance(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (models.Account, error)
}

type ReferralRepo interface {
	CreateReferral(ctx context.Context, referrerID uuid.UUID, referredID uuid.UUID) (models.Referral, error)
	CountReferrals(ctx context.Context, referrerID uuid.UUID) (int, error)
}

type CommissionRepo interface {
	// Create commission
	// If non-cancelled commission with the same account and sale reference exists must return apperrors.ErrDuplicateSale
	CreateCommission(ctx context.Context, commission models.Commission) (models.Commission, error)

	GetCommission(ctx context.Context, commissionID uuid.UUID) (models.Commission, error)

	// Return non-cancelled commission for the sale
	// If there is no such commission must return apperrors.ErrCommissionNotFound
	GetActiveCommissionBySale(ctx context.Context, accountID uuid.UUID, saleReference string) (models.Commission, error)

	// Move commission from 'fromStatus' to 'toStatus' in one conditional update
	// If commission is not in 'fromStatus' must return apperrors.ErrInvalidState
	TransitCommission(ctx context.Context, commissionID uuid.UUID, fromStatus string, toStatus string, at time.Time) (models.Commission, error)

	// Commissions of the account ordered by created_at ASC
	ListCommissions(ctx context.Context, accountID uuid.UUID) ([]models.Commission, error)
}

type CashoutRepo interface {
	// Create cashout request. NetAmount is computed from RequestedAmount and ProcessingFee, provided value is ignored
	CreateCashout(ctx context.Context, request models.CashoutRequest) (models.CashoutRequest, error)

	GetCashout(ctx context.Context, cashoutID uuid.UUID) (models.CashoutRequest, error)

	// Settle pending not processed request with 'status' and mark it processed in one conditional update
	// If request is processed already or not pending must return apperrors.ErrAlreadyProcessed
	SettleCashout(ctx context.Context, cashoutID uuid.UUID, status string, at time.Time) (models.CashoutRequest, error)

	// Cashout requests of the account. Filter by statuses if provided
	ListCashouts(ctx context.Context, accountID uuid.UUID, opts ListCashoutsOpts) ([]models.CashoutRequest, error)
}

type ListCashoutsOpts struct {
	Statuses    []string
	NewestFirst bool
}

// Transactional outbox of ledger events
type EventRepo interface {
	CreateEvent(ctx context.Context, event models.LedgerEvent) error

	// Lock and return not published events, oldest first
	// Locked rows are skipped, so concurrent relays never see the same event
	ListUnpublished(ctx context.Context, limit int) ([]models.LedgerEvent, error)

	MarkPublished(ctx context.Context, eventIDs []uuid.UUID, at time.Time) error
}

type ReconciliationRepo interface {
	FlagAccount(ctx context.Context, issue models.ReconciliationIssue) (models.ReconciliationIssue, error)
	ListOpenIssues(ctx context.Context, accountID uuid.UUID) ([]models.ReconciliationIssue, error)
}

type Storage interface {
	Account() AccountRepo
	Referral() ReferralRepo
	Commission() CommissionRepo
	Cashout() CashoutRepo
	Event() EventRepo
	Reconciliation() ReconciliationRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
