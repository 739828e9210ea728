package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/affiliate/internal/apperrors"
	"github.com/nkiryanov/affiliate/internal/models"
)

type AccountRepo struct {
	DB DBTX
}

const accountColumns = `id, created_at, username, commission_balance, general_balance, referral_code, referred_by`

const createAccount = `-- name: CreateAccount
INSERT INTO accounts (id, created_at, username, commission_balance, general_balance, referral_code, referred_by)
VALUES ($1, $2, $3, 0, $4, $5, $6)
RETURNING ` + accountColumns

// Create account with zero commission balance
// Balance may be changed with Credit/Debit only, so provided CommissionBalance is ignored
func (r *AccountRepo) CreateAccount(ctx context.Context, a models.Account) (models.Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createAccount, a.ID, a.CreatedAt, a.Username, a.GeneralBalance, a.ReferralCode, a.ReferredBy)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return account, apperrors.ErrAccountAlreadyExists
		}

		return account, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

const getAccount = `-- name: GetAccount
SELECT ` + accountColumns + ` FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetAccount(ctx context.Context, accountID uuid.UUID, forUpdate bool) (models.Account, error) {
	query := getAccount
	if forUpdate {
		query += "FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, query, accountID)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

// Shared lock blocks balance updates, not readers, till the end of the transaction
func (r *AccountRepo) GetAccountForShare(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccount+"FOR SHARE", accountID)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

const getAccountByReferralCode = `-- name: GetAccountByReferralCode
SELECT ` + accountColumns + ` FROM accounts
WHERE referral_code = $1
`

func (r *AccountRepo) GetAccountByReferralCode(ctx context.Context, code string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByReferralCode, code)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrReferralCodeNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

func (r *AccountRepo) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAccountNotFound
	}

	return nil
}

const creditBalance = `-- name: CreditBalance
UPDATE accounts
SET commission_balance = commission_balance + $2
WHERE id = $1
RETURNING ` + accountColumns

// Single read-modify-write statement, so concurrent credits never lose updates
func (r *AccountRepo) CreditBalance(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (models.Account, error) {
	if !models.IsMoney(amount) {
		return models.Account{}, fmt.Errorf("%w: %s", apperrors.ErrInvalidAmount, amount)
	}

	rows, _ := r.DB.Query(ctx, creditBalance, accountID, amount)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

const debitBalance = `-- name: DebitBalance
UPDATE accounts
SET commission_balance = commission_balance - $2
WHERE id = $1 AND commission_balance >= $2
RETURNING ` + accountColumns

// Debit is the last line of defense: the condition is evaluated on the locked row,
// so balance can't go below zero whatever callers checked before
func (r *AccountRepo) DebitBalance(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (models.Account, error) {
	if !models.IsMoney(amount) {
		return models.Account{}, fmt.Errorf("%w: %s", apperrors.ErrInvalidAmount, amount)
	}

	rows, _ := r.DB.Query(ctx, debitBalance, accountID, amount)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Nothing updated: either no account or not enough funds
		if _, err := r.GetAccount(ctx, accountID, false); err != nil {
			return account, err
		}
		return account, apperrors.ErrInsufficientBalance
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.CreatedAt, &a.Username, &a.CommissionBalance, &a.GeneralBalance, &a.ReferralCode, &a.ReferredBy)
	return a, err
}
