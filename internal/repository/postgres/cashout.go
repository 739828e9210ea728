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

	"github.com/nkiryanov/affiliate/internal/apperrors"
	"github.com/nkiryanov/affiliate/internal/models"
	"github.com/nkiryanov/affiliate/internal/repository"
)

type CashoutRepo struct {
	DB DBTX
}

const cashoutColumns = `id, account_id, requested_amount, processing_fee, net_amount, status, processed, created_at, updated_at`

// net_amount is computed here from requested amount and fee, never taken from the caller
const createCashout = `-- name: CreateCashout
INSERT INTO cashout_requests (id, account_id, requested_amount, processing_fee, net_amount, status, processed, created_at, updated_at)
VALUES ($1, $2, $3::numeric, $4::numeric, $3::numeric - $4::numeric, 'pending', FALSE, $5, $5)
RETURNING ` + cashoutColumns

func (r *CashoutRepo) CreateCashout(ctx context.Context, c models.CashoutRequest) (models.CashoutRequest, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createCashout, c.ID, c.AccountID, c.RequestedAmount, c.ProcessingFee, c.CreatedAt)
	cashout, err := pgx.CollectOneRow(rows, rowToCashout)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return cashout, apperrors.ErrAccountNotFound
		}

		return cashout, fmt.Errorf("db error: %w", err)
	}

	return cashout, nil
}

const getCashout = `-- name: GetCashout
SELECT ` + cashoutColumns + ` FROM cashout_requests
WHERE id = $1
`

func (r *CashoutRepo) GetCashout(ctx context.Context, cashoutID uuid.UUID) (models.CashoutRequest, error) {
	rows, _ := r.DB.Query(ctx, getCashout, cashoutID)
	cashout, err := pgx.CollectOneRow(rows, rowToCashout)

	switch {
	case err == nil:
		return cashout, nil
	case errors.Is(err, pgx.ErrNoRows):
		return cashout, apperrors.ErrCashoutNotFound
	default:
		return cashout, fmt.Errorf("db error: %w", err)
	}
}

// Check and set in one statement
// A concurrent settle waits for the row lock, re-evaluates WHERE and updates nothing
const settleCashout = `-- name: SettleCashout
UPDATE cashout_requests
SET status = $2, processed = TRUE, updated_at = $3
WHERE id = $1 AND status = 'pending' AND processed = FALSE
RETURNING ` + cashoutColumns

func (r *CashoutRepo) SettleCashout(ctx context.Context, cashoutID uuid.UUID, status string, at time.Time) (models.CashoutRequest, error) {
	rows, _ := r.DB.Query(ctx, settleCashout, cashoutID, status, at)
	cashout, err := pgx.CollectOneRow(rows, rowToCashout)

	switch {
	case err == nil:
		return cashout, nil
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := r.GetCashout(ctx, cashoutID); err != nil {
			return cashout, err
		}
		return cashout, apperrors.ErrAlreadyProcessed
	default:
		return cashout, fmt.Errorf("db error: %w", err)
	}
}

const listCashouts = `-- name: ListCashouts
SELECT ` + cashoutColumns + ` FROM cashout_requests
WHERE account_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
`

func (r *CashoutRepo) ListCashouts(ctx context.Context, accountID uuid.UUID, opts repository.ListCashoutsOpts) ([]models.CashoutRequest, error) {
	query := listCashouts + "ORDER BY created_at ASC"
	if opts.NewestFirst {
		query = listCashouts + "ORDER BY created_at DESC"
	}

	statuses := opts.Statuses
	if statuses == nil {
		statuses = []string{}
	}

	rows, _ := r.DB.Query(ctx, query, accountID, statuses)
	cashouts, err := pgx.CollectRows(rows, rowToCashout)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return cashouts, nil
}

func rowToCashout(row pgx.CollectableRow) (models.CashoutRequest, error) {
	var c models.CashoutRequest
	err := row.Scan(&c.ID, &c.AccountID, &c.RequestedAmount, &c.ProcessingFee, &c.NetAmount, &c.Status, &c.Processed, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
