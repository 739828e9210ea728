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
)

type CommissionRepo struct {
	DB DBTX
}

const commissionColumns = `id, account_id, amount, type, status, sale_reference, description, created_at, updated_at, cancelled_at`

const createCommission = `-- name: CreateCommission
INSERT INTO commissions (id, account_id, amount, type, status, sale_reference, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING ` + commissionColumns

func (r *CommissionRepo) CreateCommission(ctx context.Context, c models.Commission) (models.Commission, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Type == "" {
		c.Type = models.CommissionTypeFlat
	}
	if c.Status == "" {
		c.Status = models.CommissionStatusPending
	}

	rows, _ := r.DB.Query(ctx, createCommission, c.ID, c.AccountID, c.Amount, c.Type, c.Status, c.SaleReference, c.Description, c.CreatedAt)
	commission, err := pgx.CollectOneRow(rows, rowToCommission)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return commission, apperrors.ErrDuplicateSale
			case pgerrcode.ForeignKeyViolation:
				return commission, apperrors.ErrAccountNotFound
			}
		}

		return commission, fmt.Errorf("db error: %w", err)
	}

	return commission, nil
}

const getCommission = `-- name: GetCommission
SELECT ` + commissionColumns + ` FROM commissions
WHERE id = $1
`

func (r *CommissionRepo) GetCommission(ctx context.Context, commissionID uuid.UUID) (models.Commission, error) {
	rows, _ := r.DB.Query(ctx, getCommission, commissionID)
	return collectCommission(rows)
}

const getActiveCommissionBySale = `-- name: GetActiveCommissionBySale
SELECT ` + commissionColumns + ` FROM commissions
WHERE account_id = $1 AND sale_reference = $2 AND status <> 'cancelled'
`

func (r *CommissionRepo) GetActiveCommissionBySale(ctx context.Context, accountID uuid.UUID, saleReference string) (models.Commission, error) {
	rows, _ := r.DB.Query(ctx, getActiveCommissionBySale, accountID, saleReference)
	return collectCommission(rows)
}

const transitCommission = `-- name: TransitCommission
UPDATE commissions
SET status = $3,
    updated_at = $4,
    cancelled_at = CASE WHEN $3 = 'cancelled' THEN $4 ELSE cancelled_at END
WHERE id = $1 AND status = $2
RETURNING ` + commissionColumns

// Conditional update: of two concurrent transitions only one sees the 'from' status
func (r *CommissionRepo) TransitCommission(ctx context.Context, commissionID uuid.UUID, from string, to string, at time.Time) (models.Commission, error) {
	rows, _ := r.DB.Query(ctx, transitCommission, commissionID, from, to, at)
	commission, err := collectCommission(rows)

	if errors.Is(err, apperrors.ErrCommissionNotFound) {
		// Distinguish not existed commission from the one in another state
		if _, err := r.GetCommission(ctx, commissionID); err != nil {
			return commission, err
		}
		return commission, apperrors.ErrInvalidState
	}

	return commission, err
}

const listCommissions = `-- name: ListCommissions
SELECT ` + commissionColumns + ` FROM commissions
WHERE account_id = $1
ORDER BY created_at ASC
`

func (r *CommissionRepo) ListCommissions(ctx context.Context, accountID uuid.UUID) ([]models.Commission, error) {
	rows, _ := r.DB.Query(ctx, listCommissions, accountID)
	commissions, err := pgx.CollectRows(rows, rowToCommission)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return commissions, nil
}

func collectCommission(rows pgx.Rows) (models.Commission, error) {
	commission, err := pgx.CollectOneRow(rows, rowToCommission)

	switch {
	case err == nil:
		return commission, nil
	case errors.Is(err, pgx.ErrNoRows):
		return commission, apperrors.ErrCommissionNotFound
	default:
		return commission, fmt.Errorf("db error: %w", err)
	}
}

func rowToCommission(row pgx.CollectableRow) (models.Commission, error) {
	var c models.Commission
	err := row.Scan(&c.ID, &c.AccountID, &c.Amount, &c.Type, &c.Status, &c.SaleReference, &c.Description, &c.CreatedAt, &c.UpdatedAt, &c.CancelledAt)
	return c, err
}
