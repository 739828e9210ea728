package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/affiliate/internal/apperrors"
	"github.com/nkiryanov/affiliate/internal/models"
)

type ReferralRepo struct {
	DB DBTX
}

const createReferral = `-- name: CreateReferral
INSERT INTO referrals (referrer_id, referred_id)
VALUES ($1, $2)
RETURNING referrer_id, referred_id, created_at
`

func (r *ReferralRepo) CreateReferral(ctx context.Context, referrerID uuid.UUID, referredID uuid.UUID) (models.Referral, error) {
	rows, _ := r.DB.Query(ctx, createReferral, referrerID, referredID)
	referral, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.Referral, error) {
		var ref models.Referral
		err := row.Scan(&ref.ReferrerID, &ref.ReferredID, &ref.CreatedAt)
		return ref, err
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return referral, apperrors.ErrAccountNotFound
		}

		return referral, fmt.Errorf("db error: %w", err)
	}

	return referral, nil
}

func (r *ReferralRepo) CountReferrals(ctx context.Context, referrerID uuid.UUID) (int, error) {
	var count int
	err := r.DB.QueryRow(ctx, `SELECT count(*) FROM referrals WHERE referrer_id = $1`, referrerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}
