package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/affiliate/internal/models"
)

type ReconciliationRepo struct {
	DB DBTX
}

const flagAccount = `-- name: FlagAccount
INSERT INTO reconciliation_issues (id, account_id, reason, details, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, account_id, reason, details, created_at, resolved_at
`

func (r *ReconciliationRepo) FlagAccount(ctx context.Context, issue models.ReconciliationIssue) (models.ReconciliationIssue, error) {
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now()
	}
	details := []byte(issue.Details)
	if len(details) == 0 {
		details = []byte("{}")
	}

	rows, _ := r.DB.Query(ctx, flagAccount, issue.ID, issue.AccountID, issue.Reason, details, issue.CreatedAt)
	flagged, err := pgx.CollectOneRow(rows, rowToIssue)
	if err != nil {
		return flagged, fmt.Errorf("db error: %w", err)
	}

	return flagged, nil
}

const listOpenIssues = `-- name: ListOpenIssues
SELECT id, account_id, reason, details, created_at, resolved_at
FROM reconciliation_issues
WHERE account_id = $1 AND resolved_at IS NULL
ORDER BY created_at ASC
`

func (r *ReconciliationRepo) ListOpenIssues(ctx context.Context, accountID uuid.UUID) ([]models.ReconciliationIssue, error) {
	rows, _ := r.DB.Query(ctx, listOpenIssues, accountID)
	issues, err := pgx.CollectRows(rows, rowToIssue)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return issues, nil
}

func rowToIssue(row pgx.CollectableRow) (models.ReconciliationIssue, error) {
	var i models.ReconciliationIssue
	var details []byte
	err := row.Scan(&i.ID, &i.AccountID, &i.Reason, &details, &i.CreatedAt, &i.ResolvedAt)
	i.Details = details
	return i, err
}
