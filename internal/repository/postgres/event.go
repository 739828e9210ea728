package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/affiliate/internal/models"
)

type EventRepo struct {
	DB DBTX
}

const createEvent = `-- name: CreateEvent
INSERT INTO ledger_events (id, account_id, kind, payload, created_at)
VALUES ($1, $2, $3, $4, $5)
`

func (r *EventRepo) CreateEvent(ctx context.Context, e models.LedgerEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := r.DB.Exec(ctx, createEvent, e.ID, e.AccountID, e.Kind, []byte(e.Payload), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const listUnpublished = `-- name: ListUnpublished
SELECT id, account_id, kind, payload, created_at, published_at
FROM ledger_events
WHERE published_at IS NULL
ORDER BY created_at ASC
LIMIT $1
FOR UPDATE SKIP LOCKED
`

func (r *EventRepo) ListUnpublished(ctx context.Context, limit int) ([]models.LedgerEvent, error) {
	rows, _ := r.DB.Query(ctx, listUnpublished, limit)
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.LedgerEvent, error) {
		var e models.LedgerEvent
		var payload []byte
		err := row.Scan(&e.ID, &e.AccountID, &e.Kind, &payload, &e.CreatedAt, &e.PublishedAt)
		e.Payload = payload
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return events, nil
}

func (r *EventRepo) MarkPublished(ctx context.Context, eventIDs []uuid.UUID, at time.Time) error {
	if len(eventIDs) == 0 {
		return nil
	}

	_, err := r.DB.Exec(ctx, `UPDATE ledger_events SET published_at = $2 WHERE id = ANY($1)`, eventIDs, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}
