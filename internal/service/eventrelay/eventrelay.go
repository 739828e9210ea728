package eventrelay

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/affiliate/internal/logger"
	"github.com/nkiryanov/affiliate/internal/metrics"
	"github.com/nkiryanov/affiliate/internal/models"
	"github.com/nkiryanov/affiliate/internal/repository"
)

const (
	defaultInterval  = time.Second // Interval between outbox polls
	defaultBatchSize = 100
)

type publisher interface {
	Publish(ctx context.Context, events []models.LedgerEvent) error
}

type Config struct {
	Interval  time.Duration
	BatchSize int
}

type Relay struct {
	interval  time.Duration
	batchSize int

	storage   repository.Storage
	publisher publisher
	metrics   *metrics.LedgerMetrics
	logger    logger.Logger
}

func New(c Config, storage repository.Storage, publisher publisher, m *metrics.LedgerMetrics, l logger.Logger) *Relay {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Relay{
		interval:  c.Interval,
		batchSize: c.BatchSize,
		storage:   storage,
		publisher: publisher,
		metrics:   m,
		logger:    l.With("component", "eventrelay"),
	}
}

// Run polls outbox on every tick until context is done
// Returned channel is closed when the loop stopped
func (r *Relay) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	r.logger.Debug("Starting event relay", "interval", r.interval, "batch_size", r.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Debug("Event relay stopped by context")
				return

			case <-ticker.C:
				// Drain the outbox while batches come full
				for {
					n, err := r.RelayBatch(ctx)
					if err != nil {
						if ctx.Err() == nil {
							r.logger.Error("Failed to relay ledger events", "error", err)
						}
						break
					}
					if n < r.batchSize {
						break
					}
				}
			}
		}
	}()

	return idleStopped
}

// RelayBatch publishes one batch of outbox events and marks them published
// Rows stay locked while publishing; if publishing fails nothing is marked and the batch is retried later
func (r *Relay) RelayBatch(ctx context.Context) (int, error) {
	var published int

	err := r.storage.InTx(ctx, func(tx repository.Storage) error {
		events, err := tx.Event().ListUnpublished(ctx, r.batchSize)
		if err != nil || len(events) == 0 {
			return err
		}

		if err := r.publisher.Publish(ctx, events); err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
		}
		if err := tx.Event().MarkPublished(ctx, ids, time.Now()); err != nil {
			return err
		}

		published = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if published > 0 {
		r.metrics.RecordPublished(published)
		r.logger.Debug("Ledger events published", "count", published)
	}

	return published, nil
}
