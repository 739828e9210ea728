package saleprocessor

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/nkiryanov/affiliate/internal/logger"
	"github.com/nkiryanov/affiliate/internal/metrics"
	"github.com/nkiryanov/affiliate/internal/models"
	"github.com/nkiryanov/affiliate/internal/service/validate"
)

const (
	defaultCountWorkers = 4               // Readers in the consumer group
	defaultRetryDelay   = 5 * time.Second // Pause before retrying failed infrastructure call
	defaultGroupID      = "affiliate-ledger"
)

// Reader is the part of kafka.Reader the processor uses
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type commissionService interface {
	ApproveSale(ctx context.Context, saleID string, accountID uuid.UUID, product models.Product) (models.Commission, error)
	MarkPaid(ctx context.Context, commissionID uuid.UUID) (models.Commission, error)
	CancelCommission(ctx context.Context, commissionID uuid.UUID) (models.Commission, error)
	FindBySale(ctx context.Context, accountID uuid.UUID, saleID string, productID string) (models.Commission, error)
}

type Config struct {
	Brokers      []string
	Topic        string
	GroupID      string
	CountWorkers int
	RetryDelay   time.Duration
}

type Processor struct {
	countWorkers int
	retryDelay   time.Duration

	// Every worker owns its reader, so partitions assigned to it are processed in order
	newReader func() Reader

	service  commissionService
	validate *validator.Validate
	metrics  *metrics.LedgerMetrics
	logger   logger.Logger
}

func New(c Config, service commissionService, m *metrics.LedgerMetrics, l logger.Logger) *Processor {
	if c.GroupID == "" {
		c.GroupID = defaultGroupID
	}

	p := newProcessor(c, service, m, l)
	p.newReader = func() Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.Brokers,
			Topic:    c.Topic,
			GroupID:  c.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
	}

	return p
}

func newProcessor(c Config, service commissionService, m *metrics.LedgerMetrics, l logger.Logger) *Processor {
	if c.CountWorkers <= 0 {
		c.CountWorkers = defaultCountWorkers
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Processor{
		countWorkers: c.CountWorkers,
		retryDelay:   c.RetryDelay,
		service:      service,
		validate:     validate.New(),
		metrics:      m,
		logger:       l.With("component", "saleprocessor"),
	}
}

// Process starts workers and returns channel closed when all of them stopped
func (p *Processor) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < p.countWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, p.newReader())
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		p.logger.Debug("Sale processor stopped")
	}()

	return idleStopped
}
