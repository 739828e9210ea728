package saleprocessor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/nkiryanov/affiliate/internal/apperrors"
	"github.com/nkiryanov/affiliate/internal/models"
)

const (
	SaleStatusApproved  = "approved"
	SaleStatusPaid      = "paid"
	SaleStatusCancelled = "cancelled"
)

// SaleMessage is published by the order workflow when a sale changes its state
type SaleMessage struct {
	SaleID    string         `json:"sale_id" validate:"required"`
	AccountID uuid.UUID      `json:"account_id" validate:"required"`
	Status    string         `json:"status" validate:"required,oneof=approved paid cancelled"`
	Product   models.Product `json:"product" validate:"-"`
}

var errMalformed = errors.New("malformed sale message")

// Errors that won't go away on retry. The message is committed and skipped
var businessErrors = []error{
	errMalformed,
	apperrors.ErrDuplicateSale,
	apperrors.ErrInvalidState,
	apperrors.ErrInvalidAmount,
	apperrors.ErrAccountNotFound,
	apperrors.ErrCommissionNotFound,
	apperrors.ErrLedgerInvariant,
}

func isBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (p *Processor) worker(ctx context.Context, r Reader) {
	defer func() {
		if err := r.Close(); err != nil {
			p.logger.Error("Failed to close sale reader", "error", err)
		}
	}()

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("Failed to fetch sale message", "error", err)
			if !p.sleep(ctx) {
				return
			}
			continue
		}

		if !p.handleWithRetry(ctx, msg) {
			return
		}

		if err := r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("Failed to commit sale message", "error", err, "offset", msg.Offset, "partition", msg.Partition)
		}
	}
}

// Handle message until it succeeds or fails for business reason
// Returns false if context is done before that
func (p *Processor) handleWithRetry(ctx context.Context, msg kafka.Message) bool {
	for {
		err := p.handle(ctx, msg)

		switch {
		case err == nil:
			return true
		case isBusinessError(err):
			if errors.Is(err, apperrors.ErrLedgerInvariant) {
				p.logger.Error("Sale rejected by ledger invariant", "error", err, "offset", msg.Offset)
			} else {
				p.logger.Warn("Sale skipped", "error", err, "offset", msg.Offset)
			}
			p.metrics.RecordSale("rejected")
			return true
		case ctx.Err() != nil:
			return false
		default:
			p.logger.Error("Failed to handle sale, retrying", "error", err, "retry_in", p.retryDelay)
			if !p.sleep(ctx) {
				return false
			}
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg kafka.Message) error {
	var sale SaleMessage
	if err := json.Unmarshal(msg.Value, &sale); err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}
	if err := p.validate.Struct(sale); err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}

	// Full product snapshot is needed only to credit the sale, other statuses just point to it
	productErr := p.validate.Var(sale.Product.ID, "required")
	if sale.Status == SaleStatusApproved {
		productErr = p.validate.Struct(sale.Product)
	}
	if productErr != nil {
		return fmt.Errorf("%w: product: %w", errMalformed, productErr)
	}

	switch sale.Status {
	case SaleStatusApproved:
		c, err := p.service.ApproveSale(ctx, sale.SaleID, sale.AccountID, sale.Product)
		if err != nil {
			return err
		}
		p.logger.Debug("Sale credited", "sale_id", sale.SaleID, "commission_id", c.ID)

	case SaleStatusPaid:
		c, err := p.service.FindBySale(ctx, sale.AccountID, sale.SaleID, sale.Product.ID)
		if err != nil {
			return err
		}
		if _, err := p.service.MarkPaid(ctx, c.ID); err != nil {
			return err
		}

	case SaleStatusCancelled:
		c, err := p.service.FindBySale(ctx, sale.AccountID, sale.SaleID, sale.Product.ID)
		if err != nil {
			return err
		}
		if _, err := p.service.CancelCommission(ctx, c.ID); err != nil {
			return err
		}
	}

	p.metrics.RecordSale(sale.Status)
	return nil
}

// Wait retry delay. Returns false if context is done first
func (p *Processor) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(p.retryDelay):
		return true
	}
}
