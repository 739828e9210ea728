package commission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/affiliate/internal/apperrors"
	"github.com/nkiryanov/affiliate/internal/logger"
	"github.com/nkiryanov/affiliate/internal/metrics"
	"github.com/nkiryanov/affiliate/internal/models"
	"github.com/nkiryanov/affiliate/internal/repository"
)

type CommissionService struct {
	storage repository.Storage
	metrics *metrics.LedgerMetrics
	logger  logger.Logger

	now func() time.Time
}

func NewService(storage repository.Storage, m *metrics.LedgerMetrics, l logger.Logger) *CommissionService {
	if m == nil {
		m = metrics.NewNoop()
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &CommissionService{
		storage: storage,
		metrics: m,
		logger:  l,
		now:     time.Now,
	}
}

type commissionPayload struct {
	CommissionID  uuid.UUID       `json:"commission_id"`
	Amount        decimal.Decimal `json:"amount"`
	SaleReference string          `json:"sale_reference"`
	Status        string          `json:"status"`
}

func payloadOf(c models.Commission) commissionPayload {
	return commissionPayload{
		CommissionID:  c.ID,
		Amount:        c.Amount,
		SaleReference: c.SaleReference,
		Status:        c.Status,
	}
}

// ApproveSale creates pending commission for the sold product and credits the affiliate right away
// Fails with apperrors.ErrDuplicateSale if the sale has been credited already
func (s *CommissionService) ApproveSale(ctx context.Context, saleID string, accountID uuid.UUID, product models.Product) (models.Commission, error) {
	if !models.IsMoney(product.CommissionAmount) {
		return models.Commission{}, fmt.Errorf("%w: commission %s", apperrors.ErrInvalidAmount, product.CommissionAmount)
	}

	commissionType := product.CommissionType
	if commissionType == "" {
		commissionType = models.CommissionTypeFlat
	}

	var commission models.Commission
	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		commission, err = tx.Commission().CreateCommission(ctx, models.Commission{
			AccountID:     accountID,
			Amount:        product.CommissionAmount,
			Type:          commissionType,
			Status:        models.CommissionStatusPending,
			SaleReference: models.SaleReference(saleID, product.ID),
			Description:   fmt.Sprintf("Commission for %s (sale %s)", product.Name, saleID),
			CreatedAt:     s.now(),
		})
		if err != nil {
			return err
		}

		if _, err := tx.Account().CreditBalance(ctx, accountID, commission.Amount); err != nil {
			return err
		}

		return s.writeEvent(ctx, tx, accountID, models.EventCommissionCredited, payloadOf(commission))
	})
	if err != nil {
		return models.Commission{}, fmt.Errorf("can't approve sale %s: %w", saleID, err)
	}

	s.metrics.RecordCommission(models.CommissionStatusPending, commission.Amount)
	s.logger.Debug("Commission credited", "commission_id", commission.ID, "account_id", accountID, "amount", commission.Amount)

	return commission, nil
}

// CancelCommission reverses the credit of pending commission
// Insufficient balance here means the ledger is corrupted: nothing changes, the account is flagged for reconciliation
func (s *CommissionService) CancelCommission(ctx context.Context, commissionID uuid.UUID) (models.Commission, error) {
	var commission models.Commission
	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		commission, err = tx.Commission().TransitCommission(ctx, commissionID, models.CommissionStatusPending, models.CommissionStatusCancelled, s.now())
		if err != nil {
			return err
		}

		_, err = tx.Account().DebitBalance(ctx, commission.AccountID, commission.Amount)
		switch {
		case errors.Is(err, apperrors.ErrInsufficientBalance):
			return fmt.Errorf("%w: reversal of %s exceeds balance of account %s", apperrors.ErrLedgerInvariant, commission.Amount, commission.AccountID)
		case err != nil:
			return err
		}

		return s.writeEvent(ctx, tx, commission.AccountID, models.EventCommissionCancelled, payloadOf(commission))
	})

	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrLedgerInvariant):
		s.flagOverdraft(ctx, commission, err)
		return models.Commission{}, fmt.Errorf("can't cancel commission %s: %w", commissionID, err)
	default:
		return models.Commission{}, fmt.Errorf("can't cancel commission %s: %w", commissionID, err)
	}

	s.metrics.RecordCommission(models.CommissionStatusCancelled, commission.Amount)
	s.logger.Debug("Commission cancelled", "commission_id", commission.ID, "account_id", commission.AccountID, "amount", commission.Amount)

	return commission, nil
}

// MarkPaid is bookkeeping only, balance stays as is
func (s *CommissionService) MarkPaid(ctx context.Context, commissionID uuid.UUID) (models.Commission, error) {
	var commission models.Commission
	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		commission, err = tx.Commission().TransitCommission(ctx, commissionID, models.CommissionStatusPending, models.CommissionStatusPaid, s.now())
		if err != nil {
			return err
		}

		return s.writeEvent(ctx, tx, commission.AccountID, models.EventCommissionPaid, payloadOf(commission))
	})
	if err != nil {
		return models.Commission{}, fmt.Errorf("can't mark commission %s paid: %w", commissionID, err)
	}

	s.metrics.RecordCommission(models.CommissionStatusPaid, commission.Amount)

	return commission, nil
}

// FindBySale returns the non-cancelled commission created for the sale of the product
func (s *CommissionService) FindBySale(ctx context.Context, accountID uuid.UUID, saleID string, productID string) (models.Commission, error) {
	return s.storage.Commission().GetActiveCommissionBySale(ctx, accountID, models.SaleReference(saleID, productID))
}

func (s *CommissionService) GetCommission(ctx context.Context, commissionID uuid.UUID) (models.Commission, error) {
	return s.storage.Commission().GetCommission(ctx, commissionID)
}

func (s *CommissionService) writeEvent(ctx context.Context, tx repository.Storage, accountID uuid.UUID, kind string, payload any) error {
	event, err := models.NewLedgerEvent(accountID, kind, payload)
	if err != nil {
		return err
	}
	event.CreatedAt = s.now()

	return tx.Event().CreateEvent(ctx, event)
}

// Record the issue outside the aborted transaction, so it survives the rollback
func (s *CommissionService) flagOverdraft(ctx context.Context, commission models.Commission, cause error) {
	s.metrics.RecordInvariantViolation()
	s.logger.Error("Ledger invariant violated on commission reversal",
		"error", cause,
		"commission_id", commission.ID,
		"account_id", commission.AccountID,
		"amount", commission.Amount,
	)

	details, err := json.Marshal(payloadOf(commission))
	if err != nil {
		s.logger.Error("Failed to build reconciliation details", "error", err)
		return
	}

	_, err = s.storage.Reconciliation().FlagAccount(ctx, models.ReconciliationIssue{
		AccountID: commission.AccountID,
		Reason:    models.ReasonReversalOverdraft,
		Details:   details,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.logger.Error("Failed to flag account for reconciliation", "error", err, "account_id", commission.AccountID)
	}
}
