package cashout

import (
	"context"
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

// Withdrawal policy, fixed at service construction
type Policy struct {
	// Balance the account must hold before any cashout is allowed
	MinimumThreshold decimal.Decimal

	// Fee withheld from every cashout, charged at request time
	ProcessingFee decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		MinimumThreshold: decimal.NewFromInt(5000),
		ProcessingFee:    decimal.NewFromInt(1000),
	}
}

type CashoutService struct {
	storage repository.Storage
	policy  Policy
	metrics *metrics.LedgerMetrics
	logger  logger.Logger

	now func() time.Time
}

func NewService(storage repository.Storage, policy Policy, m *metrics.LedgerMetrics, l logger.Logger) *CashoutService {
	if m == nil {
		m = metrics.NewNoop()
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &CashoutService{
		storage: storage,
		policy:  policy,
		metrics: m,
		logger:  l,
		now:     time.Now,
	}
}

func (s *CashoutService) Policy() Policy {
	return s.policy
}

type cashoutPayload struct {
	CashoutID       uuid.UUID       `json:"cashout_id"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	ProcessingFee   decimal.Decimal `json:"processing_fee"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	Status          string          `json:"status"`
}

func payloadOf(c models.CashoutRequest) cashoutPayload {
	return cashoutPayload{
		CashoutID:       c.ID,
		RequestedAmount: c.RequestedAmount,
		ProcessingFee:   c.ProcessingFee,
		NetAmount:       c.NetAmount,
		Status:          c.Status,
	}
}

// RequestCashout validates the request against the locked account and reserves requested amount immediately
// Concurrent requests of one account are serialized on the account row, so each sees the previous debit
func (s *CashoutService) RequestCashout(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (models.CashoutOverview, error) {
	var overview models.CashoutOverview
	var request models.CashoutRequest
	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		account, err := tx.Account().GetAccount(ctx, accountID, true)
		if err != nil {
			return err
		}

		if err := s.validate(account.CommissionBalance, amount); err != nil {
			return err
		}

		request, err = tx.Cashout().CreateCashout(ctx, models.CashoutRequest{
			AccountID:       accountID,
			RequestedAmount: amount,
			ProcessingFee:   s.policy.ProcessingFee,
			CreatedAt:       s.now(),
		})
		if err != nil {
			return err
		}

		account, err = tx.Account().DebitBalance(ctx, accountID, request.RequestedAmount)
		if err != nil {
			return err
		}

		event, err := models.NewLedgerEvent(accountID, models.EventCashoutRequested, payloadOf(request))
		if err != nil {
			return err
		}
		event.CreatedAt = request.CreatedAt
		if err := tx.Event().CreateEvent(ctx, event); err != nil {
			return err
		}

		history, err := tx.Cashout().ListCashouts(ctx, accountID, repository.ListCashoutsOpts{NewestFirst: true})
		if err != nil {
			return err
		}

		overview = models.CashoutOverview{Balance: account.CommissionBalance, History: history}
		return nil
	})
	if err != nil {
		s.recordRefused(err)
		return models.CashoutOverview{}, fmt.Errorf("can't request cashout: %w", err)
	}

	s.metrics.RecordCashout(models.CashoutStatusPending, request.RequestedAmount)
	s.logger.Info("Cashout requested", "cashout_id", request.ID, "account_id", accountID, "amount", amount)

	return overview, nil
}

// Checks go in fixed order, the first failed one wins
// Amount precision is checked last, so threshold and balance errors take precedence
func (s *CashoutService) validate(balance decimal.Decimal, amount decimal.Decimal) error {
	switch {
	case balance.LessThan(s.policy.MinimumThreshold):
		return fmt.Errorf("%w: balance %s is below threshold %s", apperrors.ErrInsufficientBalance, balance, s.policy.MinimumThreshold)
	case amount.GreaterThan(balance):
		return fmt.Errorf("%w: requested %s, balance %s", apperrors.ErrExceedsBalance, amount, balance)
	case !amount.GreaterThan(s.policy.ProcessingFee):
		return fmt.Errorf("%w: requested %s, fee %s", apperrors.ErrBelowFee, amount, s.policy.ProcessingFee)
	case !models.IsMoney(amount):
		return fmt.Errorf("%w: requested %s", apperrors.ErrInvalidAmount, amount)
	default:
		return nil
	}
}

func (s *CashoutService) recordRefused(err error) {
	switch {
	case errors.Is(err, apperrors.ErrInsufficientBalance):
		s.metrics.RecordCashoutRefused("below_threshold")
	case errors.Is(err, apperrors.ErrExceedsBalance):
		s.metrics.RecordCashoutRefused("exceeds_balance")
	case errors.Is(err, apperrors.ErrBelowFee):
		s.metrics.RecordCashoutRefused("below_fee")
	case errors.Is(err, apperrors.ErrInvalidAmount):
		s.metrics.RecordCashoutRefused("invalid_amount")
	}
}

// Decide settles pending request exactly once
// Rejection restores the whole reservation, fee included. Approval keeps the balance as is
func (s *CashoutService) Decide(ctx context.Context, cashoutID uuid.UUID, approve bool) (models.CashoutRequest, error) {
	status, kind := models.CashoutStatusRejected, models.EventCashoutRejected
	if approve {
		status, kind = models.CashoutStatusApproved, models.EventCashoutApproved
	}

	var request models.CashoutRequest
	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		request, err = tx.Cashout().SettleCashout(ctx, cashoutID, status, s.now())
		if err != nil {
			return err
		}

		if !approve {
			if _, err := tx.Account().CreditBalance(ctx, request.AccountID, request.RequestedAmount); err != nil {
				return err
			}
		}

		event, err := models.NewLedgerEvent(request.AccountID, kind, payloadOf(request))
		if err != nil {
			return err
		}
		event.CreatedAt = request.UpdatedAt
		return tx.Event().CreateEvent(ctx, event)
	})
	if err != nil {
		return models.CashoutRequest{}, fmt.Errorf("can't settle cashout %s: %w", cashoutID, err)
	}

	s.metrics.RecordCashout(status, request.RequestedAmount)
	s.logger.Info("Cashout settled", "cashout_id", request.ID, "account_id", request.AccountID, "status", status)

	return request, nil
}

// Overview returns current balance and cashout history without changing anything
func (s *CashoutService) Overview(ctx context.Context, accountID uuid.UUID) (models.CashoutOverview, error) {
	account, err := s.storage.Account().GetAccount(ctx, accountID, false)
	if err != nil {
		return models.CashoutOverview{}, err
	}

	history, err := s.storage.Cashout().ListCashouts(ctx, accountID, repository.ListCashoutsOpts{NewestFirst: true})
	if err != nil {
		return models.CashoutOverview{}, err
	}

	return models.CashoutOverview{Balance: account.CommissionBalance, History: history}, nil
}

func (s *CashoutService) GetCashout(ctx context.Context, cashoutID uuid.UUID) (models.CashoutRequest, error) {
	return s.storage.Cashout().GetCashout(ctx, cashoutID)
}
