package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/affiliate/internal/apperrors"
	"github.com/nkiryanov/affiliate/internal/logger"
	"github.com/nkiryanov/affiliate/internal/metrics"
	"github.com/nkiryanov/affiliate/internal/models"
	"github.com/nkiryanov/affiliate/internal/repository"
)

// ProjectionService derives reports from stored commissions and cashouts. It never mutates the ledger
type ProjectionService struct {
	storage repository.Storage
	metrics *metrics.LedgerMetrics
	logger  logger.Logger
}

func NewService(storage repository.Storage, m *metrics.LedgerMetrics, l logger.Logger) *ProjectionService {
	if m == nil {
		m = metrics.NewNoop()
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &ProjectionService{storage: storage, metrics: m, logger: l}
}

type delta struct {
	at     time.Time
	amount decimal.Decimal
}

// Signed balance changes of the account in time order
func deltas(commissions []models.Commission, cashouts []models.CashoutRequest) []delta {
	out := make([]delta, 0, len(commissions)+len(cashouts))

	for _, c := range commissions {
		if c.Status == models.CommissionStatusCancelled && c.CancelledAt == nil {
			continue // never credited as far as history can tell
		}
		out = append(out, delta{at: c.CreatedAt, amount: c.Amount})
		if c.Status == models.CommissionStatusCancelled {
			out = append(out, delta{at: *c.CancelledAt, amount: c.Amount.Neg()})
		}
	}

	for _, c := range cashouts {
		if c.Status == models.CashoutStatusRejected {
			continue
		}
		out = append(out, delta{at: c.CreatedAt, amount: c.RequestedAmount.Neg()})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].at.Before(out[j].at)
	})

	return out
}

// BuildHistory folds commissions and non-rejected cashouts into running balance at the end of every UTC day
// Cancelled commission counts twice: credit at creation and reversal at cancellation
func BuildHistory(commissions []models.Commission, cashouts []models.CashoutRequest) []models.HistoryPoint {
	points := []models.HistoryPoint{}
	balance := decimal.Zero

	for _, d := range deltas(commissions, cashouts) {
		balance = balance.Add(d.amount)
		day := d.at.UTC().Truncate(24 * time.Hour)

		if n := len(points); n > 0 && points[n-1].Date.Equal(day) {
			points[n-1].Balance = balance
			continue
		}
		points = append(points, models.HistoryPoint{Date: day, Balance: balance})
	}

	return points
}

// Summarize aggregates current state. Stored balance is authoritative, projected one is there for the consistency check
func Summarize(account models.Account, commissions []models.Commission, cashouts []models.CashoutRequest, referrals int) models.Summary {
	summary := models.Summary{
		Available:          account.CommissionBalance,
		PendingWithdrawals: decimal.Zero,
		PendingCommissions: decimal.Zero,
		TotalCashedOut:     decimal.Zero,
		ReferralCount:      referrals,
		ProjectedBalance:   decimal.Zero,
	}

	for _, c := range commissions {
		if c.Status == models.CommissionStatusPending {
			summary.PendingCommissions = summary.PendingCommissions.Add(c.Amount)
		}
	}

	for _, c := range cashouts {
		switch c.Status {
		case models.CashoutStatusPending:
			summary.PendingWithdrawals = summary.PendingWithdrawals.Add(c.RequestedAmount)
		case models.CashoutStatusApproved:
			summary.TotalCashedOut = summary.TotalCashedOut.Add(c.RequestedAmount)
		}
	}

	for _, d := range deltas(commissions, cashouts) {
		summary.ProjectedBalance = summary.ProjectedBalance.Add(d.amount)
	}
	summary.Consistent = summary.ProjectedBalance.Equal(summary.Available)

	return summary
}

func (s *ProjectionService) ComputeHistory(ctx context.Context, accountID uuid.UUID) ([]models.HistoryPoint, error) {
	_, commissions, cashouts, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return BuildHistory(commissions, cashouts), nil
}

func (s *ProjectionService) ComputeSummary(ctx context.Context, accountID uuid.UUID) (models.Summary, error) {
	account, commissions, cashouts, err := s.load(ctx, accountID)
	if err != nil {
		return models.Summary{}, err
	}

	referrals, err := s.storage.Referral().CountReferrals(ctx, accountID)
	if err != nil {
		return models.Summary{}, err
	}

	summary := Summarize(account, commissions, cashouts, referrals)
	if !summary.Consistent {
		s.logger.Warn("Projected balance differs from stored one",
			"account_id", accountID,
			"stored", summary.Available,
			"projected", summary.ProjectedBalance,
		)
	}

	return summary, nil
}

// Reconcile flags the account if projected balance drifted from the stored one
func (s *ProjectionService) Reconcile(ctx context.Context, accountID uuid.UUID) (models.Summary, error) {
	summary, err := s.ComputeSummary(ctx, accountID)
	if err != nil {
		return summary, err
	}
	if summary.Consistent {
		return summary, nil
	}

	details, err := json.Marshal(map[string]decimal.Decimal{
		"stored":    summary.Available,
		"projected": summary.ProjectedBalance,
	})
	if err != nil {
		return summary, err
	}

	_, err = s.storage.Reconciliation().FlagAccount(ctx, models.ReconciliationIssue{
		AccountID: accountID,
		Reason:    models.ReasonProjectionDrift,
		Details:   details,
	})
	if err != nil {
		return summary, fmt.Errorf("can't flag account %s: %w", accountID, err)
	}

	s.metrics.RecordInvariantViolation()
	s.logger.Error("Ledger drift detected, account flagged for reconciliation", "account_id", accountID)

	return summary, fmt.Errorf("%w: stored balance %s, projected %s", apperrors.ErrLedgerInvariant, summary.Available, summary.ProjectedBalance)
}

// Account, commissions and cashouts are read under shared lock on the account row,
// so they describe one moment even with concurrent commissions and cashouts
func (s *ProjectionService) load(ctx context.Context, accountID uuid.UUID) (account models.Account, commissions []models.Commission, cashouts []models.CashoutRequest, err error) {
	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		account, err = tx.Account().GetAccountForShare(ctx, accountID)
		if err != nil {
			return err
		}

		commissions, err = tx.Commission().ListCommissions(ctx, accountID)
		if err != nil {
			return err
		}

		cashouts, err = tx.Cashout().ListCashouts(ctx, accountID, repository.ListCashoutsOpts{})
		return err
	})

	return account, commissions, cashouts, err
}
