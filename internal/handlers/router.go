package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/affiliate/internal/handlers/middleware"
	"github.com/nkiryanov/affiliate/internal/logger"
	"github.com/nkiryanov/affiliate/internal/metrics"
	"github.com/nkiryanov/affiliate/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Services struct {
	Account    accountService
	Commission commissionService
	Cashout    cashoutService
	Projection projectionService
}

// NewRouter builds the ledger API
// metricsHandler is mounted on /metrics if not nil
func NewRouter(s Services, metricsHandler http.Handler, m *metrics.LedgerMetrics, logger logger.Logger) http.Handler {
	if m == nil {
		m = metrics.NewNoop()
	}

	mux := http.NewServeMux()

	mux.Handle("POST /api/accounts", handleCreateAccount(s.Account, logger))
	mux.Handle("GET /api/accounts/{accountID}", handleGetAccount(s.Account, logger))
	mux.Handle("DELETE /api/accounts/{accountID}", handleDeleteAccount(s.Account, logger))
	mux.Handle("GET /api/accounts/{accountID}/summary", handleSummary(s.Projection, logger))
	mux.Handle("GET /api/accounts/{accountID}/history", handleHistory(s.Projection, logger))
	mux.Handle("POST /api/accounts/{accountID}/reconcile", handleReconcile(s.Projection, logger))
	mux.Handle("GET /api/accounts/{accountID}/cashouts", handleCashoutOverview(s.Cashout, logger))
	mux.Handle("POST /api/accounts/{accountID}/cashouts", handleRequestCashout(s.Cashout, logger))

	mux.Handle("GET /api/cashouts/{cashoutID}", handleGetCashout(s.Cashout, logger))
	mux.Handle("POST /api/cashouts/{cashoutID}/decision", handleDecideCashout(s.Cashout, logger))

	mux.Handle("POST /api/sales", handleApproveSale(s.Commission, logger))
	mux.Handle("GET /api/commissions/{commissionID}", handleGetCommission(s.Commission, logger))
	mux.Handle("POST /api/commissions/{commissionID}/paid", handleMarkPaid(s.Commission, logger))
	mux.Handle("POST /api/commissions/{commissionID}/cancel", handleCancelCommission(s.Commission, logger))

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	handler := chain(mux,
		middleware.LoggerMiddleware(logger),
		middleware.MetricsMiddleware(m),
	)

	return handler
}

type accountService interface {
	// Create account with generated referral code
	// Has to return apperrors.ErrAccountAlreadyExists if username is taken
	// Has to return apperrors.ErrReferralCodeNotFound if referral code provided and unknown
	CreateAccount(ctx context.Context, username string, referralCode string) (models.Account, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error)
	DeleteAccount(ctx context.Context, accountID uuid.UUID) error
}

type commissionService interface {
	ApproveSale(ctx context.Context, saleID string, accountID uuid.UUID, product models.Product) (models.Commission, error)
	GetCommission(ctx context.Context, commissionID uuid.UUID) (models.Commission, error)
	MarkPaid(ctx context.Context, commissionID uuid.UUID) (models.Commission, error)

	// Has to return error wrapping apperrors.ErrLedgerInvariant if reversal would overdraw the balance
	CancelCommission(ctx context.Context, commissionID uuid.UUID) (models.Commission, error)
}

type cashoutService interface {
	RequestCashout(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (models.CashoutOverview, error)
	Decide(ctx context.Context, cashoutID uuid.UUID, approve bool) (models.CashoutRequest, error)
	Overview(ctx context.Context, accountID uuid.UUID) (models.CashoutOverview, error)
	GetCashout(ctx context.Context, cashoutID uuid.UUID) (models.CashoutRequest, error)
}

type projectionService interface {
	ComputeSummary(ctx context.Context, accountID uuid.UUID) (models.Summary, error)
	ComputeHistory(ctx context.Context, accountID uuid.UUID) ([]models.HistoryPoint, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (models.Summary, error)
}
