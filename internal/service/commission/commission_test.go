package commission

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/affiliate/internal/apperrors"
	"github.com/nkiryanov/affiliate/internal/models"
	"github.com/nkiryanov/affiliate/internal/repository"
	"github.com/nkiryanov/affiliate/internal/repository/postgres"
	"github.com/nkiryanov/affiliate/internal/testutil"
)

var product = models.Product{
	ID:               "product-1",
	Name:             "Course",
	CommissionAmount: decimal.NewFromInt(2000),
}

func TestCommission(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run service on storage bound to transaction and create account with zero balance
	inTx := func(t *testing.T, fn func(s *CommissionService, storage repository.Storage, account models.Account)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			account, err := storage.Account().CreateAccount(t.Context(), models.Account{Username: "affiliate", ReferralCode: "code-1"})
			require.NoError(t, err)

			fn(NewService(storage, nil, nil), storage, account)
		})
	}

	balanceOf := func(t *testing.T, storage repository.Storage, accountID uuid.UUID) decimal.Decimal {
		account, err := storage.Account().GetAccount(t.Context(), accountID, false)
		require.NoError(t, err)
		return account.CommissionBalance
	}

	t.Run("ApproveSale", func(t *testing.T) {
		t.Run("credit on creation", func(t *testing.T) {
			inTx(t, func(s *CommissionService, storage repository.Storage, account models.Account) {
				c, err := s.ApproveSale(t.Context(), "sale-1", account.ID, product)

				require.NoError(t, err)
				require.Equal(t, models.CommissionStatusPending, c.Status)
				require.Equal(t, models.CommissionTypeFlat, c.Type)
				require.Equal(t, "sale-1:product-1", c.SaleReference)
				require.True(t, c.Amount.Equal(decimal.NewFromInt(2000)))
				require.True(t, balanceOf(t, storage, account.ID).Equal(decimal.NewFromInt(2000)), "balance must be credited at once")

				events, err := storage.Event().ListUnpublished(t.Context(), 10)
				require.NoError(t, err)
				require.Len(t, events, 1)
				require.Equal(t, models.EventCommissionCredited, events[0].Kind)
				require.Equal(t, account.ID, events[0].AccountID)
			})
		})

		t.Run("duplicate sale", func(t *testing.T) {
			inTx(t, func(s *CommissionService, storage repository.Storage, account models.Account) {
				_, err := s.ApproveSale(t.Context(), "sale-1", account.ID, product)
				require.NoError(t, err)

				_, err = s.ApproveSale(t.Context(), "sale-1", account.ID, product)

				require.ErrorIs(t, err, apperrors.ErrDuplicateSale)
				require.True(t, balanceOf(t, storage, account.ID).Equal(decimal.NewFromInt(2000)), "duplicate must not credit twice")
			})
		})

		t.Run("other product of the same sale", func(t *testing.T) {
			inTx(t, func(s *CommissionService, storage repository.Storage, account models.Account) {
				_, err := s.ApproveSale(t.Context(), "sale-1", account.ID, product)
				require.NoError(t, err)

				other := product
				other.ID = "product-2"
				_, err = s.ApproveSale(t.Context(), "sale-1", account.ID, other)

				require.NoError(t, err)
				require.True(t, balanceOf(t, storage, account.ID).Equal(decimal.NewFromInt(4000)))
			})
		})

		t.Run("not money commission", func(t *testing.T) {
			for _, amount := range []string{"0", "-1", "10.005"} {
				inTx(t, func(s *CommissionService, storage repository.Storage, account models.Account) {
					odd := product
					odd.CommissionAmount = decimal.RequireFromString(amount)

					_, err := s.ApproveSale(t.Context(), "sale-1", account.ID, odd)

					require.ErrorIs(t, err, apperrors.ErrInvalidAmount, "amount %s", amount)
					require.True(t, balanceOf(t, storage, account.ID).IsZero())
				})
			}
		})

		t.Run("not existed account", func(t *testing.T) {
			inTx(t, func(s *CommissionService, _ repository.Storage, _ models.Account) {
				_, err := s.ApproveSale(t.Context(), "sale-1", uuid.New(), product)

				require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
			})
		})
	})

	t.Run("CancelCommission", func(t *testing.T) {
		t.Run("reverse credit once", func(t *testing.T) {
			inTx(t, func(s *CommissionService, storage repository.Storage, account models.Account) {
				c, err := s.ApproveSale(t.Context(), "sale-1", account.ID, product)
				require.NoError(t, err)

				cancelled, err := s.CancelCommission(t.Context(), c.ID)

				require.NoError(t, err)
				require.Equal(t, models.CommissionStatusCancelled, cancelled.Status)
				require.NotNil(t, cancelled.CancelledAt)
				require.True(t, balanceOf(t, storage, account.ID).IsZero(), "balance must return to zero")

				_, err = s.CancelCommission(t.Context(), c.ID)

				require.ErrorIs(t, err, apperrors.ErrInvalidState, "second cancel must fail")
				require.True(t, balanceOf(t, storage, account.ID).IsZero(), "second cancel must not debit")
			})
		})

		t.Run("sale may be credited again after cancel", func(t *testing.T) {
			inTx(t, func(s *CommissionService, storage repository.Storage, account models.Account) {
				c, err := s.ApproveSale(t.Context(), "sale-1", account.ID, product)
				require.NoError(t, err)
				_, err = s.CancelCommission(t.Context(), c.ID)
				require.NoError(t, err)

				_, err = s.ApproveSale(t.Context(), "sale-1", account.ID, product)

				require.NoError(t, err)
				require.True(t, balanceOf(t, storage, account.ID).Equal(decimal.NewFromInt(2000)))
			})
		})

		t.Run("paid can't be cancelled", func(t *testing.T) {
			inTx(t, func(s *CommissionService, storage repository.Storage, account models.Account) {
				c, err := s.ApproveSale(t.Context(), "sale-1", account.ID, product)
				require.NoError(t, err)
				_, err = s.MarkPaid(t.Context(), c.ID)
				require.NoError(t, err)

				_, err = s.CancelCommission(t.Context(), c.ID)

				require.ErrorIs(t, err, apperrors.ErrInvalidState)
				require.True(t, balanceOf(t, storage, account.ID).Equal(decimal.NewFromInt(2000)))
			})
		})

		t.Run("not existed", func(t *testing.T) {
			inTx(t, func(s *CommissionService, _ repository.Storage, _ models.Account) {
				_, err := s.CancelCommission(t.Context(), uuid.New())

				require.ErrorIs(t, err, apperrors.ErrCommissionNotFound)
			})
		})

		t.Run("overdraft is ledger invariant", func(t *testing.T) {
			inTx(t, func(s *CommissionService, storage repository.Storage, account models.Account) {
				c, err := s.ApproveSale(t.Context(), "sale-1", account.ID, product)
				require.NoError(t, err)

				// Funds already left the account (e.g. reserved by cashout)
				_, err = storage.Account().DebitBalance(t.Context(), account.ID, decimal.NewFromInt(1500))
				require.NoError(t, err)

				_, err = s.CancelCommission(t.Context(), c.ID)

				require.ErrorIs(t, err, apperrors.ErrLedgerInvariant)
				require.True(t, balanceOf(t, storage, account.ID).Equal(decimal.NewFromInt(500)), "balance must not be clamped or changed")

				got, err := storage.Commission().GetCommission(t.Context(), c.ID)
				require.NoError(t, err)
				require.Equal(t, models.CommissionStatusPending, got.Status, "transition must be rolled back")

				issues, err := storage.Reconciliation().ListOpenIssues(t.Context(), account.ID)
				require.NoError(t, err)
				require.Len(t, issues, 1, "account must be flagged for reconciliation")
				require.Equal(t, models.ReasonReversalOverdraft, issues[0].Reason)
			})
		})
	})

	t.Run("MarkPaid", func(t *testing.T) {
		t.Run("no balance effect", func(t *testing.T) {
			inTx(t, func(s *CommissionService, storage repository.Storage, account models.Account) {
				c, err := s.ApproveSale(t.Context(), "sale-1", account.ID, product)
				require.NoError(t, err)

				paid, err := s.MarkPaid(t.Context(), c.ID)

				require.NoError(t, err)
				require.Equal(t, models.CommissionStatusPaid, paid.Status)
				require.True(t, balanceOf(t, storage, account.ID).Equal(decimal.NewFromInt(2000)))

				_, err = s.MarkPaid(t.Context(), c.ID)
				require.ErrorIs(t, err, apperrors.ErrInvalidState, "paid is terminal")
			})
		})

		t.Run("cancelled can't be paid", func(t *testing.T) {
			inTx(t, func(s *CommissionService, _ repository.Storage, account models.Account) {
				c, err := s.ApproveSale(t.Context(), "sale-1", account.ID, product)
				require.NoError(t, err)
				_, err = s.CancelCommission(t.Context(), c.ID)
				require.NoError(t, err)

				_, err = s.MarkPaid(t.Context(), c.ID)

				require.ErrorIs(t, err, apperrors.ErrInvalidState)
			})
		})
	})

	t.Run("FindBySale", func(t *testing.T) {
		inTx(t, func(s *CommissionService, _ repository.Storage, account models.Account) {
			c, err := s.ApproveSale(t.Context(), "sale-1", account.ID, product)
			require.NoError(t, err)

			found, err := s.FindBySale(t.Context(), account.ID, "sale-1", "product-1")
			require.NoError(t, err)
			require.Equal(t, c.ID, found.ID)

			_, err = s.FindBySale(t.Context(), account.ID, "sale-2", "product-1")
			require.ErrorIs(t, err, apperrors.ErrCommissionNotFound)
		})
	})

	t.Run("concurrent approvals of one sale credit once", func(t *testing.T) {
		storage := postgres.NewStorage(pg.Pool)
		account, err := storage.Account().CreateAccount(t.Context(), models.Account{Username: "concurrent", ReferralCode: "code-concurrent"})
		require.NoError(t, err)
		s := NewService(storage, nil, nil)

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.ApproveSale(t.Context(), "sale-concurrent", account.ID, product)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, apperrors.ErrDuplicateSale)
		}

		require.Equal(t, 1, succeeded)
		require.True(t, balanceOf(t, storage, account.ID).Equal(decimal.NewFromInt(2000)), fmt.Sprintf("balance credited once, got %s", balanceOf(t, storage, account.ID)))
	})
}
