package postgres

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/affiliate/internal/apperrors"
	"github.com/nkiryanov/affiliate/internal/models"
	"github.com/nkiryanov/affiliate/internal/repository"
	"github.com/nkiryanov/affiliate/internal/testutil"
)

func TestAccount(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, outerTx DBTX, fn func(pgx.Tx, repository.Storage)) {
		testutil.InTx(outerTx, t, func(innerTx pgx.Tx) {
			fn(innerTx, NewStorage(innerTx))
		})
	}

	t.Run("CreateAccount", func(t *testing.T) {
		t.Run("create ok", func(t *testing.T) {
			inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
				account, err := storage.Account().CreateAccount(t.Context(), models.Account{
					Username:          "affiliate",
					ReferralCode:      "code-1",
					CommissionBalance: decimal.NewFromInt(100), // must be ignored
				})

				require.NoError(t, err, "account has to be created ok")
				require.NotEqual(t, uuid.Nil, account.ID)
				require.Equal(t, "affiliate", account.Username)
				require.Equal(t, "code-1", account.ReferralCode)
				require.True(t, account.CommissionBalance.IsZero(), "new account must start with zero balance")
				require.Nil(t, account.ReferredBy)
			})
		})

		t.Run("duplicate username", func(t *testing.T) {
			inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
				_, err := storage.Account().CreateAccount(t.Context(), models.Account{Username: "affiliate", ReferralCode: "code-1"})
				require.NoError(t, err)

				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Account().CreateAccount(t.Context(), models.Account{Username: "affiliate", ReferralCode: "code-2"})

					require.ErrorIs(t, err, apperrors.ErrAccountAlreadyExists)
				})
			})
		})

		t.Run("referred by", func(t *testing.T) {
			inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
				referrer, err := storage.Account().CreateAccount(t.Context(), models.Account{Username: "referrer", ReferralCode: "code-1"})
				require.NoError(t, err)

				referred, err := storage.Account().CreateAccount(t.Context(), models.Account{Username: "referred", ReferralCode: "code-2", ReferredBy: &referrer.ID})

				require.NoError(t, err)
				require.NotNil(t, referred.ReferredBy)
				require.Equal(t, referrer.ID, *referred.ReferredBy)
			})
		})
	})

	t.Run("GetAccount", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			created, err := storage.Account().CreateAccount(t.Context(), models.Account{Username: "affiliate", ReferralCode: "code-1"})
			require.NoError(t, err)

			t.Run("by id", func(t *testing.T) {
				for _, forUpdate := range []bool{false, true} {
					got, err := storage.Account().GetAccount(t.Context(), created.ID, forUpdate)

					require.NoError(t, err)
					require.Equal(t, created.ID, got.ID)
					require.Equal(t, created.Username, got.Username)
				}
			})

			t.Run("by referral code", func(t *testing.T) {
				got, err := storage.Account().GetAccountByReferralCode(t.Context(), "code-1")

				require.NoError(t, err)
				require.Equal(t, created.ID, got.ID)
			})

			t.Run("not found", func(t *testing.T) {
				_, err := storage.Account().GetAccount(t.Context(), uuid.New(), false)
				require.ErrorIs(t, err, apperrors.ErrAccountNotFound)

				_, err = storage.Account().GetAccountByReferralCode(t.Context(), "unknown")
				require.ErrorIs(t, err, apperrors.ErrReferralCodeNotFound)
			})
		})
	})

	t.Run("DeleteAccount", func(t *testing.T) {
		inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
			referrer, err := storage.Account().CreateAccount(t.Context(), models.Account{Username: "referrer", ReferralCode: "code-1"})
			require.NoError(t, err)
			referred, err := storage.Account().CreateAccount(t.Context(), models.Account{Username: "referred", ReferralCode: "code-2", ReferredBy: &referrer.ID})
			require.NoError(t, err)
			commission, err := storage.Commission().CreateCommission(t.Context(), models.Commission{AccountID: referrer.ID, Amount: decimal.NewFromInt(10), SaleReference: "s:p"})
			require.NoError(t, err)

			err = storage.Account().DeleteAccount(t.Context(), referrer.ID)
			require.NoError(t, err)

			got, err := storage.Account().GetAccount(t.Context(), referred.ID, false)
			require.NoError(t, err, "referred account must survive referrer deletion")
			require.Nil(t, got.ReferredBy, "reference to deleted referrer must be nullified")

			_, err = storage.Commission().GetCommission(t.Context(), commission.ID)
			require.ErrorIs(t, err, apperrors.ErrCommissionNotFound, "commissions are deleted with the account")

			err = storage.Account().DeleteAccount(t.Context(), referrer.ID)
			require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
		})
	})

	t.Run("CreditDebit", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			account, err := storage.Account().CreateAccount(t.Context(), models.Account{Username: "affiliate", ReferralCode: "code-1"})
			require.NoError(t, err)

			t.Run("credit", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					got, err := storage.Account().CreditBalance(t.Context(), account.ID, decimal.RequireFromString("100.50"))

					require.NoError(t, err)
					require.Equal(t, "100.5", got.CommissionBalance.String())
				})
			})

			t.Run("debit", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Account().CreditBalance(t.Context(), account.ID, decimal.NewFromInt(100))
					require.NoError(t, err)

					got, err := storage.Account().DebitBalance(t.Context(), account.ID, decimal.NewFromInt(70))

					require.NoError(t, err)
					require.True(t, got.CommissionBalance.Equal(decimal.NewFromInt(30)), "balance should be 30 after debit")
				})
			})

			t.Run("debit whole balance", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Account().CreditBalance(t.Context(), account.ID, decimal.NewFromInt(100))
					require.NoError(t, err)

					got, err := storage.Account().DebitBalance(t.Context(), account.ID, decimal.NewFromInt(100))

					require.NoError(t, err)
					require.True(t, got.CommissionBalance.IsZero())
				})
			})

			t.Run("debit insufficient", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Account().CreditBalance(t.Context(), account.ID, decimal.NewFromInt(100))
					require.NoError(t, err)

					_, err = storage.Account().DebitBalance(t.Context(), account.ID, decimal.NewFromInt(101))
					require.ErrorIs(t, err, apperrors.ErrInsufficientBalance)

					got, err := storage.Account().GetAccount(t.Context(), account.ID, false)
					require.NoError(t, err)
					require.True(t, got.CommissionBalance.Equal(decimal.NewFromInt(100)), "failed debit must not change balance")
				})
			})

			t.Run("not existed account", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Account().CreditBalance(t.Context(), uuid.New(), decimal.NewFromInt(1))
					require.ErrorIs(t, err, apperrors.ErrAccountNotFound)

					_, err = storage.Account().DebitBalance(t.Context(), uuid.New(), decimal.NewFromInt(1))
					require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
				})
			})

			t.Run("not money amount", func(t *testing.T) {
				// Sub cent amounts would be rounded by the column, so they never reach it
				for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5), decimal.RequireFromString("0.005")} {
					_, err := storage.Account().CreditBalance(t.Context(), account.ID, amount)
					require.ErrorIs(t, err, apperrors.ErrInvalidAmount)

					_, err = storage.Account().DebitBalance(t.Context(), account.ID, amount)
					require.ErrorIs(t, err, apperrors.ErrInvalidAmount)
				}

				got, err := storage.Account().GetAccount(t.Context(), account.ID, false)
				require.NoError(t, err)
				require.True(t, got.CommissionBalance.Equal(account.CommissionBalance), "balance must stay unchanged")
			})
		})
	})

	t.Run("concurrent debits never overdraw", func(t *testing.T) {
		// Runs on the pool: every debit is its own transaction
		storage := NewStorage(pg.Pool)
		account, err := storage.Account().CreateAccount(t.Context(), models.Account{Username: "concurrent", ReferralCode: "code-concurrent"})
		require.NoError(t, err)
		_, err = storage.Account().CreditBalance(t.Context(), account.ID, decimal.NewFromInt(1000))
		require.NoError(t, err)

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for range 25 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := storage.Account().DebitBalance(t.Context(), account.ID, decimal.NewFromInt(100))
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		got, err := storage.Account().GetAccount(t.Context(), account.ID, false)
		require.NoError(t, err)
		require.Equal(t, 10, succeeded, "exactly ten debits of 100 fit into 1000")
		require.True(t, got.CommissionBalance.IsZero(), "balance must be drained to zero, not below")
	})
}

