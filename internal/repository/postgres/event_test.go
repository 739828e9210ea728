package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/affiliate/internal/apperrors"
	"github.com/nkiryanov/affiliate/internal/models"
	"github.com/nkiryanov/affiliate/internal/repository"
	"github.com/nkiryanov/affiliate/internal/testutil"
)

func TestEvent(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, outerTx DBTX, fn func(pgx.Tx, repository.Storage)) {
		testutil.InTx(outerTx, t, func(innerTx pgx.Tx) {
			fn(innerTx, NewStorage(innerTx))
		})
	}

	t.Run("outbox", func(t *testing.T) {
		inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
			accountID := uuid.New()
			for i, kind := range []string{models.EventCommissionCredited, models.EventCashoutRequested, models.EventCashoutApproved} {
				err := storage.Event().CreateEvent(t.Context(), models.LedgerEvent{
					AccountID: accountID,
					Kind:      kind,
					Payload:   json.RawMessage(`{"amount":"10.00"}`),
					CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
				})
				require.NoError(t, err)
			}

			batch, err := storage.Event().ListUnpublished(t.Context(), 2)
			require.NoError(t, err)
			require.Len(t, batch, 2, "limit must be respected")
			require.Equal(t, models.EventCommissionCredited, batch[0].Kind, "oldest first")
			require.Equal(t, models.EventCashoutRequested, batch[1].Kind)
			require.JSONEq(t, `{"amount":"10.00"}`, string(batch[0].Payload))
			require.Nil(t, batch[0].PublishedAt)

			err = storage.Event().MarkPublished(t.Context(), []uuid.UUID{batch[0].ID, batch[1].ID}, time.Now())
			require.NoError(t, err)

			rest, err := storage.Event().ListUnpublished(t.Context(), 10)
			require.NoError(t, err)
			require.Len(t, rest, 1)
			require.Equal(t, models.EventCashoutApproved, rest[0].Kind)

			require.NoError(t, storage.Event().MarkPublished(t.Context(), nil, time.Now()), "empty batch is noop")
		})
	})

	t.Run("locked events skipped", func(t *testing.T) {
		storage := NewStorage(pg.Pool)
		err := storage.Event().CreateEvent(t.Context(), models.LedgerEvent{
			AccountID: uuid.New(),
			Kind:      models.EventCommissionPaid,
			Payload:   json.RawMessage(`{}`),
		})
		require.NoError(t, err)

		testutil.InTx(pg.Pool, t, func(first pgx.Tx) {
			locked, err := NewStorage(first).Event().ListUnpublished(t.Context(), 10)
			require.NoError(t, err)
			require.Len(t, locked, 1)

			testutil.InTx(pg.Pool, t, func(second pgx.Tx) {
				got, err := NewStorage(second).Event().ListUnpublished(t.Context(), 10)
				require.NoError(t, err)
				require.Empty(t, got, "concurrent relay must not see locked events")
			})
		})
	})
}

func TestReconciliation(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
		storage := NewStorage(tx)
		accountID := uuid.New()

		flagged, err := storage.Reconciliation().FlagAccount(t.Context(), models.ReconciliationIssue{
			AccountID: accountID,
			Reason:    models.ReasonReversalOverdraft,
		})
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, flagged.ID)
		require.JSONEq(t, `{}`, string(flagged.Details), "empty details stored as empty object")

		_, err = storage.Reconciliation().FlagAccount(t.Context(), models.ReconciliationIssue{
			AccountID: accountID,
			Reason:    models.ReasonProjectionDrift,
			Details:   json.RawMessage(`{"stored":"10","projected":"20"}`),
		})
		require.NoError(t, err)

		issues, err := storage.Reconciliation().ListOpenIssues(t.Context(), accountID)
		require.NoError(t, err)
		require.Len(t, issues, 2)
		require.Equal(t, models.ReasonReversalOverdraft, issues[0].Reason)
		require.JSONEq(t, `{"stored":"10","projected":"20"}`, string(issues[1].Details))

		none, err := storage.Reconciliation().ListOpenIssues(t.Context(), uuid.New())
		require.NoError(t, err)
		require.Empty(t, none)
	})
}

func TestReferral(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
		storage := NewStorage(tx)
		referrer, err := storage.Account().CreateAccount(t.Context(), models.Account{Username: "referrer", ReferralCode: "code-1"})
		require.NoError(t, err)

		for i, name := range []string{"first", "second"} {
			referred, err := storage.Account().CreateAccount(t.Context(), models.Account{Username: name, ReferralCode: "code-r" + name, ReferredBy: &referrer.ID})
			require.NoError(t, err)

			ref, err := storage.Referral().CreateReferral(t.Context(), referrer.ID, referred.ID)
			require.NoError(t, err)
			require.Equal(t, referrer.ID, ref.ReferrerID)
			require.Equal(t, referred.ID, ref.ReferredID)

			count, err := storage.Referral().CountReferrals(t.Context(), referrer.ID)
			require.NoError(t, err)
			require.Equal(t, i+1, count)
		}

		testutil.InTx(tx, t, func(tx pgx.Tx) {
			_, err := NewStorage(tx).Referral().CreateReferral(t.Context(), referrer.ID, uuid.New())
			require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
		})
	})
}
