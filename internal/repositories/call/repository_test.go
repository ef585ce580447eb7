package call_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/account"
	"github.com/Ramsey-B/fern/internal/repositories/call"
	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func TestCallRepository(t *testing.T) {
	db := testinfra.Postgres(t)
	logger := testinfra.Logger()
	accounts := account.NewRepository(db, logger)
	repo := call.NewRepository(db, logger)
	ctx := context.Background()
	org := uuid.NewString()
	occurred := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

	acme, err := accounts.Create(ctx, &models.Account{OrganizationID: org, Name: "Acme", Domain: ptr("acme.com")})
	require.NoError(t, err)

	upsert := func(externalID, title string, recordingID *string) *models.CallUpsert {
		t.Helper()
		res, err := repo.Upsert(ctx, &models.Call{
			OrganizationID: org,
			Provider:       models.ProviderGong,
			ExternalID:     externalID,
			RecordingID:    recordingID,
			Title:          title,
			OccurredAt:     occurred,
		})
		require.NoError(t, err)
		return res
	}

	first := upsert("g-1", "Acme discovery", nil)
	require.True(t, first.IsNew)
	assert.Equal(t, models.MatchMethodNone, first.Call.MatchMethod)

	t.Run("re-ingesting updates without touching the resolution", func(t *testing.T) {
		require.NoError(t, repo.UpdateResolution(ctx, org, first.Call.ID, &acme.ID, models.MatchMethodEmailDomain, 0.95))

		again := upsert("g-1", "Acme discovery (renamed)", nil)
		assert.False(t, again.IsNew)
		assert.Equal(t, first.Call.ID, again.Call.ID)
		assert.Equal(t, "Acme discovery (renamed)", again.Call.Title)
		assert.Equal(t, models.MatchMethodEmailDomain, again.Call.MatchMethod)
		require.NotNil(t, again.Call.AccountID)
		assert.Equal(t, acme.ID, *again.Call.AccountID)
	})

	t.Run("recording id matches across external ids", func(t *testing.T) {
		a := upsert("agg-1", "Weekly sync", ptr("rec-1"))
		b := upsert("agg-2", "Weekly sync v2", ptr("rec-1"))
		assert.True(t, a.IsNew)
		assert.False(t, b.IsNew)
		assert.Equal(t, a.Call.ID, b.Call.ID)
		assert.Equal(t, "Weekly sync v2", b.Call.Title)
	})

	t.Run("unknown call", func(t *testing.T) {
		err := repo.UpdateResolution(ctx, org, uuid.NewString(), nil, models.MatchMethodManual, 1)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))

		_, err = repo.Get(ctx, uuid.NewString(), first.Call.ID)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("review queue and stats", func(t *testing.T) {
		low := upsert("g-low", "Low confidence", nil)
		require.NoError(t, repo.UpdateResolution(ctx, org, low.Call.ID, &acme.ID, models.MatchMethodFuzzyName, 0.6))
		dismissed := upsert("g-dismissed", "Internal standup", nil)

		n, err := repo.Dismiss(ctx, org, []string{dismissed.Call.ID, uuid.NewString()}, time.Now().UTC())
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		calls, total, err := repo.ListReviewQueue(ctx, org, 0.7, models.ReviewListParams{SortBy: models.ReviewSortConfidence, SortOrder: models.SortAsc})
		require.NoError(t, err)
		// the unresolved recording call plus the low-confidence call
		assert.Equal(t, 2, total)
		require.Len(t, calls, 2)
		assert.Equal(t, models.MatchMethodNone, calls[0].MatchMethod)
		assert.Equal(t, low.Call.ID, calls[1].ID)

		calls, total, err = repo.ListReviewQueue(ctx, org, 0.7, models.ReviewListParams{Search: "LOW"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, calls, 1)

		// wildcards in the search text match literally
		for _, search := range []string{"%", "_", "Low_confidence", `\`} {
			_, total, err = repo.ListReviewQueue(ctx, org, 0.7, models.ReviewListParams{Search: search})
			require.NoError(t, err)
			assert.Zero(t, total, search)
		}

		stats, err := repo.ReviewStats(ctx, org, 0.7)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Queued)
		assert.Equal(t, 1, stats.Unmatched)
		assert.Equal(t, 1, stats.LowConfidence)
		assert.Equal(t, 1, stats.Dismissed)
		assert.Equal(t, 0, stats.ResolvedManually)
	})

	t.Run("move calls between accounts", func(t *testing.T) {
		other, err := accounts.Create(ctx, &models.Account{OrganizationID: org, Name: "Other"})
		require.NoError(t, err)

		ids, err := repo.ListIDsByAccount(ctx, org, acme.ID)
		require.NoError(t, err)
		require.NotEmpty(t, ids)

		require.NoError(t, repo.UpdateAccount(ctx, ids, other.ID))
		moved, err := repo.ListIDsByAccount(ctx, org, other.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, ids, moved)

		left, err := repo.ListIDsByAccount(ctx, org, acme.ID)
		require.NoError(t, err)
		assert.Empty(t, left)
	})
}
