package mergerun_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/mergerun"
	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestMergeRunRepository(t *testing.T) {
	db := testinfra.Postgres(t)
	repo := mergerun.NewRepository(db, testinfra.Logger())
	ctx := context.Background()
	org := uuid.NewString()

	salesforceID := "sf-1"
	run, err := repo.Create(ctx, &models.MergeRun{
		OrganizationID:     org,
		PrimaryAccountID:   uuid.NewString(),
		SecondaryAccountID: uuid.NewString(),
		MovedCounts:        database.NewJSONB(models.MergeCounts{Calls: 3, Domains: 2}),
		Snapshot: database.NewJSONB(models.MergeSnapshot{
			SourceAccount: models.Account{Name: "Acme Old", SalesforceID: &salesforceID},
			MovedCallIDs:  []string{"c-1", "c-2", "c-3"},
			AdoptedCRMIDs: models.AdoptedCRMIDs{SalesforceID: &salesforceID},
		}),
		MergedBy: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MergeRunStatusCompleted, run.Status)

	t.Run("snapshot round-trips through jsonb", func(t *testing.T) {
		got, err := repo.Get(ctx, org, run.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.MovedCounts.Data.Calls)
		assert.Equal(t, 2, got.MovedCounts.Data.Domains)
		assert.Equal(t, []string{"c-1", "c-2", "c-3"}, got.Snapshot.Data.MovedCallIDs)
		require.NotNil(t, got.Snapshot.Data.AdoptedCRMIDs.SalesforceID)
		assert.Equal(t, "sf-1", *got.Snapshot.Data.AdoptedCRMIDs.SalesforceID)
		assert.Equal(t, "user-1", got.MergedBy)
	})

	t.Run("get is scoped to the organization", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.NewString(), run.ID)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("list newest first", func(t *testing.T) {
		later, err := repo.Create(ctx, &models.MergeRun{
			OrganizationID:     org,
			PrimaryAccountID:   uuid.NewString(),
			SecondaryAccountID: uuid.NewString(),
		})
		require.NoError(t, err)

		runs, err := repo.List(ctx, org, 10)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, later.ID, runs[0].ID)

		runs, err = repo.List(ctx, org, 1)
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})

	t.Run("a run is undone once", func(t *testing.T) {
		at := time.Now().UTC()
		require.NoError(t, repo.MarkUndone(ctx, run.ID, "user-2", at))

		got, err := repo.Get(ctx, org, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MergeRunStatusUndone, got.Status)
		require.NotNil(t, got.UndoneBy)
		assert.Equal(t, "user-2", *got.UndoneBy)

		err = repo.MarkUndone(ctx, run.ID, "user-2", at)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	})
}
