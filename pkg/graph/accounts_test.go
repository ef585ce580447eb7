package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newProjection(t *testing.T) *AccountProjection {
	t.Helper()
	host, port := testinfra.Memgraph(t)

	client, err := NewClient(Config{Host: host, Port: port}, testinfra.Logger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.Eventually(t, func() bool {
		return client.VerifyConnectivity(ctx) == nil
	}, 30*time.Second, 500*time.Millisecond)

	return NewAccountProjection(client, testinfra.Logger())
}

func mergeRun(id, source, target string) *models.MergeRun {
	domain := source + ".com"
	return &models.MergeRun{
		ID:                 id,
		OrganizationID:     "org-1",
		PrimaryAccountID:   target,
		SecondaryAccountID: source,
		Status:             models.MergeRunStatusCompleted,
		Snapshot: database.NewJSONB(models.MergeSnapshot{
			SourceAccount: models.Account{ID: source, Name: source, Domain: &domain},
		}),
		MergedBy:  "user-1",
		CreatedAt: time.Now(),
	}
}

func TestAccountProjection_MergeAndUndo(t *testing.T) {
	p := newProjection(t)
	ctx := context.Background()

	require.NoError(t, p.AccountMerged(ctx, mergeRun("run-1", "acme-old", "acme"), &models.Account{ID: "acme", Name: "Acme"}))
	require.NoError(t, p.AccountMerged(ctx, mergeRun("run-2", "acme", "acme-global"), &models.Account{ID: "acme-global", Name: "Acme Global"}))

	into, err := p.MergedInto(ctx, "org-1", "acme-old")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"acme", "acme-global"}, into)

	// replaying a merge does not add a second edge
	require.NoError(t, p.AccountMerged(ctx, mergeRun("run-1", "acme-old", "acme"), &models.Account{ID: "acme", Name: "Acme"}))
	into, err = p.MergedInto(ctx, "org-1", "acme-old")
	require.NoError(t, err)
	assert.Len(t, into, 2)

	require.NoError(t, p.MergeUndone(ctx, mergeRun("run-2", "acme", "acme-global")))
	into, err = p.MergedInto(ctx, "org-1", "acme-old")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, into)

	into, err = p.MergedInto(ctx, "org-2", "acme-old")
	require.NoError(t, err)
	assert.Empty(t, into)
}
