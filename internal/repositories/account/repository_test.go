package account_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/account"
	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, status, httperror.GetStatusCode(err))
}

func TestAccountRepository(t *testing.T) {
	db := testinfra.Postgres(t)
	repo := account.NewRepository(db, testinfra.Logger())
	ctx := context.Background()
	org := uuid.NewString()

	acme, err := repo.Create(ctx, &models.Account{OrganizationID: org, Name: "Acme, Inc.", Domain: ptr(" Acme.COM ")})
	require.NoError(t, err)
	require.NotEmpty(t, acme.ID)
	assert.Equal(t, "acme.com", *acme.Domain)
	assert.NotEmpty(t, acme.NormalizedName)

	t.Run("get is scoped to the organization", func(t *testing.T) {
		got, err := repo.Get(ctx, org, acme.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme, Inc.", got.Name)

		_, err = repo.Get(ctx, uuid.NewString(), acme.ID)
		assertStatus(t, err, http.StatusNotFound)

		_, err = repo.Get(ctx, org, "not-a-uuid")
		assertStatus(t, err, http.StatusNotFound)
	})

	t.Run("primary domain is unique per organization", func(t *testing.T) {
		_, err := repo.Create(ctx, &models.Account{OrganizationID: org, Name: "Acme Dup", Domain: ptr("acme.com")})
		assertStatus(t, err, http.StatusConflict)

		_, err = repo.Create(ctx, &models.Account{OrganizationID: uuid.NewString(), Name: "Acme Elsewhere", Domain: ptr("acme.com")})
		require.NoError(t, err)
	})

	t.Run("find by primary domains", func(t *testing.T) {
		found, err := repo.FindByPrimaryDomains(ctx, org, []string{"acme.com", "unknown.io"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, acme.ID, found[0].ID)

		found, err = repo.FindByPrimaryDomains(ctx, org, nil)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("upsert by CRM id keeps a stored domain", func(t *testing.T) {
		first, err := repo.UpsertByCRMID(ctx, &models.Account{
			OrganizationID: org,
			Name:           "Globex",
			Domain:         ptr("globex.com"),
			SalesforceID:   ptr("sf-1"),
		}, models.ProviderSalesforce)
		require.NoError(t, err)

		second, err := repo.UpsertByCRMID(ctx, &models.Account{
			OrganizationID: org,
			Name:           "Globex Corporation",
			SalesforceID:   ptr("sf-1"),
		}, models.ProviderSalesforce)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "Globex Corporation", second.Name)
		require.NotNil(t, second.Domain)
		assert.Equal(t, "globex.com", *second.Domain)

		byCRM, err := repo.GetByCRMID(ctx, org, models.ProviderSalesforce, "sf-1")
		require.NoError(t, err)
		assert.Equal(t, first.ID, byCRM.ID)

		_, err = repo.GetByCRMID(ctx, org, models.ProviderHubspot, "sf-1")
		assertStatus(t, err, http.StatusNotFound)
	})

	t.Run("CRM ids are unique per organization", func(t *testing.T) {
		other, err := repo.Create(ctx, &models.Account{OrganizationID: org, Name: "Initech"})
		require.NoError(t, err)

		err = repo.UpdateCRMIDs(ctx, org, other.ID, ptr("sf-1"), nil)
		assertStatus(t, err, http.StatusConflict)

		require.NoError(t, repo.UpdateCRMIDs(ctx, org, other.ID, ptr("sf-2"), ptr("hs-2")))
		got, err := repo.Get(ctx, org, other.ID)
		require.NoError(t, err)
		assert.Equal(t, "sf-2", *got.SalesforceID)
		assert.Equal(t, "hs-2", *got.HubspotID)
	})

	t.Run("a caller supplied id is kept", func(t *testing.T) {
		id := uuid.NewString()
		created, err := repo.Create(ctx, &models.Account{ID: id, OrganizationID: org, Name: "Restored"})
		require.NoError(t, err)
		assert.Equal(t, id, created.ID)
	})

	t.Run("delete", func(t *testing.T) {
		doomed, err := repo.Create(ctx, &models.Account{OrganizationID: org, Name: "Doomed"})
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, org, doomed.ID))
		assertStatus(t, repo.Delete(ctx, org, doomed.ID), http.StatusNotFound)
	})

	t.Run("writes inside a failed transaction are rolled back", func(t *testing.T) {
		boom := errors.New("boom")
		var id string
		err := db.RunInTx(ctx, func(ctx context.Context) error {
			created, err := repo.Create(ctx, &models.Account{OrganizationID: org, Name: "Ephemeral"})
			if err != nil {
				return err
			}
			id = created.ID
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = repo.Get(ctx, org, id)
		assertStatus(t, err, http.StatusNotFound)
	})

	t.Run("list is ordered by normalized name", func(t *testing.T) {
		accounts, err := repo.ListByOrganization(ctx, org)
		require.NoError(t, err)
		require.NotEmpty(t, accounts)
		for i := 1; i < len(accounts); i++ {
			assert.LessOrEqual(t, accounts[i-1].NormalizedName, accounts[i].NormalizedName)
		}
	})
}
