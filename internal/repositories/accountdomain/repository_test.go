package accountdomain_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/account"
	"github.com/Ramsey-B/fern/internal/repositories/accountdomain"
	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestAccountDomainRepository(t *testing.T) {
	db := testinfra.Postgres(t)
	logger := testinfra.Logger()
	accounts := account.NewRepository(db, logger)
	repo := accountdomain.NewRepository(db, logger)
	ctx := context.Background()
	org := uuid.NewString()

	primary := "acme.com"
	acme, err := accounts.Create(ctx, &models.Account{OrganizationID: org, Name: "Acme", Domain: &primary})
	require.NoError(t, err)

	alias, err := repo.Create(ctx, &models.AccountDomain{OrganizationID: org, AccountID: acme.ID, Domain: " AcmeOld.IO "})
	require.NoError(t, err)
	assert.Equal(t, "acmeold.io", alias.Domain)

	t.Run("an alias is claimed once per organization", func(t *testing.T) {
		_, err := repo.Create(ctx, &models.AccountDomain{OrganizationID: org, AccountID: acme.ID, Domain: "acmeold.io"})
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	})

	t.Run("claims cover primary domains and aliases", func(t *testing.T) {
		for domain, want := range map[string]bool{
			"acme.com":    true,
			"ACMEOLD.io":  true,
			"unknown.com": false,
		} {
			claimed, err := repo.IsClaimed(ctx, org, domain)
			require.NoError(t, err)
			assert.Equal(t, want, claimed, domain)
		}

		claimed, err := repo.IsClaimed(ctx, uuid.NewString(), "acme.com")
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("find and list", func(t *testing.T) {
		found, err := repo.FindByDomains(ctx, org, []string{"acmeold.io", "acme.com"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, acme.ID, found[0].AccountID)

		listed, err := repo.ListByAccount(ctx, org, acme.ID)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, alias.ID, listed[0].ID)
	})

	t.Run("delete by ids", func(t *testing.T) {
		require.NoError(t, repo.DeleteByIDs(ctx, nil))
		require.NoError(t, repo.DeleteByIDs(ctx, []string{alias.ID}))

		claimed, err := repo.IsClaimed(ctx, org, "acmeold.io")
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("aliases go with their account", func(t *testing.T) {
		gone, err := accounts.Create(ctx, &models.Account{OrganizationID: org, Name: "Gone"})
		require.NoError(t, err)
		_, err = repo.Create(ctx, &models.AccountDomain{OrganizationID: org, AccountID: gone.ID, Domain: "gone.io"})
		require.NoError(t, err)

		require.NoError(t, accounts.Delete(ctx, org, gone.ID))
		listed, err := repo.ListByAccount(ctx, org, gone.ID)
		require.NoError(t, err)
		assert.Empty(t, listed)
	})
}
