// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package accounts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/ingest/accounts"
	"storj.io/ingest/ingesttest"
)

func newService(t *testing.T) (*accounts.Service, *ingesttest.DB) {
	db := ingesttest.NewDB()
	return accounts.NewService(zaptest.NewLogger(t), db), db
}

func TestCreateAccount(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, _ := newService(t)

	account, err := service.CreateAccount(ctx, accounts.CreateAccount{
		Email: "A@X.com",
		Name:  "Acme",
	})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", account.Email)
	assert.True(t, account.Active)

	// email is unique, case-insensitively
	_, err = service.CreateAccount(ctx, accounts.CreateAccount{Email: "a@x.COM", Name: "Other"})
	assert.True(t, accounts.ErrEmailTaken.Has(err))

	_, err = service.CreateAccount(ctx, accounts.CreateAccount{Email: "not-an-email", Name: "x"})
	assert.True(t, accounts.ErrValidation.Has(err))
}

func TestCreateSite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, _ := newService(t)

	account, err := service.CreateAccount(ctx, accounts.CreateAccount{Email: "a@x.com", Name: "Acme"})
	require.NoError(t, err)

	site, err := service.CreateSite(ctx, accounts.CreateSite{
		AccountID:   account.ID,
		Domain:      "store-01.example.com",
		DisplayName: "Store 01",
	})
	require.NoError(t, err)
	assert.Len(t, site.ClientSecret, 64)
	assert.True(t, site.Active)

	_, err = service.CreateSite(ctx, accounts.CreateSite{AccountID: account.ID, Domain: "store-01.example.com"})
	assert.True(t, accounts.ErrDomainTaken.Has(err))

	_, err = service.CreateSite(ctx, accounts.CreateSite{AccountID: account.ID, Domain: "UPPER CASE"})
	assert.True(t, accounts.ErrValidation.Has(err))
}

func TestAuthenticateAgent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, _ := newService(t)

	account, err := service.CreateAccount(ctx, accounts.CreateAccount{Email: "a@x.com", Name: "Acme"})
	require.NoError(t, err)
	site, err := service.CreateSite(ctx, accounts.CreateSite{AccountID: account.ID, Domain: "store-01.example.com"})
	require.NoError(t, err)

	authed, err := service.AuthenticateAgent(ctx, site.Domain, site.ClientSecret)
	require.NoError(t, err)
	assert.Equal(t, site.ID, authed.ID)

	_, err = service.AuthenticateAgent(ctx, site.Domain, "wrong")
	assert.True(t, accounts.ErrAuthentication.Has(err))

	_, err = service.AuthenticateAgent(ctx, "unknown.example.com", site.ClientSecret)
	assert.True(t, accounts.ErrAuthentication.Has(err))
}

func TestDeactivateAccountCascades(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, _ := newService(t)

	account, err := service.CreateAccount(ctx, accounts.CreateAccount{Email: "a@x.com", Name: "Acme"})
	require.NoError(t, err)
	site, err := service.CreateSite(ctx, accounts.CreateSite{AccountID: account.ID, Domain: "store-01.example.com"})
	require.NoError(t, err)
	secret := site.ClientSecret

	require.NoError(t, service.DeactivateAccount(ctx, account.ID))

	got, err := service.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	gotSite, err := service.GetSite(ctx, site.ID)
	require.NoError(t, err)
	assert.False(t, gotSite.Active)

	// deactivated sites cannot authenticate even with the right secret
	_, err = service.AuthenticateAgent(ctx, site.Domain, secret)
	assert.True(t, accounts.ErrAuthentication.Has(err))

	// new sites cannot be added under a deactivated account
	_, err = service.CreateSite(ctx, accounts.CreateSite{AccountID: account.ID, Domain: "store-02.example.com"})
	assert.True(t, accounts.ErrValidation.Has(err))
}

func TestRotateSecret(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, _ := newService(t)

	account, err := service.CreateAccount(ctx, accounts.CreateAccount{Email: "a@x.com", Name: "Acme"})
	require.NoError(t, err)
	site, err := service.CreateSite(ctx, accounts.CreateSite{AccountID: account.ID, Domain: "store-01.example.com"})
	require.NoError(t, err)

	rotated, err := service.RotateSecret(ctx, site.ID)
	require.NoError(t, err)
	require.NotEqual(t, site.ClientSecret, rotated)

	_, err = service.AuthenticateAgent(ctx, site.Domain, site.ClientSecret)
	assert.True(t, accounts.ErrAuthentication.Has(err))
	_, err = service.AuthenticateAgent(ctx, site.Domain, rotated)
	assert.NoError(t, err)
}
