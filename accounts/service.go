// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package accounts implements the account and site aggregates: tenant
// bookkeeping, agent credentials, and the soft-delete cascade from an
// account to its sites.
package accounts

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/uuid"
)

var (
	// Error is the default accounts error class.
	Error = errs.Class("accounts")
	// ErrValidation occurs when a request carries malformed fields.
	ErrValidation = errs.Class("accounts validation")
	// ErrNotFound occurs when a referenced account or site does not exist.
	ErrNotFound = errs.Class("account not found")
	// ErrEmailTaken occurs when the account email is already in use.
	ErrEmailTaken = errs.Class("email already in use")
	// ErrDomainTaken occurs when the site domain is already in use.
	ErrDomainTaken = errs.Class("domain already in use")
	// ErrAuthentication occurs when agent credentials do not check out. The
	// message is intentionally the same for every cause.
	ErrAuthentication = errs.Class("authentication failed")

	mon = monkit.Package()
)

// clientSecretBytes is the entropy of a generated site secret.
const clientSecretBytes = 32

// DB contains the stores the accounts service needs.
//
// architecture: Database
type DB interface {
	// Accounts returns the accounts store.
	Accounts() Accounts
	// Sites returns the sites store.
	Sites() Sites
}

// Service handles account and site lifecycle.
//
// architecture: Service
type Service struct {
	log   *zap.Logger
	store DB
}

// NewService returns a new accounts service.
func NewService(log *zap.Logger, store DB) *Service {
	return &Service{log: log, store: store}
}

// CreateAccount creates a new active account.
func (s *Service) CreateAccount(ctx context.Context, create CreateAccount) (account *Account, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := create.IsValid(); err != nil {
		return nil, err
	}

	email := NormalizeEmail(create.Email)
	if existing, _ := s.store.Accounts().GetByEmail(ctx, email); existing != nil {
		return nil, ErrEmailTaken.New("%s", email)
	}

	id, err := uuid.New()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	account, err = s.store.Accounts().Insert(ctx, &Account{
		ID:     id,
		Email:  email,
		Name:   create.Name,
		Active: true,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("account created",
		zap.Stringer("id", account.ID),
		zap.String("email", account.Email))

	return account, nil
}

// GetAccount returns an account by id.
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (account *Account, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Accounts().Get(ctx, id)
}

// ListAccounts returns a page of accounts.
func (s *Service) ListAccounts(ctx context.Context, cursor Cursor) (page *AccountsPage, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Accounts().List(ctx, cursor)
}

// UpdateAccount updates the mutable account fields.
func (s *Service) UpdateAccount(ctx context.Context, id uuid.UUID, request UpdateAccountRequest) (account *Account, err error) {
	defer mon.Task()(&ctx)(&err)

	if request.Name != nil && *request.Name == "" {
		return nil, ErrValidation.New("name cannot be empty")
	}
	if err := s.store.Accounts().Update(ctx, id, request); err != nil {
		return nil, err
	}
	return s.store.Accounts().Get(ctx, id)
}

// DeactivateAccount soft-deletes an account. Every active site owned by the
// account is deactivated inside the same transaction, which blocks new agent
// authentication and new batches while letting in-progress batches run to
// completion or expiry.
func (s *Service) DeactivateAccount(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	sites, err := s.store.Accounts().Deactivate(ctx, id)
	if err != nil {
		return err
	}
	mon.Counter("accounts_deactivated").Inc(1)

	s.log.Info("account deactivated",
		zap.Stringer("accountId", id),
		zap.Int64("sitesDeactivated", sites))

	return nil
}

// CreateSite creates a new active site under an account and generates its
// client secret. The secret is returned exactly once, on the created site.
func (s *Service) CreateSite(ctx context.Context, create CreateSite) (site *Site, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := create.IsValid(); err != nil {
		return nil, err
	}

	account, err := s.store.Accounts().Get(ctx, create.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, ErrValidation.New("account is inactive")
	}

	if existing, _ := s.store.Sites().GetByDomain(ctx, create.Domain); existing != nil {
		return nil, ErrDomainTaken.New("%s", create.Domain)
	}

	id, err := uuid.New()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	secret, err := NewClientSecret()
	if err != nil {
		return nil, err
	}

	site, err = s.store.Sites().Insert(ctx, &Site{
		ID:           id,
		AccountID:    create.AccountID,
		Domain:       create.Domain,
		ClientSecret: secret,
		DisplayName:  create.DisplayName,
		Active:       true,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("site created",
		zap.Stringer("id", site.ID),
		zap.Stringer("accountId", site.AccountID),
		zap.String("domain", site.Domain))

	return site, nil
}

// GetSite returns a site by id.
func (s *Service) GetSite(ctx context.Context, id uuid.UUID) (site *Site, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Sites().Get(ctx, id)
}

// GetSiteByDomain returns a site by its domain.
func (s *Service) GetSiteByDomain(ctx context.Context, domain string) (site *Site, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Sites().GetByDomain(ctx, domain)
}

// ListSites returns a page of sites, optionally filtered by account.
func (s *Service) ListSites(ctx context.Context, accountID *uuid.UUID, cursor Cursor) (page *SitesPage, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Sites().List(ctx, accountID, cursor)
}

// UpdateSite updates the mutable site fields.
func (s *Service) UpdateSite(ctx context.Context, id uuid.UUID, request UpdateSiteRequest) (site *Site, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := s.store.Sites().Update(ctx, id, request); err != nil {
		return nil, err
	}
	return s.store.Sites().Get(ctx, id)
}

// DeactivateSite soft-deletes a site. Running batches are untouched.
func (s *Service) DeactivateSite(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := s.store.Sites().Deactivate(ctx, id); err != nil {
		return err
	}
	s.log.Info("site deactivated", zap.Stringer("siteId", id))
	return nil
}

// RotateSecret replaces the site client secret and returns the new one.
// Outstanding agent tokens stay valid until they expire.
func (s *Service) RotateSecret(ctx context.Context, id uuid.UUID) (secret string, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := s.store.Sites().Get(ctx, id); err != nil {
		return "", err
	}
	secret, err = NewClientSecret()
	if err != nil {
		return "", err
	}
	if err := s.store.Sites().UpdateSecret(ctx, id, secret); err != nil {
		return "", err
	}

	s.log.Info("site secret rotated", zap.Stringer("siteId", id))
	return secret, nil
}

// AuthenticateAgent checks domain:clientSecret credentials. The site and its
// owning account must both be active. Every failure returns the same
// ErrAuthentication class so callers cannot distinguish causes.
func (s *Service) AuthenticateAgent(ctx context.Context, domain, secret string) (site *Site, err error) {
	defer mon.Task()(&ctx)(&err)

	site, err = s.store.Sites().GetByDomain(ctx, domain)
	if err != nil {
		return nil, ErrAuthentication.New("invalid credentials")
	}
	if subtle.ConstantTimeCompare([]byte(site.ClientSecret), []byte(secret)) != 1 {
		return nil, ErrAuthentication.New("invalid credentials")
	}
	if !site.Active {
		return nil, ErrAuthentication.New("invalid credentials")
	}
	account, err := s.store.Accounts().Get(ctx, site.AccountID)
	if err != nil || !account.Active {
		return nil, ErrAuthentication.New("invalid credentials")
	}
	return site, nil
}

// NewClientSecret generates an opaque site secret.
func NewClientSecret() (string, error) {
	var buf [clientSecretBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", Error.Wrap(err)
	}
	return hex.EncodeToString(buf[:]), nil
}
