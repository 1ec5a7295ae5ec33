// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package accounts

import (
	"context"
	"regexp"
	"time"

	"storj.io/common/uuid"
)

// Sites exposes methods to manage the sites table in the database.
//
// architecture: Database
type Sites interface {
	// Insert inserts a new site into the database.
	Insert(ctx context.Context, site *Site) (*Site, error)
	// Get queries a site from the database by id.
	Get(ctx context.Context, id uuid.UUID) (*Site, error)
	// GetByDomain queries a site by its globally unique domain.
	GetByDomain(ctx context.Context, domain string) (*Site, error)
	// List returns a page of sites, optionally filtered by owning account.
	List(ctx context.Context, accountID *uuid.UUID, cursor Cursor) (*SitesPage, error)
	// Update updates the mutable site fields.
	Update(ctx context.Context, id uuid.UUID, request UpdateSiteRequest) error
	// UpdateSecret replaces the site client secret.
	UpdateSecret(ctx context.Context, id uuid.UUID, secret string) error
	// Deactivate marks the site inactive.
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// Site is a data source belonging to exactly one account. The domain is the
// public identifier agents authenticate with; the account relationship is
// immutable.
type Site struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"accountId"`
	Domain       string    `json:"domain"`
	ClientSecret string    `json:"-"`
	DisplayName  string    `json:"displayName"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateSite holds the input for site creation. The client secret is always
// generated server-side, never user-supplied.
type CreateSite struct {
	AccountID   uuid.UUID `json:"accountId"`
	Domain      string    `json:"domain"`
	DisplayName string    `json:"displayName"`
}

var domainRx = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// IsValid checks CreateSite validity and returns an error of class
// ErrValidation describing what is wrong.
func (create *CreateSite) IsValid() error {
	if create.AccountID.IsZero() {
		return ErrValidation.New("account id is required")
	}
	if !domainRx.MatchString(create.Domain) {
		return ErrValidation.New("invalid domain")
	}
	return nil
}

// UpdateSiteRequest holds the updatable site fields. Nil fields are left
// unchanged.
type UpdateSiteRequest struct {
	DisplayName *string `json:"displayName"`
}

// SitesPage represents a page of sites.
type SitesPage struct {
	Sites []Site `json:"sites"`

	Limit       uint   `json:"limit"`
	Offset      uint64 `json:"offset"`
	PageCount   uint   `json:"pageCount"`
	CurrentPage uint   `json:"currentPage"`
	TotalCount  uint64 `json:"totalCount"`
}
