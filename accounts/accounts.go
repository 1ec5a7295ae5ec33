// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package accounts

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"storj.io/common/uuid"
)

// Accounts exposes methods to manage the accounts table in the database.
//
// architecture: Database
type Accounts interface {
	// Insert inserts a new account into the database.
	Insert(ctx context.Context, account *Account) (*Account, error)
	// Get queries an account from the database by id.
	Get(ctx context.Context, id uuid.UUID) (*Account, error)
	// GetByEmail queries an account by email, case-insensitively.
	GetByEmail(ctx context.Context, email string) (*Account, error)
	// List returns a page of accounts ordered by creation time.
	List(ctx context.Context, cursor Cursor) (*AccountsPage, error)
	// Update updates the mutable account fields.
	Update(ctx context.Context, id uuid.UUID, request UpdateAccountRequest) error
	// Deactivate marks the account inactive and, in the same transaction,
	// deactivates every active site owned by it. It returns the number of
	// sites that were deactivated.
	Deactivate(ctx context.Context, id uuid.UUID) (sites int64, err error)
}

// Account is a tenant owning one or more sites. Accounts are soft-deleted
// only; destruction is forbidden at the domain level.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateAccount holds the input for account creation.
type CreateAccount struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// IsValid checks CreateAccount validity and returns an error of class
// ErrValidation describing what is wrong.
func (create *CreateAccount) IsValid() error {
	if _, err := mail.ParseAddress(create.Email); err != nil {
		return ErrValidation.New("invalid email address")
	}
	if strings.TrimSpace(create.Name) == "" {
		return ErrValidation.New("name is required")
	}
	return nil
}

// UpdateAccountRequest holds the updatable account fields. Nil fields are
// left unchanged.
type UpdateAccountRequest struct {
	Name *string `json:"name"`
}

// Cursor holds info for paged listing.
type Cursor struct {
	Limit uint `json:"limit"`
	Page  uint `json:"page"`
}

// AccountsPage represents a page of accounts.
type AccountsPage struct {
	Accounts []Account `json:"accounts"`

	Limit       uint   `json:"limit"`
	Offset      uint64 `json:"offset"`
	PageCount   uint   `json:"pageCount"`
	CurrentPage uint   `json:"currentPage"`
	TotalCount  uint64 `json:"totalCount"`
}

// NormalizeEmail lowercases an email address for case-insensitive lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
