// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package batches implements the batch lifecycle engine: the state machine,
// the per-site uniqueness and per-account concurrency invariants, and the
// timeout reaper. A batch is a short-lived upload session owned by a site.
package batches

import (
	"context"
	"fmt"
	"time"

	"github.com/zeebo/errs"

	"storj.io/common/uuid"
)

var (
	// Error is the default batches error class.
	Error = errs.Class("batches")
	// ErrNotFound occurs when a referenced batch does not exist.
	ErrNotFound = errs.Class("batch not found")
	// ErrActiveBatchExists occurs when a site already has an IN_PROGRESS batch.
	ErrActiveBatchExists = errs.Class("active batch already exists")
	// ErrConcurrencyLimit occurs when an account is at its IN_PROGRESS cap.
	ErrConcurrencyLimit = errs.Class("concurrent batch limit exceeded")
	// ErrInvalidState occurs on a transition attempt from a terminal state.
	ErrInvalidState = errs.Class("batch is not in progress")
	// ErrOwnership occurs when a site operates on a batch it does not own.
	ErrOwnership = errs.Class("batch belongs to another site")
)

// Status is the lifecycle state of a batch.
type Status string

const (
	// StatusInProgress is the only non-terminal state.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusCompleted means the agent closed the batch normally.
	StatusCompleted Status = "COMPLETED"
	// StatusNotCompleted means the timeout reaper expired the batch.
	StatusNotCompleted Status = "NOT_COMPLETED"
	// StatusFailed means the agent reported the batch as failed.
	StatusFailed Status = "FAILED"
	// StatusCancelled means the agent cancelled the batch.
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status is absorbing.
func (status Status) Terminal() bool {
	return status != StatusInProgress
}

// Batch is a bounded upload session owned by a site.
type Batch struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"accountId"`
	SiteID    uuid.UUID `json:"siteId"`
	Status    Status    `json:"status"`

	// StoragePath is derived once at creation and used verbatim as the
	// object key prefix for every file in the batch.
	StoragePath string `json:"storagePath"`

	UploadedFilesCount int64 `json:"uploadedFilesCount"`
	TotalSize          int64 `json:"totalSize"`
	HasErrors          bool  `json:"hasErrors"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// CreateBatch holds the input for starting a batch.
type CreateBatch struct {
	SiteID    uuid.UUID
	AccountID uuid.UUID
	Domain    string

	// MaxPerAccount caps the IN_PROGRESS batches of the owning account,
	// checked under lock in the same transaction as the insert.
	MaxPerAccount int
}

// Cursor holds filters and pagination for batch listing.
type Cursor struct {
	SiteID *uuid.UUID
	Status *Status
	Limit  uint
	Page   uint
}

// Page represents a page of batches.
type Page struct {
	Batches []Batch `json:"batches"`

	Limit       uint   `json:"limit"`
	Offset      uint64 `json:"offset"`
	PageCount   uint   `json:"pageCount"`
	CurrentPage uint   `json:"currentPage"`
	TotalCount  uint64 `json:"totalCount"`
}

// DB exposes methods to manage the batches table in the database.
//
// architecture: Database
type DB interface {
	// Create starts a batch. In a single transaction it locks the owning
	// account, counts its IN_PROGRESS batches against the cap, and inserts
	// the new row. The partial unique index on (site_id) WHERE IN_PROGRESS
	// is the correctness backstop; a violation surfaces as
	// ErrActiveBatchExists, an exceeded cap as ErrConcurrencyLimit.
	Create(ctx context.Context, create CreateBatch, startedAt time.Time) (*Batch, error)
	// Get queries a batch by id.
	Get(ctx context.Context, id uuid.UUID) (*Batch, error)
	// Transition moves an IN_PROGRESS batch to a terminal status, setting
	// completed_at. It returns ErrInvalidState when the batch already
	// reached a terminal status and ErrNotFound when the row is absent.
	Transition(ctx context.Context, id uuid.UUID, to Status, completedAt time.Time, setHasErrors bool) (*Batch, error)
	// List returns a page of batches matching the cursor filters.
	List(ctx context.Context, cursor Cursor) (*Page, error)
	// ListExpired returns ids of IN_PROGRESS batches started before the
	// cutoff, for the reaper.
	ListExpired(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
	// SetHasErrors flips has_errors on the batch. The field is monotonic.
	SetHasErrors(ctx context.Context, id uuid.UUID) error
	// Delete removes the batch row and cascades to its uploaded file rows.
	// Blobs in the object store are left untouched.
	Delete(ctx context.Context, id uuid.UUID) error
}

// StoragePath derives the object key prefix for a batch:
// {accountID}/{domain}/{YYYY-MM-DD}/{HH-MM}/ relative to the batch start in
// UTC. The system never writes outside this prefix.
func StoragePath(accountID uuid.UUID, domain string, startedAt time.Time) string {
	start := startedAt.UTC()
	return fmt.Sprintf("%s/%s/%s/%s/",
		accountID.String(),
		domain,
		start.Format("2006-01-02"),
		start.Format("15-04"),
	)
}
