// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package errorlogs implements the append-only, time-partitioned error log
// store: partitioned appends, range queries, and CSV export. Records are
// immutable after insert.
package errorlogs

import (
	"context"
	"strings"
	"time"

	"github.com/zeebo/errs"

	"storj.io/common/uuid"
)

var (
	// Error is the default errorlogs error class.
	Error = errs.Class("errorlogs")
	// ErrValidation occurs when an error report is malformed.
	ErrValidation = errs.Class("errorlogs validation")
	// ErrNotFound occurs when a referenced error log does not exist.
	ErrNotFound = errs.Class("error log not found")
	// ErrOwnership occurs when a site reads an error it does not own.
	ErrOwnership = errs.Class("error log belongs to another site")
)

// ErrorLog is one reported error. The primary key is (id, occurredAt)
// because the table is range-partitioned by occurrence month.
type ErrorLog struct {
	ID     uuid.UUID `json:"id"`
	SiteID uuid.UUID `json:"siteId"`
	// BatchID is nil for site-level errors.
	BatchID *uuid.UUID `json:"batchId"`

	Type          string            `json:"type"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	StackTrace    string            `json:"stackTrace,omitempty"`
	ClientVersion string            `json:"clientVersion,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	OccurredAt time.Time `json:"occurredAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewErrorLog holds the input for recording an error.
type NewErrorLog struct {
	Type          string            `json:"type"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	StackTrace    string            `json:"stackTrace"`
	ClientVersion string            `json:"clientVersion"`
	Metadata      map[string]string `json:"metadata"`
	OccurredAt    time.Time         `json:"occurredAt"`
}

// IsValid checks NewErrorLog validity and returns an error of class
// ErrValidation describing what is wrong.
func (entry *NewErrorLog) IsValid() error {
	if strings.TrimSpace(entry.Type) == "" {
		return ErrValidation.New("type is required")
	}
	if strings.TrimSpace(entry.Message) == "" {
		return ErrValidation.New("message is required")
	}
	return nil
}

// Cursor holds filters and pagination for error log queries. The engine
// always applies the time bounds when the caller provides them, so the
// database can prune partitions.
type Cursor struct {
	SiteID *uuid.UUID
	Type   *string
	Since  *time.Time
	Until  *time.Time
	Limit  uint
	Page   uint
}

// Page represents a page of error logs.
type Page struct {
	Logs []ErrorLog `json:"logs"`

	Limit       uint   `json:"limit"`
	Offset      uint64 `json:"offset"`
	PageCount   uint   `json:"pageCount"`
	CurrentPage uint   `json:"currentPage"`
	TotalCount  uint64 `json:"totalCount"`
}

// DB exposes methods to manage the error_logs partitions in the database.
//
// architecture: Database
type DB interface {
	// Insert appends a record to its month partition.
	Insert(ctx context.Context, log *ErrorLog) (*ErrorLog, error)
	// Get queries an error log by id.
	Get(ctx context.Context, id uuid.UUID) (*ErrorLog, error)
	// List returns a page of error logs matching the cursor filters.
	List(ctx context.Context, cursor Cursor) (*Page, error)
	// ListRange returns all records in a bounded time range in occurrence
	// order, for export.
	ListRange(ctx context.Context, cursor Cursor) ([]ErrorLog, error)
	// EnsurePartition creates the partition covering the given month if it
	// does not exist yet.
	EnsurePartition(ctx context.Context, month time.Time) error
}

// PartitionName returns the partition holding records of the given month,
// error_logs_YYYY_MM.
func PartitionName(month time.Time) string {
	return "error_logs_" + month.UTC().Format("2006_01")
}
