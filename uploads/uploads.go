// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package uploads implements the three-phase ingest pipeline: validate and
// spool, put to the object store with bounded retry, then commit metadata.
// The blob store and the metadata store are not joined by a transaction; the
// pipeline is allowed to leak a blob on a crash between phases but never
// produces a metadata row without a blob behind it.
package uploads

import (
	"context"
	"time"

	"github.com/zeebo/errs"

	"storj.io/common/uuid"
)

var (
	// Error is the default uploads error class.
	Error = errs.Class("uploads")
	// ErrValidation occurs when an upload request is malformed.
	ErrValidation = errs.Class("upload validation")
	// ErrDuplicateFile occurs when the filename was already committed in the
	// batch. Failed uploads leave no row, so retrying a name is allowed.
	ErrDuplicateFile = errs.Class("filename already uploaded in batch")
	// ErrTooLarge occurs when a file exceeds the configured size cap.
	ErrTooLarge = errs.Class("file too large")
	// ErrStorage occurs when the object store put failed after retries.
	ErrStorage = errs.Class("object store failure")
	// ErrNotFound occurs when a referenced uploaded file does not exist.
	ErrNotFound = errs.Class("uploaded file not found")
)

// UploadedFile is the committed metadata of one ingested file.
type UploadedFile struct {
	ID      uuid.UUID `json:"id"`
	BatchID uuid.UUID `json:"batchId"`

	OriginalFileName string `json:"originalFileName"`
	// StorageKey is the batch storage path plus the original filename,
	// immutable once committed.
	StorageKey  string `json:"storageKey"`
	FileSize    int64  `json:"fileSize"`
	ContentType string `json:"contentType"`
	// Checksum is the hex SHA-256 digest computed while spooling the
	// request body; the store's own integrity check covers transport only.
	Checksum string `json:"checksum"`

	UploadedAt time.Time `json:"uploadedAt"`
}

// CommitUpload holds the metadata committed in Phase C.
type CommitUpload struct {
	BatchID          uuid.UUID
	OriginalFileName string
	StorageKey       string
	FileSize         int64
	ContentType      string
	Checksum         string
}

// DB exposes methods to manage the uploaded_files table in the database.
//
// architecture: Database
type DB interface {
	// Commit inserts the file row and bumps the batch counters in one
	// transaction. It re-reads the batch under lock: if the batch left
	// IN_PROGRESS between phases the commit fails with
	// batches.ErrInvalidState and the blob stays behind as an acceptable
	// orphan. A filename race inside the batch surfaces as
	// ErrDuplicateFile.
	Commit(ctx context.Context, commit CommitUpload, uploadedAt time.Time) (*UploadedFile, error)
	// Get queries an uploaded file by id.
	Get(ctx context.Context, id uuid.UUID) (*UploadedFile, error)
	// Exists reports whether a filename was already committed in a batch.
	Exists(ctx context.Context, batchID uuid.UUID, originalFileName string) (bool, error)
	// ListByBatch returns the committed files of a batch in commit order.
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]UploadedFile, error)
}
