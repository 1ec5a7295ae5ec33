// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package errorlogs

import (
	"context"
	"io"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"storj.io/common/uuid"
	"storj.io/ingest/batches"
)

var mon = monkit.Package()

// Service records and serves error logs.
//
// architecture: Service
type Service struct {
	log     *zap.Logger
	store   DB
	batches batches.DB

	nowFn func() time.Time
}

// NewService returns a new error logs service.
func NewService(log *zap.Logger, store DB, batchesDB batches.DB) *Service {
	return &Service{
		log:     log,
		store:   store,
		batches: batchesDB,
		nowFn:   time.Now,
	}
}

// Record appends a site-level error.
func (s *Service) Record(ctx context.Context, siteID uuid.UUID, entry NewErrorLog) (record *ErrorLog, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.record(ctx, siteID, nil, entry)
}

// RecordForBatch appends a batch-associated error on behalf of the owning
// site and flips the batch has_errors flag. The flag update is best effort:
// if the batch row is gone the error is still recorded with its batch id.
func (s *Service) RecordForBatch(ctx context.Context, batchID, siteID uuid.UUID, entry NewErrorLog) (record *ErrorLog, err error) {
	defer mon.Task()(&ctx)(&err)

	batch, err := s.batches.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.SiteID != siteID {
		return nil, batches.ErrOwnership.New("")
	}

	record, err = s.record(ctx, siteID, &batchID, entry)
	if err != nil {
		return nil, err
	}

	if err := s.batches.SetHasErrors(ctx, batchID); err != nil {
		s.log.Warn("failed to mark batch as having errors",
			zap.Stringer("batchId", batchID), zap.Error(err))
	}
	return record, nil
}

func (s *Service) record(ctx context.Context, siteID uuid.UUID, batchID *uuid.UUID, entry NewErrorLog) (*ErrorLog, error) {
	if err := entry.IsValid(); err != nil {
		return nil, err
	}

	id, err := uuid.New()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.nowFn()
	}

	record, err := s.store.Insert(ctx, &ErrorLog{
		ID:            id,
		SiteID:        siteID,
		BatchID:       batchID,
		Type:          entry.Type,
		Title:         entry.Title,
		Message:       entry.Message,
		StackTrace:    entry.StackTrace,
		ClientVersion: entry.ClientVersion,
		Metadata:      entry.Metadata,
		OccurredAt:    occurredAt.UTC(),
	})
	if err != nil {
		return nil, err
	}

	mon.Counter("errors_recorded").Inc(1)
	return record, nil
}

// GetForSite returns an error log if the requesting site may see it: batch
// errors are visible to the batch owner, standalone errors only to the
// issuing site.
func (s *Service) GetForSite(ctx context.Context, id, siteID uuid.UUID) (record *ErrorLog, err error) {
	defer mon.Task()(&ctx)(&err)

	record, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.SiteID != siteID {
		return nil, ErrOwnership.New("")
	}
	return record, nil
}

// Get returns an error log without an ownership check, for admin callers.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (record *ErrorLog, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Get(ctx, id)
}

// List returns a page of error logs matching the cursor, for admin callers.
func (s *Service) List(ctx context.Context, cursor Cursor) (page *Page, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.List(ctx, cursor)
}

// ExportCSV streams error logs matching the cursor as CSV. The export is not
// paginated; callers pass a bounded date range.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, cursor Cursor) (err error) {
	defer mon.Task()(&ctx)(&err)

	logs, err := s.store.ListRange(ctx, cursor)
	if err != nil {
		return err
	}
	return WriteCSV(w, logs)
}

// TestSetNow overrides the clock, for tests.
func (s *Service) TestSetNow(nowFn func() time.Time) {
	s.nowFn = nowFn
}
