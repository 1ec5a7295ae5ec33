// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package batches

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"storj.io/common/uuid"
)

var mon = monkit.Package()

// Config contains configurable values for the batch engine.
type Config struct {
	Timeout          time.Duration `help:"how long a batch may stay in progress before the reaper expires it" default:"60m"`
	MaxPerAccount    int           `help:"maximum concurrent in-progress batches per account" default:"5"`
	ReaperInterval   time.Duration `help:"the time between reaper runs" default:"5m"`
	ReaperBatchLimit int           `help:"maximum expired batches handled per reaper run" default:"1000"`
}

// Service drives the batch state machine.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	store  DB
	config Config

	nowFn func() time.Time
}

// NewService returns a new batches service.
func NewService(log *zap.Logger, store DB, config Config) *Service {
	return &Service{
		log:    log,
		store:  store,
		config: config,
		nowFn:  time.Now,
	}
}

// Start opens a new IN_PROGRESS batch for the principal site. The per-site
// uniqueness and the per-account cap are both enforced by the store inside a
// single transaction.
func (s *Service) Start(ctx context.Context, siteID, accountID uuid.UUID, domain string) (batch *Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	batch, err = s.store.Create(ctx, CreateBatch{
		SiteID:        siteID,
		AccountID:     accountID,
		Domain:        domain,
		MaxPerAccount: s.config.MaxPerAccount,
	}, s.nowFn().UTC())
	if err != nil {
		return nil, err
	}

	mon.Counter("batches_started").Inc(1)
	s.log.Info("batch started",
		zap.Stringer("batchId", batch.ID),
		zap.Stringer("siteId", siteID),
		zap.String("storagePath", batch.StoragePath))

	return batch, nil
}

// GetForSite returns a batch, enforcing that the requesting site owns it.
// Ownership violations are reported as ErrOwnership, never as not-found.
func (s *Service) GetForSite(ctx context.Context, id, siteID uuid.UUID) (batch *Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	batch, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch.SiteID != siteID {
		return nil, ErrOwnership.New("")
	}
	return batch, nil
}

// Get returns a batch without an ownership check, for admin callers.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (batch *Batch, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Get(ctx, id)
}

// Complete transitions an owned IN_PROGRESS batch to COMPLETED.
func (s *Service) Complete(ctx context.Context, id, siteID uuid.UUID) (*Batch, error) {
	return s.transitionForSite(ctx, id, siteID, StatusCompleted, false)
}

// Fail transitions an owned IN_PROGRESS batch to FAILED and marks it as
// having errors.
func (s *Service) Fail(ctx context.Context, id, siteID uuid.UUID) (*Batch, error) {
	return s.transitionForSite(ctx, id, siteID, StatusFailed, true)
}

// Cancel transitions an owned IN_PROGRESS batch to CANCELLED.
func (s *Service) Cancel(ctx context.Context, id, siteID uuid.UUID) (*Batch, error) {
	return s.transitionForSite(ctx, id, siteID, StatusCancelled, false)
}

func (s *Service) transitionForSite(ctx context.Context, id, siteID uuid.UUID, to Status, setHasErrors bool) (batch *Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	// ownership is re-derived from the batch row on every mutation
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.SiteID != siteID {
		return nil, ErrOwnership.New("")
	}

	batch, err = s.store.Transition(ctx, id, to, s.nowFn().UTC(), setHasErrors)
	if err != nil {
		return nil, err
	}

	mon.Counter("batches_closed", monkit.NewSeriesTag("status", string(to))).Inc(1)
	s.log.Info("batch closed",
		zap.Stringer("batchId", id),
		zap.String("status", string(to)))

	return batch, nil
}

// List returns a page of batches matching the cursor, for admin callers.
func (s *Service) List(ctx context.Context, cursor Cursor) (page *Page, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.List(ctx, cursor)
}

// Delete removes batch metadata, for admin callers. Uploaded file rows go
// with it; blobs do not — purging the object store is an explicit separate
// action that this system does not perform.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("batch metadata deleted", zap.Stringer("batchId", id))
	return nil
}

// TestSetNow overrides the clock, for tests.
func (s *Service) TestSetNow(nowFn func() time.Time) {
	s.nowFn = nowFn
}
