// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package batches

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storj.io/common/sync2"
)

// Reaper expires batches that stayed IN_PROGRESS past the configured
// timeout, transitioning each to NOT_COMPLETED in its own transaction so a
// slow run never holds a long lock. Reaping is idempotent: a batch that
// raced to a terminal state is skipped.
//
// architecture: Chore
type Reaper struct {
	log    *zap.Logger
	store  DB
	config Config

	Loop *sync2.Cycle

	nowFn func() time.Time
}

// NewReaper creates a new batch timeout reaper.
func NewReaper(log *zap.Logger, store DB, config Config) *Reaper {
	return &Reaper{
		log:    log,
		store:  store,
		config: config,
		Loop:   sync2.NewCycle(config.ReaperInterval),
		nowFn:  time.Now,
	}
}

// Run starts the reaper loop.
func (reaper *Reaper) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return reaper.Loop.Run(ctx, func(ctx context.Context) error {
		if err := reaper.RunOnce(ctx); err != nil {
			reaper.log.Error("reaper run failed", zap.Error(err))
		}
		return nil
	})
}

// RunOnce performs a single reap pass.
func (reaper *Reaper) RunOnce(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	now := reaper.nowFn().UTC()
	cutoff := now.Add(-reaper.config.Timeout)

	expired, err := reaper.store.ListExpired(ctx, cutoff, reaper.config.ReaperBatchLimit)
	if err != nil {
		return Error.Wrap(err)
	}

	var reaped int64
	for _, id := range expired {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := reaper.store.Transition(ctx, id, StatusNotCompleted, reaper.nowFn().UTC(), false)
		if err != nil {
			// already terminal or deleted, nothing to do
			if ErrInvalidState.Has(err) || ErrNotFound.Has(err) {
				continue
			}
			reaper.log.Error("failed to expire batch",
				zap.Stringer("batchId", id), zap.Error(err))
			continue
		}
		reaped++
	}

	mon.Counter("batches_reaped").Inc(reaped)
	if reaped > 0 {
		reaper.log.Info("expired stale batches",
			zap.Int64("count", reaped),
			zap.Time("cutoff", cutoff))
	}
	return nil
}

// Close stops the reaper loop.
func (reaper *Reaper) Close() error {
	reaper.Loop.Close()
	return nil
}

// TestSetNow overrides the clock, for tests.
func (reaper *Reaper) TestSetNow(nowFn func() time.Time) {
	reaper.nowFn = nowFn
}
