// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package errorlogs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storj.io/common/sync2"
)

// PartitionConfig contains configurable values for partition maintenance.
type PartitionConfig struct {
	Interval time.Duration `help:"the time between partition maintenance runs" default:"1h"`
}

// PartitionMaintainer keeps the current and next month error log partitions
// in place. Writes always target the current month, which must exist before
// midnight on the first; ensuring both months every run makes the chore
// idempotent and covers a process that was down over a month boundary.
//
// architecture: Chore
type PartitionMaintainer struct {
	log   *zap.Logger
	store DB

	Loop *sync2.Cycle

	nowFn func() time.Time
}

// NewPartitionMaintainer creates a new partition maintainer.
func NewPartitionMaintainer(log *zap.Logger, store DB, config PartitionConfig) *PartitionMaintainer {
	return &PartitionMaintainer{
		log:   log,
		store: store,
		Loop:  sync2.NewCycle(config.Interval),
		nowFn: time.Now,
	}
}

// Run starts the maintainer loop. The first tick runs immediately, so boot
// guarantees the current partition exists before any write.
func (maintainer *PartitionMaintainer) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return maintainer.Loop.Run(ctx, func(ctx context.Context) error {
		if err := maintainer.RunOnce(ctx); err != nil {
			maintainer.log.Error("partition maintenance failed", zap.Error(err))
		}
		return nil
	})
}

// RunOnce ensures the partitions for the current and the next month.
func (maintainer *PartitionMaintainer) RunOnce(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	now := maintainer.nowFn().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	next := current.AddDate(0, 1, 0)

	for _, month := range []time.Time{current, next} {
		if err := maintainer.store.EnsurePartition(ctx, month); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// Close stops the maintainer loop.
func (maintainer *PartitionMaintainer) Close() error {
	maintainer.Loop.Close()
	return nil
}

// TestSetNow overrides the clock, for tests.
func (maintainer *PartitionMaintainer) TestSetNow(nowFn func() time.Time) {
	maintainer.nowFn = nowFn
}
