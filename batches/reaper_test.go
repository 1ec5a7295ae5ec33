// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package batches_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/ingest/batches"
	"storj.io/ingest/ingesttest"
)

func TestReaperExpiresStaleBatches(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := ingesttest.NewDB()
	service := batches.NewService(zaptest.NewLogger(t), db.Batches(), testConfig())
	reaper := batches.NewReaper(zaptest.NewLogger(t), db.Batches(), testConfig())

	// stale: started 65 minutes ago against a 60 minute timeout
	service.TestSetNow(func() time.Time { return time.Now().Add(-65 * time.Minute) })
	stale, err := service.Start(ctx, testrand.UUID(), testrand.UUID(), "stale.example.com")
	require.NoError(t, err)

	service.TestSetNow(time.Now)
	fresh, err := service.Start(ctx, testrand.UUID(), testrand.UUID(), "fresh.example.com")
	require.NoError(t, err)

	require.NoError(t, reaper.RunOnce(ctx))

	reaped, err := service.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, batches.StatusNotCompleted, reaped.Status)
	assert.NotNil(t, reaped.CompletedAt)
	assert.False(t, reaped.HasErrors)

	untouched, err := service.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, batches.StatusInProgress, untouched.Status)
}

func TestReaperIdempotent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := ingesttest.NewDB()
	service := batches.NewService(zaptest.NewLogger(t), db.Batches(), testConfig())
	reaper := batches.NewReaper(zaptest.NewLogger(t), db.Batches(), testConfig())

	service.TestSetNow(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	siteID := testrand.UUID()
	stale, err := service.Start(ctx, siteID, testrand.UUID(), "stale.example.com")
	require.NoError(t, err)

	// the batch races to a terminal state before the reaper gets to it
	service.TestSetNow(time.Now)
	_, err = service.Complete(ctx, stale.ID, siteID)
	require.NoError(t, err)

	require.NoError(t, reaper.RunOnce(ctx))
	require.NoError(t, reaper.RunOnce(ctx))

	got, err := service.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, batches.StatusCompleted, got.Status)
}
