// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package batches_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/common/uuid"
	"storj.io/ingest/batches"
	"storj.io/ingest/ingesttest"
)

func testConfig() batches.Config {
	return batches.Config{
		Timeout:          time.Hour,
		MaxPerAccount:    5,
		ReaperInterval:   5 * time.Minute,
		ReaperBatchLimit: 1000,
	}
}

func newService(t *testing.T) (*batches.Service, *ingesttest.DB) {
	db := ingesttest.NewDB()
	return batches.NewService(zaptest.NewLogger(t), db.Batches(), testConfig()), db
}

func TestStart(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, _ := newService(t)

	siteID, accountID := testrand.UUID(), testrand.UUID()
	batch, err := service.Start(ctx, siteID, accountID, "store-01.example.com")
	require.NoError(t, err)
	assert.Equal(t, batches.StatusInProgress, batch.Status)
	assert.Nil(t, batch.CompletedAt)
	assert.Zero(t, batch.UploadedFilesCount)

	prefix := accountID.String() + "/store-01.example.com/"
	assert.Contains(t, batch.StoragePath, prefix)
	assert.Equal(t, byte('/'), batch.StoragePath[len(batch.StoragePath)-1])
}

func TestStartSecondActiveBatchRejected(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, _ := newService(t)

	siteID, accountID := testrand.UUID(), testrand.UUID()
	_, err := service.Start(ctx, siteID, accountID, "store-01.example.com")
	require.NoError(t, err)

	_, err = service.Start(ctx, siteID, accountID, "store-01.example.com")
	assert.True(t, batches.ErrActiveBatchExists.Has(err))
}

func TestStartAccountConcurrencyCap(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, _ := newService(t)

	accountID := testrand.UUID()
	for i := 0; i < 5; i++ {
		_, err := service.Start(ctx, testrand.UUID(), accountID, fmt.Sprintf("store-%02d.example.com", i))
		require.NoError(t, err)
	}

	_, err := service.Start(ctx, testrand.UUID(), accountID, "store-99.example.com")
	assert.True(t, batches.ErrConcurrencyLimit.Has(err))

	// a different account is unaffected
	_, err = service.Start(ctx, testrand.UUID(), testrand.UUID(), "other.example.com")
	assert.NoError(t, err)
}

func TestTransitions(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	for _, tt := range []struct {
		name      string
		close     func(service *batches.Service, ctx context.Context, id, siteID uuid.UUID) (*batches.Batch, error)
		status    batches.Status
		hasErrors bool
	}{
		{"complete", (*batches.Service).Complete, batches.StatusCompleted, false},
		{"fail", (*batches.Service).Fail, batches.StatusFailed, true},
		{"cancel", (*batches.Service).Cancel, batches.StatusCancelled, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			service, _ := newService(t)
			siteID := testrand.UUID()
			batch, err := service.Start(ctx, siteID, testrand.UUID(), "store-01.example.com")
			require.NoError(t, err)

			closed, err := tt.close(service, ctx, batch.ID, siteID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, closed.Status)
			assert.NotNil(t, closed.CompletedAt)
			assert.Equal(t, tt.hasErrors, closed.HasErrors)

			// terminal states are absorbing
			_, err = service.Complete(ctx, batch.ID, siteID)
			assert.True(t, batches.ErrInvalidState.Has(err))
			_, err = service.Cancel(ctx, batch.ID, siteID)
			assert.True(t, batches.ErrInvalidState.Has(err))
		})
	}
}

func TestOwnership(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, _ := newService(t)

	owner := testrand.UUID()
	batch, err := service.Start(ctx, owner, testrand.UUID(), "store-01.example.com")
	require.NoError(t, err)

	other := testrand.UUID()
	_, err = service.GetForSite(ctx, batch.ID, other)
	assert.True(t, batches.ErrOwnership.Has(err), "ownership violation must not read as not-found")
	_, err = service.Complete(ctx, batch.ID, other)
	assert.True(t, batches.ErrOwnership.Has(err))

	got, err := service.GetForSite(ctx, batch.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, batch.ID, got.ID)

	_, err = service.GetForSite(ctx, testrand.UUID(), owner)
	assert.True(t, batches.ErrNotFound.Has(err))
}

func TestStartAfterClose(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, _ := newService(t)

	siteID, accountID := testrand.UUID(), testrand.UUID()
	batch, err := service.Start(ctx, siteID, accountID, "store-01.example.com")
	require.NoError(t, err)
	_, err = service.Complete(ctx, batch.ID, siteID)
	require.NoError(t, err)

	// closing the batch frees the per-site slot
	_, err = service.Start(ctx, siteID, accountID, "store-01.example.com")
	assert.NoError(t, err)
}

func TestDeleteCascades(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, db := newService(t)

	siteID := testrand.UUID()
	batch, err := service.Start(ctx, siteID, testrand.UUID(), "store-01.example.com")
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, batch.ID))
	_, err = service.Get(ctx, batch.ID)
	assert.True(t, batches.ErrNotFound.Has(err))

	files, err := db.UploadedFiles().ListByBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}
