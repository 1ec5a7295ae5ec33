// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package errorlogs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/ingest/batches"
	"storj.io/ingest/errorlogs"
	"storj.io/ingest/ingesttest"
)

func newFixture(t *testing.T) (*errorlogs.Service, *batches.Service, *ingesttest.DB) {
	log := zaptest.NewLogger(t)
	db := ingesttest.NewDB()
	batchService := batches.NewService(log, db.Batches(), batches.Config{Timeout: time.Hour, MaxPerAccount: 5})
	return errorlogs.NewService(log, db.ErrorLogs(), db.Batches()), batchService, db
}

func TestRecordStandalone(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, _, _ := newFixture(t)

	siteID := testrand.UUID()
	record, err := service.Record(ctx, siteID, errorlogs.NewErrorLog{
		Type:    "UPLOAD_FAILURE",
		Message: "disk full",
		Metadata: map[string]string{
			"path": "/var/spool",
		},
	})
	require.NoError(t, err)
	assert.Nil(t, record.BatchID)
	assert.Equal(t, siteID, record.SiteID)
	assert.False(t, record.OccurredAt.IsZero())

	_, err = service.Record(ctx, siteID, errorlogs.NewErrorLog{Message: "missing type"})
	assert.True(t, errorlogs.ErrValidation.Has(err))
}

func TestRecordForBatchSetsHasErrors(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, batchService, _ := newFixture(t)

	siteID := testrand.UUID()
	batch, err := batchService.Start(ctx, siteID, testrand.UUID(), "store-01.example.com")
	require.NoError(t, err)
	assert.False(t, batch.HasErrors)

	record, err := service.RecordForBatch(ctx, batch.ID, siteID, errorlogs.NewErrorLog{
		Type: "PARSE_ERROR", Message: "bad row",
	})
	require.NoError(t, err)
	require.NotNil(t, record.BatchID)
	assert.Equal(t, batch.ID, *record.BatchID)

	got, err := batchService.Get(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, got.HasErrors)
}

func TestRecordForBatchOwnership(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, batchService, _ := newFixture(t)

	batch, err := batchService.Start(ctx, testrand.UUID(), testrand.UUID(), "store-01.example.com")
	require.NoError(t, err)

	_, err = service.RecordForBatch(ctx, batch.ID, testrand.UUID(), errorlogs.NewErrorLog{
		Type: "X", Message: "y",
	})
	assert.True(t, batches.ErrOwnership.Has(err))
}

func TestGetForSite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, _, _ := newFixture(t)

	siteID := testrand.UUID()
	record, err := service.Record(ctx, siteID, errorlogs.NewErrorLog{Type: "X", Message: "y"})
	require.NoError(t, err)

	got, err := service.GetForSite(ctx, record.ID, siteID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)

	// standalone errors are visible only to the issuing site
	_, err = service.GetForSite(ctx, record.ID, testrand.UUID())
	assert.True(t, errorlogs.ErrOwnership.Has(err))
}

func TestListTimeBounds(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service, _, _ := newFixture(t)

	siteID := testrand.UUID()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := service.Record(ctx, siteID, errorlogs.NewErrorLog{
			Type:       "X",
			Message:    "y",
			OccurredAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	since := base.Add(30 * time.Minute)
	until := base.Add(2 * time.Hour)
	page, err := service.List(ctx, errorlogs.Cursor{SiteID: &siteID, Since: &since, Until: &until})
	require.NoError(t, err)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, base.Add(time.Hour), page.Logs[0].OccurredAt)
}

func TestPartitionMaintainer(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	_, _, db := newFixture(t)

	maintainer := errorlogs.NewPartitionMaintainer(zaptest.NewLogger(t), db.ErrorLogs(), errorlogs.PartitionConfig{Interval: time.Hour})
	maintainer.TestSetNow(func() time.Time { return time.Date(2026, 12, 15, 3, 0, 0, 0, time.UTC) })

	require.NoError(t, maintainer.RunOnce(ctx))
	// the next month's partition is pre-created, across the year boundary
	assert.Equal(t, []string{"error_logs_2026_12", "error_logs_2027_01"}, db.Partitions())

	// re-running is idempotent
	require.NoError(t, maintainer.RunOnce(ctx))
	assert.Len(t, db.Partitions(), 2)
}
