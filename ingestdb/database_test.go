// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestdb_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/ingest"
	"storj.io/ingest/accounts"
	"storj.io/ingest/batches"
	"storj.io/ingest/errorlogs"
	"storj.io/ingest/ingestdb"
	"storj.io/ingest/uploads"
)

// openTestDB connects to the database named by INGEST_TEST_POSTGRES and
// migrates it. Tests are skipped when the flag is unset, the same way the
// in-memory suite always runs and the postgres suite runs in CI only.
func openTestDB(t *testing.T, ctx *testcontext.Context) ingest.DB {
	connstr := os.Getenv("INGEST_TEST_POSTGRES")
	if connstr == "" {
		t.Skip("postgres flag missing, example: INGEST_TEST_POSTGRES=postgres://postgres@localhost/ingest-test?sslmode=disable")
	}

	db, err := ingestdb.Open(ctx, zaptest.NewLogger(t), ingestdb.Config{URL: connstr})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	require.NoError(t, db.MigrateToLatest(ctx))
	return db
}

func TestPostgresBatchInvariants(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := openTestDB(t, ctx)

	account, err := db.Accounts().Insert(ctx, &accounts.Account{
		ID: testrand.UUID(), Email: "owner@example.com", Name: "Owner", Active: true,
	})
	require.NoError(t, err)
	site, err := db.Sites().Insert(ctx, &accounts.Site{
		ID: testrand.UUID(), AccountID: account.ID,
		Domain: "store-01.example.com", ClientSecret: "secret", Active: true,
	})
	require.NoError(t, err)

	create := batches.CreateBatch{
		SiteID: site.ID, AccountID: account.ID,
		Domain: site.Domain, MaxPerAccount: 5,
	}
	batch, err := db.Batches().Create(ctx, create, time.Now())
	require.NoError(t, err)
	assert.Equal(t, batches.StatusInProgress, batch.Status)

	// the partial unique index rejects a second active batch for the site
	_, err = db.Batches().Create(ctx, create, time.Now())
	assert.True(t, batches.ErrActiveBatchExists.Has(err))

	// commit a file and watch the counters move in the same transaction
	file, err := db.UploadedFiles().Commit(ctx, uploads.CommitUpload{
		BatchID:          batch.ID,
		OriginalFileName: "sales.csv",
		StorageKey:       batch.StoragePath + "sales.csv",
		FileSize:         17,
		Checksum:         "deadbeef",
	}, time.Now())
	require.NoError(t, err)

	_, err = db.UploadedFiles().Commit(ctx, uploads.CommitUpload{
		BatchID:          batch.ID,
		OriginalFileName: "sales.csv",
		StorageKey:       batch.StoragePath + "sales.csv",
		FileSize:         17,
		Checksum:         "deadbeef",
	}, time.Now())
	assert.True(t, uploads.ErrDuplicateFile.Has(err))

	got, err := db.Batches().Get(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UploadedFilesCount)
	assert.Equal(t, int64(17), got.TotalSize)

	// transitions guard on the current status inside the UPDATE
	_, err = db.Batches().Transition(ctx, batch.ID, batches.StatusCompleted, time.Now(), false)
	require.NoError(t, err)
	_, err = db.Batches().Transition(ctx, batch.ID, batches.StatusCancelled, time.Now(), false)
	assert.True(t, batches.ErrInvalidState.Has(err))

	// commits into a closed batch fail and leave no row
	_, err = db.UploadedFiles().Commit(ctx, uploads.CommitUpload{
		BatchID:          batch.ID,
		OriginalFileName: "late.csv",
		StorageKey:       batch.StoragePath + "late.csv",
		FileSize:         1,
		Checksum:         "00",
	}, time.Now())
	assert.True(t, batches.ErrInvalidState.Has(err))

	files, err := db.UploadedFiles().ListByBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, file.ID, files[0].ID)

	// deleting the batch cascades to the file rows
	require.NoError(t, db.Batches().Delete(ctx, batch.ID))
	files, err = db.UploadedFiles().ListByBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestPostgresErrorLogPartitions(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := openTestDB(t, ctx)

	month := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.ErrorLogs().EnsurePartition(ctx, month))
	require.NoError(t, db.ErrorLogs().EnsurePartition(ctx, month)) // idempotent

	siteID := testrand.UUID()
	record, err := db.ErrorLogs().Insert(ctx, &errorlogs.ErrorLog{
		ID:         testrand.UUID(),
		SiteID:     siteID,
		Type:       "DISK_FULL",
		Message:    "no space left",
		Metadata:   map[string]string{"path": "/var/spool"},
		OccurredAt: month.Add(36 * time.Hour),
	})
	require.NoError(t, err)

	got, err := db.ErrorLogs().Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "DISK_FULL", got.Type)
	assert.Equal(t, map[string]string{"path": "/var/spool"}, got.Metadata)

	since := month
	until := month.AddDate(0, 1, 0)
	logs, err := db.ErrorLogs().ListRange(ctx, errorlogs.Cursor{
		SiteID: &siteID, Since: &since, Until: &until,
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
}
