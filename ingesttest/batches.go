// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingesttest

import (
	"context"
	"sort"
	"time"

	"storj.io/common/uuid"
	"storj.io/ingest/batches"
	"storj.io/ingest/errorlogs"
	"storj.io/ingest/uploads"
)

type batchesStore struct{ db *DB }

func (store *batchesStore) Create(ctx context.Context, create batches.CreateBatch, startedAt time.Time) (*batches.Batch, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	var accountActive int
	for _, row := range store.db.batchRows {
		if row.Status != batches.StatusInProgress {
			continue
		}
		if row.SiteID == create.SiteID {
			return nil, batches.ErrActiveBatchExists.New("site %s", create.SiteID)
		}
		if row.AccountID == create.AccountID {
			accountActive++
		}
	}
	if create.MaxPerAccount > 0 && accountActive >= create.MaxPerAccount {
		return nil, batches.ErrConcurrencyLimit.New("limit is %d", create.MaxPerAccount)
	}

	id, err := uuid.New()
	if err != nil {
		return nil, batches.Error.Wrap(err)
	}
	row := batches.Batch{
		ID:          id,
		AccountID:   create.AccountID,
		SiteID:      create.SiteID,
		Status:      batches.StatusInProgress,
		StoragePath: batches.StoragePath(create.AccountID, create.Domain, startedAt),
		StartedAt:   startedAt,
		CreatedAt:   time.Now().UTC(),
	}
	store.db.batchRows[id] = row
	copied := row
	return &copied, nil
}

func (store *batchesStore) Get(ctx context.Context, id uuid.UUID) (*batches.Batch, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()
	return store.getLocked(id)
}

func (store *batchesStore) getLocked(id uuid.UUID) (*batches.Batch, error) {
	row, ok := store.db.batchRows[id]
	if !ok {
		return nil, batches.ErrNotFound.New("batch %s", id)
	}
	copied := row
	return &copied, nil
}

func (store *batchesStore) Transition(ctx context.Context, id uuid.UUID, to batches.Status, completedAt time.Time, setHasErrors bool) (*batches.Batch, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	row, ok := store.db.batchRows[id]
	if !ok {
		return nil, batches.ErrNotFound.New("batch %s", id)
	}
	if row.Status != batches.StatusInProgress {
		return nil, batches.ErrInvalidState.New("status is %s", row.Status)
	}

	row.Status = to
	row.CompletedAt = &completedAt
	if setHasErrors {
		row.HasErrors = true
	}
	store.db.batchRows[id] = row
	copied := row
	return &copied, nil
}

func (store *batchesStore) List(ctx context.Context, cursor batches.Cursor) (*batches.Page, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	rows := make([]batches.Batch, 0, len(store.db.batchRows))
	for _, row := range store.db.batchRows {
		if cursor.SiteID != nil && row.SiteID != *cursor.SiteID {
			continue
		}
		if cursor.Status != nil && row.Status != *cursor.Status {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StartedAt.After(rows[j].StartedAt) })

	limit, offset, current := pageBounds(cursor.Limit, cursor.Page)
	return &batches.Page{
		Limit:       limit,
		Offset:      offset,
		CurrentPage: current,
		TotalCount:  uint64(len(rows)),
		PageCount:   pageCount(uint64(len(rows)), limit),
		Batches:     slicePage(rows, offset, limit),
	}, nil
}

func (store *batchesStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	var ids []uuid.UUID
	for id, row := range store.db.batchRows {
		if row.Status == batches.StatusInProgress && row.StartedAt.Before(before) {
			ids = append(ids, id)
			if limit > 0 && len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}

func (store *batchesStore) SetHasErrors(ctx context.Context, id uuid.UUID) error {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	row, ok := store.db.batchRows[id]
	if !ok {
		return batches.ErrNotFound.New("batch %s", id)
	}
	row.HasErrors = true
	store.db.batchRows[id] = row
	return nil
}

func (store *batchesStore) Delete(ctx context.Context, id uuid.UUID) error {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	if _, ok := store.db.batchRows[id]; !ok {
		return batches.ErrNotFound.New("batch %s", id)
	}
	delete(store.db.batchRows, id)

	// uploaded file rows cascade with the batch
	kept := store.db.fileOrder[:0]
	for _, fileID := range store.db.fileOrder {
		if store.db.fileRows[fileID].BatchID == id {
			delete(store.db.fileRows, fileID)
			continue
		}
		kept = append(kept, fileID)
	}
	store.db.fileOrder = kept
	return nil
}

type filesStore struct{ db *DB }

func (store *filesStore) Commit(ctx context.Context, commit uploads.CommitUpload, uploadedAt time.Time) (*uploads.UploadedFile, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	batch, ok := store.db.batchRows[commit.BatchID]
	if !ok {
		return nil, batches.ErrNotFound.New("batch %s", commit.BatchID)
	}
	if batch.Status != batches.StatusInProgress {
		return nil, batches.ErrInvalidState.New("status is %s", batch.Status)
	}
	for _, fileID := range store.db.fileOrder {
		row := store.db.fileRows[fileID]
		if row.BatchID == commit.BatchID && row.OriginalFileName == commit.OriginalFileName {
			return nil, uploads.ErrDuplicateFile.New("%s", commit.OriginalFileName)
		}
	}

	id, err := uuid.New()
	if err != nil {
		return nil, uploads.Error.Wrap(err)
	}
	row := uploads.UploadedFile{
		ID:               id,
		BatchID:          commit.BatchID,
		OriginalFileName: commit.OriginalFileName,
		StorageKey:       commit.StorageKey,
		FileSize:         commit.FileSize,
		ContentType:      commit.ContentType,
		Checksum:         commit.Checksum,
		UploadedAt:       uploadedAt,
	}
	store.db.fileRows[id] = row
	store.db.fileOrder = append(store.db.fileOrder, id)

	batch.UploadedFilesCount++
	batch.TotalSize += commit.FileSize
	store.db.batchRows[commit.BatchID] = batch

	copied := row
	return &copied, nil
}

func (store *filesStore) Get(ctx context.Context, id uuid.UUID) (*uploads.UploadedFile, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	row, ok := store.db.fileRows[id]
	if !ok {
		return nil, uploads.ErrNotFound.New("file %s", id)
	}
	copied := row
	return &copied, nil
}

func (store *filesStore) Exists(ctx context.Context, batchID uuid.UUID, originalFileName string) (bool, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	for _, fileID := range store.db.fileOrder {
		row := store.db.fileRows[fileID]
		if row.BatchID == batchID && row.OriginalFileName == originalFileName {
			return true, nil
		}
	}
	return false, nil
}

func (store *filesStore) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]uploads.UploadedFile, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	var rows []uploads.UploadedFile
	for _, fileID := range store.db.fileOrder {
		row := store.db.fileRows[fileID]
		if row.BatchID == batchID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

type logsStore struct{ db *DB }

func (store *logsStore) Insert(ctx context.Context, record *errorlogs.ErrorLog) (*errorlogs.ErrorLog, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	row := *record
	row.CreatedAt = time.Now().UTC()
	store.db.logRows[row.ID] = row
	store.db.logOrder = append(store.db.logOrder, row.ID)
	copied := row
	return &copied, nil
}

func (store *logsStore) Get(ctx context.Context, id uuid.UUID) (*errorlogs.ErrorLog, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	row, ok := store.db.logRows[id]
	if !ok {
		return nil, errorlogs.ErrNotFound.New("error log %s", id)
	}
	copied := row
	return &copied, nil
}

func (store *logsStore) matchLocked(cursor errorlogs.Cursor) []errorlogs.ErrorLog {
	var rows []errorlogs.ErrorLog
	for _, id := range store.db.logOrder {
		row := store.db.logRows[id]
		if cursor.SiteID != nil && row.SiteID != *cursor.SiteID {
			continue
		}
		if cursor.Type != nil && row.Type != *cursor.Type {
			continue
		}
		if cursor.Since != nil && row.OccurredAt.Before(*cursor.Since) {
			continue
		}
		if cursor.Until != nil && !row.OccurredAt.Before(*cursor.Until) {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].OccurredAt.Before(rows[j].OccurredAt) })
	return rows
}

func (store *logsStore) List(ctx context.Context, cursor errorlogs.Cursor) (*errorlogs.Page, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	rows := store.matchLocked(cursor)
	limit, offset, current := pageBounds(cursor.Limit, cursor.Page)
	return &errorlogs.Page{
		Limit:       limit,
		Offset:      offset,
		CurrentPage: current,
		TotalCount:  uint64(len(rows)),
		PageCount:   pageCount(uint64(len(rows)), limit),
		Logs:        slicePage(rows, offset, limit),
	}, nil
}

func (store *logsStore) ListRange(ctx context.Context, cursor errorlogs.Cursor) ([]errorlogs.ErrorLog, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()
	return store.matchLocked(cursor), nil
}

func (store *logsStore) EnsurePartition(ctx context.Context, month time.Time) error {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()
	store.db.partitions[errorlogs.PartitionName(month)] = true
	return nil
}
