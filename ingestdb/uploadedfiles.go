// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestdb

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"storj.io/common/uuid"
	"storj.io/ingest/batches"
	"storj.io/ingest/uploads"
)

// uploadedFilesDB implements uploads.DB on postgres.
type uploadedFilesDB struct {
	db *DB
}

const fileColumns = `id, batch_id, original_file_name, storage_key, file_size,
	content_type, checksum, uploaded_at`

func scanFile(row pgx.Row) (*uploads.UploadedFile, error) {
	var file uploads.UploadedFile
	err := row.Scan(&file.ID, &file.BatchID, &file.OriginalFileName, &file.StorageKey,
		&file.FileSize, &file.ContentType, &file.Checksum, &file.UploadedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, uploads.ErrNotFound.New("uploaded file")
		}
		return nil, Error.Wrap(err)
	}
	return &file, nil
}

// Commit inserts the file row and bumps the batch counters in one
// transaction. The batch row is re-read under lock: a batch that left
// IN_PROGRESS between the blob put and this commit fails the insert, leaving
// the blob behind as an orphan and the metadata consistent.
func (store *uploadedFilesDB) Commit(ctx context.Context, commit uploads.CommitUpload, uploadedAt time.Time) (file *uploads.UploadedFile, err error) {
	defer mon.Task()(&ctx)(&err)

	id, err := uuid.New()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = store.db.withTx(ctx, func(tx pgx.Tx) error {
		var status batches.Status
		err := tx.QueryRow(ctx,
			`SELECT status FROM batches WHERE id = $1 FOR UPDATE`,
			commit.BatchID).Scan(&status)
		if err != nil {
			if isNoRows(err) {
				return batches.ErrNotFound.New("batch")
			}
			return Error.Wrap(err)
		}
		if status != batches.StatusInProgress {
			return batches.ErrInvalidState.New("status is %s", status)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO uploaded_files
				( id, batch_id, original_file_name, storage_key, file_size, content_type, checksum, uploaded_at )
			VALUES ( $1, $2, $3, $4, $5, $6, $7, $8 )
			RETURNING `+fileColumns,
			id, commit.BatchID, commit.OriginalFileName, commit.StorageKey,
			commit.FileSize, commit.ContentType, commit.Checksum, uploadedAt)

		file, err = scanFile(row)
		if constraintViolated(err, "uploaded_files_batch_name_key") {
			return uploads.ErrDuplicateFile.New("%s", commit.OriginalFileName)
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE batches
			SET uploaded_files_count = uploaded_files_count + 1,
			    total_size = total_size + $2
			WHERE id = $1`,
			commit.BatchID, commit.FileSize)
		return Error.Wrap(err)
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (store *uploadedFilesDB) Get(ctx context.Context, id uuid.UUID) (_ *uploads.UploadedFile, err error) {
	defer mon.Task()(&ctx)(&err)

	return scanFile(store.db.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM uploaded_files WHERE id = $1`, id))
}

func (store *uploadedFilesDB) Exists(ctx context.Context, batchID uuid.UUID, originalFileName string) (exists bool, err error) {
	defer mon.Task()(&ctx)(&err)

	err = store.db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM uploaded_files
			WHERE batch_id = $1 AND original_file_name = $2
		)`, batchID, originalFileName).Scan(&exists)
	return exists, Error.Wrap(err)
}

func (store *uploadedFilesDB) ListByBatch(ctx context.Context, batchID uuid.UUID) (files []uploads.UploadedFile, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := store.db.pool.Query(ctx, `
		SELECT `+fileColumns+` FROM uploaded_files
		WHERE batch_id = $1
		ORDER BY uploaded_at, id`, batchID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	files = []uploads.UploadedFile{}
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}
	return files, Error.Wrap(rows.Err())
}
