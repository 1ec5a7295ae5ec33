// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestdb

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"storj.io/common/uuid"
	"storj.io/ingest/batches"
)

// batchesDB implements batches.DB on postgres.
type batchesDB struct {
	db *DB
}

const batchColumns = `id, account_id, site_id, status, storage_path,
	uploaded_files_count, total_size, has_errors, started_at, completed_at, created_at`

func scanBatch(row pgx.Row) (*batches.Batch, error) {
	var batch batches.Batch
	err := row.Scan(&batch.ID, &batch.AccountID, &batch.SiteID, &batch.Status,
		&batch.StoragePath, &batch.UploadedFilesCount, &batch.TotalSize,
		&batch.HasErrors, &batch.StartedAt, &batch.CompletedAt, &batch.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, batches.ErrNotFound.New("batch")
		}
		return nil, Error.Wrap(err)
	}
	return &batch, nil
}

// Create starts a batch. The account row is locked first so concurrent starts
// across the account serialize on the cap check; the partial unique index on
// (site_id) WHERE IN_PROGRESS backstops the per-site invariant against any
// path that skips this method.
func (store *batchesDB) Create(ctx context.Context, create batches.CreateBatch, startedAt time.Time) (batch *batches.Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	id, err := uuid.New()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = store.db.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `SELECT 1 FROM accounts WHERE id = $1 FOR UPDATE`, create.AccountID)
		if err != nil {
			return Error.Wrap(err)
		}

		var active int
		err = tx.QueryRow(ctx, `
			SELECT count(*) FROM batches
			WHERE account_id = $1 AND status = 'IN_PROGRESS'`,
			create.AccountID).Scan(&active)
		if err != nil {
			return Error.Wrap(err)
		}
		if create.MaxPerAccount > 0 && active >= create.MaxPerAccount {
			return batches.ErrConcurrencyLimit.New("account has %d active batches", active)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO batches ( id, account_id, site_id, status, storage_path, started_at )
			VALUES ( $1, $2, $3, $4, $5, $6 )
			RETURNING `+batchColumns,
			id, create.AccountID, create.SiteID, batches.StatusInProgress,
			batches.StoragePath(create.AccountID, create.Domain, startedAt), startedAt)

		batch, err = scanBatch(row)
		if constraintViolated(err, "batches_one_active_per_site") {
			return batches.ErrActiveBatchExists.New("site %s", create.SiteID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (store *batchesDB) Get(ctx context.Context, id uuid.UUID) (_ *batches.Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	return scanBatch(store.db.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id = $1`, id))
}

// Transition moves an IN_PROGRESS batch to a terminal status. The status
// guard rides the UPDATE itself, so a lost race shows up as zero affected
// rows, never as a double transition.
func (store *batchesDB) Transition(ctx context.Context, id uuid.UUID, to batches.Status, completedAt time.Time, setHasErrors bool) (_ *batches.Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	row := store.db.pool.QueryRow(ctx, `
		UPDATE batches
		SET status = $2, completed_at = $3, has_errors = has_errors OR $4
		WHERE id = $1 AND status = 'IN_PROGRESS'
		RETURNING `+batchColumns,
		id, to, completedAt, setHasErrors)

	batch, err := scanBatch(row)
	if batches.ErrNotFound.Has(err) {
		// distinguish a missing row from a terminal one
		if _, getErr := store.Get(ctx, id); getErr == nil {
			return nil, batches.ErrInvalidState.New("batch is closed")
		}
		return nil, err
	}
	return batch, err
}

func (store *batchesDB) List(ctx context.Context, cursor batches.Cursor) (page *batches.Page, err error) {
	defer mon.Task()(&ctx)(&err)

	limit, offset, currentPage := pageBounds(cursor.Limit, cursor.Page)

	builder := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	where := squirrel.And{}
	if cursor.SiteID != nil {
		where = append(where, squirrel.Eq{"site_id": *cursor.SiteID})
	}
	if cursor.Status != nil {
		where = append(where, squirrel.Eq{"status": string(*cursor.Status)})
	}

	countQuery := builder.Select("count(*)").From("batches")
	if len(where) > 0 {
		countQuery = countQuery.Where(where)
	}
	query, args, err := countQuery.ToSql()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var total uint64
	if err := store.db.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return nil, Error.Wrap(err)
	}

	listQuery := builder.Select(batchColumns).From("batches").
		OrderBy("started_at DESC", "id").
		Limit(uint64(limit)).Offset(offset)
	if len(where) > 0 {
		listQuery = listQuery.Where(where)
	}
	query, args, err = listQuery.ToSql()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	rows, err := store.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	page = &batches.Page{
		Batches:     []batches.Batch{},
		Limit:       limit,
		Offset:      offset,
		PageCount:   pageCount(total, limit),
		CurrentPage: currentPage,
		TotalCount:  total,
	}
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		page.Batches = append(page.Batches, *batch)
	}
	return page, Error.Wrap(rows.Err())
}

func (store *batchesDB) ListExpired(ctx context.Context, before time.Time, limit int) (ids []uuid.UUID, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := store.db.pool.Query(ctx, `
		SELECT id FROM batches
		WHERE status = 'IN_PROGRESS' AND started_at < $1
		ORDER BY started_at
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, Error.Wrap(err)
		}
		ids = append(ids, id)
	}
	return ids, Error.Wrap(rows.Err())
}

func (store *batchesDB) SetHasErrors(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	tag, err := store.db.pool.Exec(ctx,
		`UPDATE batches SET has_errors = true WHERE id = $1`, id)
	if err != nil {
		return Error.Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return batches.ErrNotFound.New("batch")
	}
	return nil
}

// Delete removes the batch row; uploaded file rows go with it through the
// foreign key cascade. Blobs are never touched from here.
func (store *batchesDB) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	tag, err := store.db.pool.Exec(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return Error.Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return batches.ErrNotFound.New("batch")
	}
	return nil
}
