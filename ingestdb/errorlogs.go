// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestdb

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"storj.io/common/uuid"
	"storj.io/ingest/errorlogs"
)

// errorLogsDB implements errorlogs.DB on postgres.
type errorLogsDB struct {
	db *DB
}

const errorLogColumns = `id, site_id, batch_id, type, title, message,
	stack_trace, client_version, metadata, occurred_at, created_at`

func scanErrorLog(row pgx.Row) (*errorlogs.ErrorLog, error) {
	var record errorlogs.ErrorLog
	var batchID uuid.NullUUID
	err := row.Scan(&record.ID, &record.SiteID, &batchID, &record.Type,
		&record.Title, &record.Message, &record.StackTrace, &record.ClientVersion,
		&record.Metadata, &record.OccurredAt, &record.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, errorlogs.ErrNotFound.New("error log")
		}
		return nil, Error.Wrap(err)
	}
	if batchID.Valid {
		record.BatchID = &batchID.UUID
	}
	return &record, nil
}

func (store *errorLogsDB) Insert(ctx context.Context, record *errorlogs.ErrorLog) (_ *errorlogs.ErrorLog, err error) {
	defer mon.Task()(&ctx)(&err)

	var batchID uuid.NullUUID
	if record.BatchID != nil {
		batchID = uuid.NullUUID{UUID: *record.BatchID, Valid: true}
	}

	row := store.db.pool.QueryRow(ctx, `
		INSERT INTO error_logs
			( id, site_id, batch_id, type, title, message, stack_trace, client_version, metadata, occurred_at )
		VALUES ( $1, $2, $3, $4, $5, $6, $7, $8, $9, $10 )
		RETURNING `+errorLogColumns,
		record.ID, record.SiteID, batchID, record.Type, record.Title, record.Message,
		record.StackTrace, record.ClientVersion, record.Metadata, record.OccurredAt)

	return scanErrorLog(row)
}

func (store *errorLogsDB) Get(ctx context.Context, id uuid.UUID) (_ *errorlogs.ErrorLog, err error) {
	defer mon.Task()(&ctx)(&err)

	return scanErrorLog(store.db.pool.QueryRow(ctx,
		`SELECT `+errorLogColumns+` FROM error_logs WHERE id = $1`, id))
}

func (store *errorLogsDB) List(ctx context.Context, cursor errorlogs.Cursor) (page *errorlogs.Page, err error) {
	defer mon.Task()(&ctx)(&err)

	limit, offset, currentPage := pageBounds(cursor.Limit, cursor.Page)
	where := cursorFilter(cursor)
	builder := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	countQuery := builder.Select("count(*)").From("error_logs")
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

	listQuery := builder.Select(errorLogColumns).From("error_logs").
		OrderBy("occurred_at DESC", "id").
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

	page = &errorlogs.Page{
		Logs:        []errorlogs.ErrorLog{},
		Limit:       limit,
		Offset:      offset,
		PageCount:   pageCount(total, limit),
		CurrentPage: currentPage,
		TotalCount:  total,
	}
	for rows.Next() {
		record, err := scanErrorLog(rows)
		if err != nil {
			return nil, err
		}
		page.Logs = append(page.Logs, *record)
	}
	return page, Error.Wrap(rows.Err())
}

// ListRange returns matching records in occurrence order without pagination,
// for export. The time bounds let postgres prune whole partitions.
func (store *errorLogsDB) ListRange(ctx context.Context, cursor errorlogs.Cursor) (logs []errorlogs.ErrorLog, err error) {
	defer mon.Task()(&ctx)(&err)

	listQuery := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select(errorLogColumns).From("error_logs").
		OrderBy("occurred_at", "id")
	if where := cursorFilter(cursor); len(where) > 0 {
		listQuery = listQuery.Where(where)
	}
	query, args, err := listQuery.ToSql()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	rows, err := store.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	logs = []errorlogs.ErrorLog{}
	for rows.Next() {
		record, err := scanErrorLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *record)
	}
	return logs, Error.Wrap(rows.Err())
}

// EnsurePartition creates the month partition when it does not exist yet. The
// statement is idempotent, so the maintainer can run it on a cycle.
func (store *errorLogsDB) EnsurePartition(ctx context.Context, month time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	_, err = store.db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+errorlogs.PartitionName(month)+`
		PARTITION OF error_logs
		FOR VALUES FROM ('`+start.Format("2006-01-02")+`') TO ('`+end.Format("2006-01-02")+`')`)
	return Error.Wrap(err)
}

func cursorFilter(cursor errorlogs.Cursor) squirrel.And {
	where := squirrel.And{}
	if cursor.SiteID != nil {
		where = append(where, squirrel.Eq{"site_id": *cursor.SiteID})
	}
	if cursor.Type != nil {
		where = append(where, squirrel.Eq{"type": *cursor.Type})
	}
	if cursor.Since != nil {
		where = append(where, squirrel.GtOrEq{"occurred_at": *cursor.Since})
	}
	if cursor.Until != nil {
		where = append(where, squirrel.Lt{"occurred_at": *cursor.Until})
	}
	return where
}
