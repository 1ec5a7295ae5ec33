// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package ingestdb implements the master database of the ingest satellite on
// PostgreSQL. The lifecycle invariants live in the schema and in the
// transactional steps here: the partial unique index on active batches, the
// filename uniqueness inside a batch, and the counter updates that ride the
// metadata commit.
package ingestdb

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/ingest"
	"storj.io/ingest/accounts"
	"storj.io/ingest/batches"
	"storj.io/ingest/errorlogs"
	"storj.io/ingest/uploads"
)

var (
	// Error is the default ingestdb error class.
	Error = errs.Class("ingestdb")

	mon = monkit.Package()
)

// Config holds the database connection configuration.
type Config struct {
	URL            string        `help:"postgres connection string" default:""`
	MaxConns       int32         `help:"maximum open connections in the pool" default:"25"`
	ConnectTimeout time.Duration `help:"timeout for establishing a connection" default:"10s"`
}

// DB is the postgres master database.
//
// architecture: Master Database
type DB struct {
	log  *zap.Logger
	pool *pgxpool.Pool

	accounts  *accountsDB
	sites     *sitesDB
	batches   *batchesDB
	files     *uploadedFilesDB
	errorlogs *errorLogsDB
}

var _ ingest.DB = (*DB)(nil)

// Open creates a connection pool to the master database.
func Open(ctx context.Context, log *zap.Logger, config Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = config.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	db := &DB{log: log, pool: pool}
	db.accounts = &accountsDB{db: db}
	db.sites = &sitesDB{db: db}
	db.batches = &batchesDB{db: db}
	db.files = &uploadedFilesDB{db: db}
	db.errorlogs = &errorLogsDB{db: db}
	return db, nil
}

// Accounts returns the accounts store.
func (db *DB) Accounts() accounts.Accounts { return db.accounts }

// Sites returns the sites store.
func (db *DB) Sites() accounts.Sites { return db.sites }

// Batches returns the batches store.
func (db *DB) Batches() batches.DB { return db.batches }

// UploadedFiles returns the uploaded files store.
func (db *DB) UploadedFiles() uploads.DB { return db.files }

// ErrorLogs returns the error logs store.
func (db *DB) ErrorLogs() errorlogs.DB { return db.errorlogs }

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return Error.Wrap(db.pool.Ping(ctx))
}

// Close closes the connection pool.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// withTx runs fn in a transaction, committing when it returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, ignoreDone(tx.Rollback(ctx)))
			return
		}
		err = Error.Wrap(tx.Commit(ctx))
	}()
	return fn(tx)
}

func ignoreDone(err error) error {
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// constraintViolated reports whether err is a unique violation of the named
// constraint or index.
func constraintViolated(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == constraint
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
