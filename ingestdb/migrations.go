// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestdb

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// migration is one schema version step. Steps run inside a transaction in
// version order and are recorded in schema_versions.
type migration struct {
	Version     int
	Description string
	Statements  []string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "accounts and sites",
		Statements: []string{
			`CREATE TABLE accounts (
				id UUID PRIMARY KEY,
				email TEXT NOT NULL,
				name TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE UNIQUE INDEX accounts_email_key ON accounts ( lower(email) )`,
			`CREATE TABLE sites (
				id UUID PRIMARY KEY,
				account_id UUID NOT NULL REFERENCES accounts ( id ),
				domain TEXT NOT NULL,
				client_secret TEXT NOT NULL,
				display_name TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE UNIQUE INDEX sites_domain_key ON sites ( domain )`,
			`CREATE INDEX sites_account_id_index ON sites ( account_id )`,
		},
	},
	{
		Version:     2,
		Description: "batches",
		Statements: []string{
			`CREATE TABLE batches (
				id UUID PRIMARY KEY,
				account_id UUID NOT NULL REFERENCES accounts ( id ),
				site_id UUID NOT NULL REFERENCES sites ( id ),
				status TEXT NOT NULL,
				storage_path TEXT NOT NULL,
				uploaded_files_count BIGINT NOT NULL DEFAULT 0,
				total_size BIGINT NOT NULL DEFAULT 0,
				has_errors BOOLEAN NOT NULL DEFAULT false,
				started_at TIMESTAMPTZ NOT NULL,
				completed_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				CONSTRAINT batches_status_check CHECK (
					status IN ('IN_PROGRESS', 'COMPLETED', 'NOT_COMPLETED', 'FAILED', 'CANCELLED')
				)
			)`,
			// the correctness backstop for one active batch per site
			`CREATE UNIQUE INDEX batches_one_active_per_site
				ON batches ( site_id ) WHERE status = 'IN_PROGRESS'`,
			`CREATE INDEX batches_account_status_index ON batches ( account_id, status )`,
			`CREATE INDEX batches_started_at_index ON batches ( started_at ) WHERE status = 'IN_PROGRESS'`,
		},
	},
	{
		Version:     3,
		Description: "uploaded files",
		Statements: []string{
			`CREATE TABLE uploaded_files (
				id UUID PRIMARY KEY,
				batch_id UUID NOT NULL REFERENCES batches ( id ) ON DELETE CASCADE,
				original_file_name TEXT NOT NULL,
				storage_key TEXT NOT NULL,
				file_size BIGINT NOT NULL,
				content_type TEXT NOT NULL DEFAULT '',
				checksum TEXT NOT NULL,
				uploaded_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE UNIQUE INDEX uploaded_files_batch_name_key
				ON uploaded_files ( batch_id, original_file_name )`,
		},
	},
	{
		Version:     4,
		Description: "partitioned error logs",
		Statements: []string{
			`CREATE TABLE error_logs (
				id UUID NOT NULL,
				site_id UUID NOT NULL,
				batch_id UUID,
				type TEXT NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				message TEXT NOT NULL,
				stack_trace TEXT NOT NULL DEFAULT '',
				client_version TEXT NOT NULL DEFAULT '',
				metadata JSONB,
				occurred_at TIMESTAMPTZ NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY ( id, occurred_at )
			) PARTITION BY RANGE ( occurred_at )`,
			`CREATE INDEX error_logs_site_occurred_index ON error_logs ( site_id, occurred_at )`,
		},
	},
}

// MigrateToLatest migrates the database schema to the latest version and
// makes sure the current error log partitions exist.
func (db *DB) MigrateToLatest(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_versions (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return Error.Wrap(err)
	}

	for _, step := range migrations {
		err := db.withTx(ctx, func(tx pgx.Tx) error {
			var applied bool
			err := tx.QueryRow(ctx,
				`SELECT EXISTS ( SELECT 1 FROM schema_versions WHERE version = $1 )`,
				step.Version).Scan(&applied)
			if err != nil {
				return Error.Wrap(err)
			}
			if applied {
				return nil
			}

			for _, statement := range step.Statements {
				if _, err := tx.Exec(ctx, statement); err != nil {
					return Error.New("migration v%d failed: %w", step.Version, err)
				}
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO schema_versions ( version, description ) VALUES ( $1, $2 )`,
				step.Version, step.Description)
			if err != nil {
				return Error.Wrap(err)
			}

			db.log.Info("applied migration",
				zap.Int("version", step.Version),
				zap.String("description", step.Description))
			return nil
		})
		if err != nil {
			return err
		}
	}

	// error_logs needs a partition before the first insert of the month
	now := time.Now().UTC()
	for _, month := range []time.Time{now, now.AddDate(0, 1, 0)} {
		if err := db.errorlogs.EnsurePartition(ctx, month); err != nil {
			return err
		}
	}
	return nil
}
