// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package ingest is the multi-tenant batch ingest satellite: remote agents
// at customer sites open short-lived batches, stream files into object
// storage, and report errors, all recorded against a relational control
// plane.
package ingest

import (
	"context"

	"storj.io/ingest/accounts"
	"storj.io/ingest/batches"
	"storj.io/ingest/errorlogs"
	"storj.io/ingest/uploads"
)

// DB is the master database for the ingest satellite.
//
// architecture: Master Database
type DB interface {
	// Accounts returns the accounts store.
	Accounts() accounts.Accounts
	// Sites returns the sites store.
	Sites() accounts.Sites
	// Batches returns the batches store.
	Batches() batches.DB
	// UploadedFiles returns the uploaded files store.
	UploadedFiles() uploads.DB
	// ErrorLogs returns the error logs store.
	ErrorLogs() errorlogs.DB

	// MigrateToLatest migrates the database schema to the latest version.
	MigrateToLatest(ctx context.Context) error
	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error
	// Close closes the database.
	Close() error
}
