// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package ingesttest provides in-memory implementations of the database
// stores and the object store for unit tests. The fakes enforce the same
// invariants the schema does: the per-site active batch uniqueness, the
// per-account cap, the per-batch filename uniqueness, and the terminal-state
// guard on batch transitions.
package ingesttest

import (
	"context"
	"sort"
	"sync"
	"time"

	"storj.io/common/uuid"
	"storj.io/ingest/accounts"
	"storj.io/ingest/batches"
	"storj.io/ingest/errorlogs"
	"storj.io/ingest/uploads"
)

// DB is an in-memory database holding every store.
type DB struct {
	mu sync.Mutex

	accountRows map[uuid.UUID]accounts.Account
	siteRows    map[uuid.UUID]accounts.Site
	batchRows   map[uuid.UUID]batches.Batch
	fileRows    map[uuid.UUID]uploads.UploadedFile
	fileOrder   []uuid.UUID
	logRows     map[uuid.UUID]errorlogs.ErrorLog
	logOrder    []uuid.UUID
	partitions  map[string]bool
}

// NewDB creates an empty in-memory database.
func NewDB() *DB {
	return &DB{
		accountRows: map[uuid.UUID]accounts.Account{},
		siteRows:    map[uuid.UUID]accounts.Site{},
		batchRows:   map[uuid.UUID]batches.Batch{},
		fileRows:    map[uuid.UUID]uploads.UploadedFile{},
		logRows:     map[uuid.UUID]errorlogs.ErrorLog{},
		partitions:  map[string]bool{},
	}
}

// Accounts returns the accounts store.
func (db *DB) Accounts() accounts.Accounts { return &accountsStore{db} }

// Sites returns the sites store.
func (db *DB) Sites() accounts.Sites { return &sitesStore{db} }

// Batches returns the batches store.
func (db *DB) Batches() batches.DB { return &batchesStore{db} }

// UploadedFiles returns the uploaded files store.
func (db *DB) UploadedFiles() uploads.DB { return &filesStore{db} }

// ErrorLogs returns the error logs store.
func (db *DB) ErrorLogs() errorlogs.DB { return &logsStore{db} }

// Ping always succeeds.
func (db *DB) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (db *DB) Close() error { return nil }

// MigrateToLatest is a no-op.
func (db *DB) MigrateToLatest(ctx context.Context) error { return nil }

// Partitions returns the names of the ensured error log partitions.
func (db *DB) Partitions() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	names := make([]string, 0, len(db.partitions))
	for name := range db.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type accountsStore struct{ db *DB }

func (store *accountsStore) Insert(ctx context.Context, account *accounts.Account) (*accounts.Account, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	now := time.Now().UTC()
	row := *account
	row.CreatedAt, row.UpdatedAt = now, now
	store.db.accountRows[row.ID] = row
	copied := row
	return &copied, nil
}

func (store *accountsStore) Get(ctx context.Context, id uuid.UUID) (*accounts.Account, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	row, ok := store.db.accountRows[id]
	if !ok {
		return nil, accounts.ErrNotFound.New("account %s", id)
	}
	copied := row
	return &copied, nil
}

func (store *accountsStore) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	normalized := accounts.NormalizeEmail(email)
	for _, row := range store.db.accountRows {
		if row.Email == normalized {
			copied := row
			return &copied, nil
		}
	}
	return nil, accounts.ErrNotFound.New("account %s", email)
}

func (store *accountsStore) List(ctx context.Context, cursor accounts.Cursor) (*accounts.AccountsPage, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	rows := make([]accounts.Account, 0, len(store.db.accountRows))
	for _, row := range store.db.accountRows {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })

	limit, offset, current := pageBounds(cursor.Limit, cursor.Page)
	page := &accounts.AccountsPage{
		Limit:       limit,
		Offset:      offset,
		CurrentPage: current,
		TotalCount:  uint64(len(rows)),
		PageCount:   pageCount(uint64(len(rows)), limit),
		Accounts:    slicePage(rows, offset, limit),
	}
	return page, nil
}

func (store *accountsStore) Update(ctx context.Context, id uuid.UUID, request accounts.UpdateAccountRequest) error {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	row, ok := store.db.accountRows[id]
	if !ok {
		return accounts.ErrNotFound.New("account %s", id)
	}
	if request.Name != nil {
		row.Name = *request.Name
	}
	row.UpdatedAt = time.Now().UTC()
	store.db.accountRows[id] = row
	return nil
}

func (store *accountsStore) Deactivate(ctx context.Context, id uuid.UUID) (int64, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	row, ok := store.db.accountRows[id]
	if !ok {
		return 0, accounts.ErrNotFound.New("account %s", id)
	}
	row.Active = false
	row.UpdatedAt = time.Now().UTC()
	store.db.accountRows[id] = row

	var count int64
	for siteID, site := range store.db.siteRows {
		if site.AccountID == id && site.Active {
			site.Active = false
			site.UpdatedAt = time.Now().UTC()
			store.db.siteRows[siteID] = site
			count++
		}
	}
	return count, nil
}

type sitesStore struct{ db *DB }

func (store *sitesStore) Insert(ctx context.Context, site *accounts.Site) (*accounts.Site, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	for _, row := range store.db.siteRows {
		if row.Domain == site.Domain {
			return nil, accounts.ErrDomainTaken.New("%s", site.Domain)
		}
	}

	now := time.Now().UTC()
	row := *site
	row.CreatedAt, row.UpdatedAt = now, now
	store.db.siteRows[row.ID] = row
	copied := row
	return &copied, nil
}

func (store *sitesStore) Get(ctx context.Context, id uuid.UUID) (*accounts.Site, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	row, ok := store.db.siteRows[id]
	if !ok {
		return nil, accounts.ErrNotFound.New("site %s", id)
	}
	copied := row
	return &copied, nil
}

func (store *sitesStore) GetByDomain(ctx context.Context, domain string) (*accounts.Site, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	for _, row := range store.db.siteRows {
		if row.Domain == domain {
			copied := row
			return &copied, nil
		}
	}
	return nil, accounts.ErrNotFound.New("site %s", domain)
}

func (store *sitesStore) List(ctx context.Context, accountID *uuid.UUID, cursor accounts.Cursor) (*accounts.SitesPage, error) {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	rows := make([]accounts.Site, 0, len(store.db.siteRows))
	for _, row := range store.db.siteRows {
		if accountID != nil && row.AccountID != *accountID {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })

	limit, offset, current := pageBounds(cursor.Limit, cursor.Page)
	page := &accounts.SitesPage{
		Limit:       limit,
		Offset:      offset,
		CurrentPage: current,
		TotalCount:  uint64(len(rows)),
		PageCount:   pageCount(uint64(len(rows)), limit),
		Sites:       slicePage(rows, offset, limit),
	}
	return page, nil
}

func (store *sitesStore) Update(ctx context.Context, id uuid.UUID, request accounts.UpdateSiteRequest) error {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	row, ok := store.db.siteRows[id]
	if !ok {
		return accounts.ErrNotFound.New("site %s", id)
	}
	if request.DisplayName != nil {
		row.DisplayName = *request.DisplayName
	}
	row.UpdatedAt = time.Now().UTC()
	store.db.siteRows[id] = row
	return nil
}

func (store *sitesStore) UpdateSecret(ctx context.Context, id uuid.UUID, secret string) error {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	row, ok := store.db.siteRows[id]
	if !ok {
		return accounts.ErrNotFound.New("site %s", id)
	}
	row.ClientSecret = secret
	row.UpdatedAt = time.Now().UTC()
	store.db.siteRows[id] = row
	return nil
}

func (store *sitesStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	store.db.mu.Lock()
	defer store.db.mu.Unlock()

	row, ok := store.db.siteRows[id]
	if !ok {
		return accounts.ErrNotFound.New("site %s", id)
	}
	row.Active = false
	row.UpdatedAt = time.Now().UTC()
	store.db.siteRows[id] = row
	return nil
}

func pageBounds(limit, page uint) (uint, uint64, uint) {
	if limit == 0 || limit > 100 {
		limit = 50
	}
	if page == 0 {
		page = 1
	}
	return limit, uint64(limit) * uint64(page-1), page
}

func pageCount(total uint64, limit uint) uint {
	if total == 0 {
		return 0
	}
	return uint((total + uint64(limit) - 1) / uint64(limit))
}

func slicePage[T any](rows []T, offset uint64, limit uint) []T {
	if offset >= uint64(len(rows)) {
		return []T{}
	}
	end := offset + uint64(limit)
	if end > uint64(len(rows)) {
		end = uint64(len(rows))
	}
	return append([]T{}, rows[offset:end]...)
}
