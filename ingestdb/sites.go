// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestdb

import (
	"context"

	"github.com/jackc/pgx/v5"

	"storj.io/common/uuid"
	"storj.io/ingest/accounts"
)

// sitesDB implements accounts.Sites on postgres.
type sitesDB struct {
	db *DB
}

const siteColumns = `id, account_id, domain, client_secret, display_name, active, created_at, updated_at`

func scanSite(row pgx.Row) (*accounts.Site, error) {
	var site accounts.Site
	err := row.Scan(&site.ID, &site.AccountID, &site.Domain, &site.ClientSecret,
		&site.DisplayName, &site.Active, &site.CreatedAt, &site.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, accounts.ErrNotFound.New("site")
		}
		return nil, Error.Wrap(err)
	}
	return &site, nil
}

func (store *sitesDB) Insert(ctx context.Context, site *accounts.Site) (_ *accounts.Site, err error) {
	defer mon.Task()(&ctx)(&err)

	row := store.db.pool.QueryRow(ctx, `
		INSERT INTO sites ( id, account_id, domain, client_secret, display_name, active )
		VALUES ( $1, $2, $3, $4, $5, $6 )
		RETURNING `+siteColumns,
		site.ID, site.AccountID, site.Domain, site.ClientSecret, site.DisplayName, site.Active)

	created, err := scanSite(row)
	if constraintViolated(err, "sites_domain_key") {
		return nil, accounts.ErrDomainTaken.New("%s", site.Domain)
	}
	return created, err
}

func (store *sitesDB) Get(ctx context.Context, id uuid.UUID) (_ *accounts.Site, err error) {
	defer mon.Task()(&ctx)(&err)

	return scanSite(store.db.pool.QueryRow(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE id = $1`, id))
}

func (store *sitesDB) GetByDomain(ctx context.Context, domain string) (_ *accounts.Site, err error) {
	defer mon.Task()(&ctx)(&err)

	return scanSite(store.db.pool.QueryRow(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE domain = $1`, domain))
}

func (store *sitesDB) List(ctx context.Context, accountID *uuid.UUID, cursor accounts.Cursor) (page *accounts.SitesPage, err error) {
	defer mon.Task()(&ctx)(&err)

	limit, offset, currentPage := pageBounds(cursor.Limit, cursor.Page)

	filter, countFilter := ``, ``
	args := []interface{}{limit, offset}
	countArgs := []interface{}{}
	if accountID != nil {
		filter, countFilter = `WHERE account_id = $3`, `WHERE account_id = $1`
		args = append(args, *accountID)
		countArgs = append(countArgs, *accountID)
	}

	var total uint64
	if err := store.db.pool.QueryRow(ctx, `SELECT count(*) FROM sites `+countFilter, countArgs...).Scan(&total); err != nil {
		return nil, Error.Wrap(err)
	}

	rows, err := store.db.pool.Query(ctx, `
		SELECT `+siteColumns+` FROM sites `+filter+`
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	page = &accounts.SitesPage{
		Sites:       []accounts.Site{},
		Limit:       limit,
		Offset:      offset,
		PageCount:   pageCount(total, limit),
		CurrentPage: currentPage,
		TotalCount:  total,
	}
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		page.Sites = append(page.Sites, *site)
	}
	return page, Error.Wrap(rows.Err())
}

func (store *sitesDB) Update(ctx context.Context, id uuid.UUID, request accounts.UpdateSiteRequest) (err error) {
	defer mon.Task()(&ctx)(&err)

	if request.DisplayName == nil {
		return nil
	}
	tag, err := store.db.pool.Exec(ctx, `
		UPDATE sites SET display_name = $2, updated_at = now() WHERE id = $1`,
		id, *request.DisplayName)
	if err != nil {
		return Error.Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return accounts.ErrNotFound.New("site")
	}
	return nil
}

func (store *sitesDB) UpdateSecret(ctx context.Context, id uuid.UUID, secret string) (err error) {
	defer mon.Task()(&ctx)(&err)

	tag, err := store.db.pool.Exec(ctx, `
		UPDATE sites SET client_secret = $2, updated_at = now() WHERE id = $1`,
		id, secret)
	if err != nil {
		return Error.Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return accounts.ErrNotFound.New("site")
	}
	return nil
}

func (store *sitesDB) Deactivate(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	tag, err := store.db.pool.Exec(ctx, `
		UPDATE sites SET active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return Error.Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return accounts.ErrNotFound.New("site")
	}
	return nil
}
