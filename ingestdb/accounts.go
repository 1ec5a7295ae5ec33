// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestdb

import (
	"context"

	"github.com/jackc/pgx/v5"

	"storj.io/common/uuid"
	"storj.io/ingest/accounts"
)

// accountsDB implements accounts.Accounts on postgres.
type accountsDB struct {
	db *DB
}

const accountColumns = `id, email, name, active, created_at, updated_at`

func scanAccount(row pgx.Row) (*accounts.Account, error) {
	var account accounts.Account
	err := row.Scan(&account.ID, &account.Email, &account.Name,
		&account.Active, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, accounts.ErrNotFound.New("account")
		}
		return nil, Error.Wrap(err)
	}
	return &account, nil
}

func (store *accountsDB) Insert(ctx context.Context, account *accounts.Account) (_ *accounts.Account, err error) {
	defer mon.Task()(&ctx)(&err)

	row := store.db.pool.QueryRow(ctx, `
		INSERT INTO accounts ( id, email, name, active )
		VALUES ( $1, $2, $3, $4 )
		RETURNING `+accountColumns,
		account.ID, account.Email, account.Name, account.Active)

	created, err := scanAccount(row)
	if constraintViolated(err, "accounts_email_key") {
		return nil, accounts.ErrEmailTaken.New("%s", account.Email)
	}
	return created, err
}

func (store *accountsDB) Get(ctx context.Context, id uuid.UUID) (_ *accounts.Account, err error) {
	defer mon.Task()(&ctx)(&err)

	return scanAccount(store.db.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (store *accountsDB) GetByEmail(ctx context.Context, email string) (_ *accounts.Account, err error) {
	defer mon.Task()(&ctx)(&err)

	return scanAccount(store.db.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email))
}

func (store *accountsDB) List(ctx context.Context, cursor accounts.Cursor) (page *accounts.AccountsPage, err error) {
	defer mon.Task()(&ctx)(&err)

	limit, offset, currentPage := pageBounds(cursor.Limit, cursor.Page)

	var total uint64
	if err := store.db.pool.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&total); err != nil {
		return nil, Error.Wrap(err)
	}

	rows, err := store.db.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	page = &accounts.AccountsPage{
		Accounts:    []accounts.Account{},
		Limit:       limit,
		Offset:      offset,
		PageCount:   pageCount(total, limit),
		CurrentPage: currentPage,
		TotalCount:  total,
	}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		page.Accounts = append(page.Accounts, *account)
	}
	return page, Error.Wrap(rows.Err())
}

func (store *accountsDB) Update(ctx context.Context, id uuid.UUID, request accounts.UpdateAccountRequest) (err error) {
	defer mon.Task()(&ctx)(&err)

	if request.Name == nil {
		return nil
	}
	tag, err := store.db.pool.Exec(ctx, `
		UPDATE accounts SET name = $2, updated_at = now() WHERE id = $1`,
		id, *request.Name)
	if err != nil {
		return Error.Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return accounts.ErrNotFound.New("account")
	}
	return nil
}

func (store *accountsDB) Deactivate(ctx context.Context, id uuid.UUID) (sites int64, err error) {
	defer mon.Task()(&ctx)(&err)

	err = store.db.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE accounts SET active = false, updated_at = now()
			WHERE id = $1`, id)
		if err != nil {
			return Error.Wrap(err)
		}
		if tag.RowsAffected() == 0 {
			return accounts.ErrNotFound.New("account")
		}

		cascaded, err := tx.Exec(ctx, `
			UPDATE sites SET active = false, updated_at = now()
			WHERE account_id = $1 AND active`, id)
		if err != nil {
			return Error.Wrap(err)
		}
		sites = cascaded.RowsAffected()
		return nil
	})
	return sites, err
}
