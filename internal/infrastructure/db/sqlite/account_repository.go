package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/demopark/accounts/internal/core/domain"
)

const selectAccount = `SELECT id, username, password, role, created_at, modified_at,
	COALESCE(created_by, ''), COALESCE(modified_by, '') FROM users`

// AccountRepository stores accounts in a SQLite users table. Timestamps are
// kept as unix milliseconds.
type AccountRepository struct {
	db *sql.DB
}

func (r *AccountRepository) Insert(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password, role, created_at, modified_at, created_by, modified_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Username, a.PasswordHash, a.Role.Stored(), a.CreatedAt.UnixMilli(), a.ModifiedAt.UnixMilli(), a.CreatedBy, a.ModifiedBy,
	)
	if err != nil {
		if uv, ok := uniqueViolation(err); ok {
			return nil, uv
		}
		return nil, oops.Code("ACCOUNT_INSERT_FAILED").Wrap(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, oops.Code("ACCOUNT_INSERT_FAILED").Wrap(err)
	}

	created := *a
	created.ID = id
	created.CreatedAt = fromMillis(a.CreatedAt.UnixMilli())
	created.ModifiedAt = fromMillis(a.ModifiedAt.UnixMilli())
	return &created, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, selectAccount+` WHERE id = ?`, id))
	if err != nil {
		return nil, mapFindError(err)
	}
	return a, nil
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, selectAccount+` WHERE username = ?`, username))
	if err != nil {
		return nil, mapFindError(err)
	}
	return a, nil
}

func (r *AccountRepository) FindRoleByUsername(ctx context.Context, username string) (domain.Role, error) {
	var stored string
	if err := r.db.QueryRowContext(ctx, `SELECT role FROM users WHERE username = ?`, username).Scan(&stored); err != nil {
		return "", mapFindError(err)
	}
	return domain.RoleFromStored(stored)
}

func (r *AccountRepository) ListAll(ctx context.Context) ([]*domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, selectAccount+` ORDER BY id`)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("ACCOUNT_LIST_FAILED").Wrap(err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").Wrap(err)
	}
	return accounts, nil
}

func (r *AccountRepository) Update(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	if err := execUpdate(ctx, r.db, a); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, a.ID)
}

// UpdateWith runs read, fn and write in one transaction. With a single
// connection the transaction also excludes every other caller.
func (r *AccountRepository) UpdateWith(ctx context.Context, id int64, fn func(*domain.Account) error) (*domain.Account, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, oops.Code("ACCOUNT_TX_FAILED").With("operation", "begin").Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAccount(tx.QueryRowContext(ctx, selectAccount+` WHERE id = ?`, id))
	if err != nil {
		return nil, mapFindError(err)
	}

	if err := fn(a); err != nil {
		return nil, err
	}

	if err := execUpdate(ctx, tx, a); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, oops.Code("ACCOUNT_TX_FAILED").With("operation", "commit").Wrap(err)
	}
	a.ModifiedAt = fromMillis(a.ModifiedAt.UnixMilli())
	return a, nil
}

func (r *AccountRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *AccountRepository) Close(context.Context) error {
	return r.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execUpdate(ctx context.Context, db execer, a *domain.Account) error {
	res, err := db.ExecContext(ctx,
		`UPDATE users SET password = ?, role = ?, modified_at = ?, modified_by = ? WHERE id = ?`,
		a.PasswordHash, a.Role.Stored(), a.ModifiedAt.UnixMilli(), a.ModifiedBy, a.ID,
	)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("account_id", a.ID).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("account_id", a.ID).Wrap(err)
	}
	if n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a          domain.Account
		stored     string
		createdAt  int64
		modifiedAt int64
	)
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &stored, &createdAt, &modifiedAt, &a.CreatedBy, &a.ModifiedBy); err != nil {
		return nil, err
	}
	role, err := domain.RoleFromStored(stored)
	if err != nil {
		return nil, err
	}
	a.Role = role
	a.CreatedAt = fromMillis(createdAt)
	a.ModifiedAt = fromMillis(modifiedAt)
	return &a, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func mapFindError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrAccountNotFound
	}
	return oops.Code("ACCOUNT_QUERY_FAILED").Wrap(err)
}

// uniqueViolation recognises SQLITE_CONSTRAINT_UNIQUE. username is the only
// unique column besides the primary key, which is never written explicitly.
func uniqueViolation(err error) (*domain.UniqueViolationError, bool) {
	var se *msqlite.Error
	if !errors.As(err, &se) || se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return nil, false
	}
	return &domain.UniqueViolationError{Field: "username", Err: err}, true
}
