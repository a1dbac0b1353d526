package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/demopark/accounts/internal/core/domain"
)

const (
	selectAccount = `SELECT id, username, password, role, created_at, modified_at,
		COALESCE(created_by, ''), COALESCE(modified_by, '') FROM users`

	insertAccount = `INSERT INTO users (username, password, role, created_at, modified_at, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	updateAccount = `UPDATE users SET password = $2, role = $3, modified_at = $4, modified_by = $5 WHERE id = $1`
)

// constraintFields maps unique constraint names to the logical field they guard.
var constraintFields = map[string]string{
	"users_username_key": "username",
	"users_pkey":         "id",
}

// AccountRepository stores accounts in the users table.
type AccountRepository struct {
	db dbIface
}

func NewAccountRepository(db dbIface) *AccountRepository {
	return &AccountRepository{db: db}
}

// Insert adds a new row and returns the account with its generated id.
func (r *AccountRepository) Insert(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	created := *a
	err := r.db.QueryRow(ctx, insertAccount,
		a.Username, a.PasswordHash, a.Role.Stored(), a.CreatedAt, a.ModifiedAt, a.CreatedBy, a.ModifiedBy,
	).Scan(&created.ID)
	if err != nil {
		if uv, ok := uniqueViolation(err); ok {
			return nil, uv
		}
		return nil, oops.Code("ACCOUNT_INSERT_FAILED").With("operation", "insert account").Wrap(err)
	}
	return &created, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE id = $1`, id))
	if err != nil {
		return nil, mapFindError(err, "find account by id")
	}
	return a, nil
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE username = $1`, username))
	if err != nil {
		return nil, mapFindError(err, "find account by username")
	}
	return a, nil
}

func (r *AccountRepository) FindRoleByUsername(ctx context.Context, username string) (domain.Role, error) {
	var stored string
	if err := r.db.QueryRow(ctx, `SELECT role FROM users WHERE username = $1`, username).Scan(&stored); err != nil {
		return "", mapFindError(err, "find role by username")
	}
	role, err := domain.RoleFromStored(stored)
	if err != nil {
		return "", oops.Code("ACCOUNT_ROLE_INVALID").Wrap(err)
	}
	return role, nil
}

// ListAll returns all accounts ordered by id.
func (r *AccountRepository) ListAll(ctx context.Context) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, selectAccount+` ORDER BY id`)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "list accounts").Wrap(err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "scan account").Wrap(err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "iterate accounts").Wrap(err)
	}
	return accounts, nil
}

// Update persists the mutable fields of a.
func (r *AccountRepository) Update(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	if err := execUpdate(ctx, r.db, a); err != nil {
		return nil, err
	}
	updated := *a
	return &updated, nil
}

// UpdateWith locks the row with SELECT ... FOR UPDATE, applies fn and writes
// the result in the same transaction.
func (r *AccountRepository) UpdateWith(ctx context.Context, id int64, fn func(*domain.Account) error) (*domain.Account, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, oops.Code("ACCOUNT_TX_FAILED").With("operation", "begin").Wrap(err)
	}

	a, err := scanAccount(tx.QueryRow(ctx, selectAccount+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, mapFindError(err, "lock account")
	}

	if err := fn(a); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	if err := execUpdate(ctx, tx, a); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, oops.Code("ACCOUNT_TX_FAILED").With("operation", "commit").Wrap(err)
	}
	return a, nil
}

func (r *AccountRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *AccountRepository) Close(context.Context) error {
	r.db.Close()
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func execUpdate(ctx context.Context, db execer, a *domain.Account) error {
	tag, err := db.Exec(ctx, updateAccount, a.ID, a.PasswordHash, a.Role.Stored(), a.ModifiedAt, a.ModifiedBy)
	if err != nil {
		if uv, ok := uniqueViolation(err); ok {
			return uv
		}
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "update account").With("account_id", a.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a          domain.Account
		stored     string
		createdAt  time.Time
		modifiedAt time.Time
	)
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &stored, &createdAt, &modifiedAt, &a.CreatedBy, &a.ModifiedBy); err != nil {
		return nil, err
	}
	role, err := domain.RoleFromStored(stored)
	if err != nil {
		return nil, err
	}
	a.Role = role
	a.CreatedAt = createdAt.UTC()
	a.ModifiedAt = modifiedAt.UTC()
	return &a, nil
}

func mapFindError(err error, operation string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrAccountNotFound
	}
	return oops.Code("ACCOUNT_QUERY_FAILED").With("operation", operation).Wrap(err)
}

// uniqueViolation converts a PostgreSQL unique_violation into the typed store error.
func uniqueViolation(err error) (*domain.UniqueViolationError, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil, false
	}
	field, ok := constraintFields[pgErr.ConstraintName]
	if !ok {
		field = pgErr.ConstraintName
	}
	return &domain.UniqueViolationError{Field: field, Err: err}, true
}
