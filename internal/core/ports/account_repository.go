package ports

import (
	"context"

	"github.com/demopark/accounts/internal/core/domain"
)

// AccountRepository persists accounts. Implementations return
// domain.ErrAccountNotFound for missing rows and *domain.UniqueViolationError
// when the username is already taken.
type AccountRepository interface {
	Insert(ctx context.Context, account *domain.Account) (*domain.Account, error)
	FindByID(ctx context.Context, id int64) (*domain.Account, error)
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)
	FindRoleByUsername(ctx context.Context, username string) (domain.Role, error)
	// ListAll returns every account ordered by id.
	ListAll(ctx context.Context) ([]*domain.Account, error)
	Update(ctx context.Context, account *domain.Account) (*domain.Account, error)

	// UpdateWith loads the account, lets fn mutate it and persists the result
	// as a single unit of work with respect to other writers of the same account.
	// An error returned by fn aborts the write and is returned unchanged.
	UpdateWith(ctx context.Context, id int64, fn func(account *domain.Account) error) (*domain.Account, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
