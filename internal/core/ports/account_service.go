package ports

import (
	"context"

	"github.com/demopark/accounts/internal/core/domain"
)

// RegisterInput carries an already validated registration request.
type RegisterInput struct {
	Username string
	Password string
}

// ChangePasswordInput carries a password change request for account ID.
type ChangePasswordInput struct {
	ID              int64
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// AccountService defines use-case operations on accounts.
type AccountService interface {
	Register(ctx context.Context, input RegisterInput) (*domain.Account, error)
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	ChangePassword(ctx context.Context, input ChangePasswordInput) (*domain.Account, error)
	ChangeRole(ctx context.Context, id int64, role domain.Role) (*domain.Account, error)
	ListAll(ctx context.Context) ([]*domain.Account, error)
	GetRoleByUsername(ctx context.Context, username string) (domain.Role, error)
}

// RoleLookup resolves the current role of a username.
type RoleLookup interface {
	GetRoleByUsername(ctx context.Context, username string) (domain.Role, error)
}
