package ports

import (
	"context"

	"github.com/demopark/accounts/internal/core/domain"
)

// RoleCache caches role lookups by username.
type RoleCache interface {
	// Get returns the cached role and true on a hit.
	Get(ctx context.Context, username string) (domain.Role, bool, error)
	Set(ctx context.Context, username string, role domain.Role) error
	// SetIfAbsent stores role only when no entry exists for username.
	SetIfAbsent(ctx context.Context, username string, role domain.Role) error
	Invalidate(ctx context.Context, username string) error
}
