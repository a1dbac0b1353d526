package ports

import (
	"context"
	"time"

	"github.com/demopark/accounts/internal/core/domain"
)

// AuthService checks credentials and issues tokens.
type AuthService interface {
	Authenticate(ctx context.Context, username, password string, now time.Time) (*domain.AuthToken, error)
}
