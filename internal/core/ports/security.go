package ports

import (
	"time"

	"github.com/demopark/accounts/internal/core/domain"
)

// PasswordHasher hashes and checks credentials.
type PasswordHasher interface {
	// Hash returns a salted one-way digest; two calls never yield the same string.
	Hash(plaintext string) (string, error)
	// Verify reports whether plaintext matches hash. Malformed hashes never match.
	Verify(plaintext, hash string) bool
}

// TokenIssuer mints signed authentication tokens.
type TokenIssuer interface {
	Issue(subject string, role domain.Role, now time.Time) (*domain.AuthToken, error)
}

// TokenVerifier checks tokens produced by a TokenIssuer.
type TokenVerifier interface {
	Verify(token string, now time.Time) (*domain.TokenClaims, error)
}
