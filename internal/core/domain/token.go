package domain

import "time"

// AuthToken is a freshly minted, signed authentication token.
type AuthToken struct {
	Value     string
	Subject   string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TTL is the lifetime of the token.
func (t AuthToken) TTL() time.Duration {
	return t.ExpiresAt.Sub(t.IssuedAt)
}

// TokenClaims is the identity recovered from a verified token.
type TokenClaims struct {
	Subject   string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}
