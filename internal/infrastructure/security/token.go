package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/demopark/accounts/internal/core/domain"
)

// MinSecretLength is the shortest HMAC secret accepted by NewJWTIssuer.
const MinSecretLength = 32

var signingMethods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// JWTConfig configures token signing. Secret must never be logged.
type JWTConfig struct {
	Secret    []byte
	Algorithm string
	TTL       time.Duration
	Issuer    string
}

// JWTIssuer issues and verifies HMAC-signed JWTs carrying subject and role.
type JWTIssuer struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
	issuer string
}

type accountClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewJWTIssuer(cfg JWTConfig) (*JWTIssuer, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	method, ok := signingMethods[cfg.Algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", cfg.Algorithm)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("jwt ttl must be positive")
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &JWTIssuer{secret: secret, method: method, ttl: cfg.TTL, issuer: cfg.Issuer}, nil
}

// TTL returns the fixed token lifetime.
func (i *JWTIssuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for subject with issued-at now and expiry now+TTL.
func (i *JWTIssuer) Issue(subject string, role domain.Role, now time.Time) (*domain.AuthToken, error) {
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	// NumericDate has second precision; truncate so the returned times match the claims.
	issuedAt := now.UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)

	claims := accountClaims{
		Role: role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &domain.AuthToken{
		Value:     signed,
		Subject:   subject,
		Role:      role,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks the signature and expiry of token at instant now.
// Errors are one of domain.ErrTokenExpired, domain.ErrTokenInvalidSignature
// or domain.ErrTokenMalformed.
func (i *JWTIssuer) Verify(token string, now time.Time) (*domain.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		// jwt treats exp as exclusive; a token is still valid at exactly its expiry.
		jwt.WithLeeway(time.Nanosecond),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	var claims accountClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, mapTokenError(err)
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil || claims.Subject == "" || claims.IssuedAt == nil {
		return nil, domain.ErrTokenMalformed
	}

	return &domain.TokenClaims{
		Subject:   claims.Subject,
		Role:      role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return domain.ErrTokenInvalidSignature
	default:
		return domain.ErrTokenMalformed
	}
}
