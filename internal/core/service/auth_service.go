package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/demopark/accounts/internal/infrastructure/metrics"
	"github.com/demopark/accounts/internal/core/domain"
	"github.com/demopark/accounts/internal/core/ports"
)

// dummyPassword is hashed once at construction so that logins for unknown
// usernames pay the same hashing cost as logins with a wrong password.
const dummyPassword = "dummy-password-for-timing"

// AuthService implements the login flow: credential check, then token issuance.
type AuthService struct {
	repo      ports.AccountRepository
	hasher    ports.PasswordHasher
	roles     ports.RoleLookup
	issuer    ports.TokenIssuer
	logger    zerolog.Logger
	dummyHash string
}

func NewAuthService(repo ports.AccountRepository, hasher ports.PasswordHasher, roles ports.RoleLookup, issuer ports.TokenIssuer, logger zerolog.Logger) (*AuthService, error) {
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		repo:      repo,
		hasher:    hasher,
		roles:     roles,
		issuer:    issuer,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// Authenticate returns a token for valid credentials. Unknown usernames and
// wrong passwords both yield domain.ErrAuthenticationFailed.
func (s *AuthService) Authenticate(ctx context.Context, username, password string, now time.Time) (*domain.AuthToken, error) {
	start := time.Now()
	defer func() { metrics.AuthDuration.Observe(time.Since(start).Seconds()) }()

	account, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, domain.ErrAccountNotFound) {
			metrics.AuthAttemptsTotal.WithLabelValues(metrics.ResultError).Inc()
			return nil, err
		}
		s.hasher.Verify(password, s.dummyHash)
		return nil, s.reject()
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		return nil, s.reject()
	}

	role, err := s.roles.GetRoleByUsername(ctx, account.Username)
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}

	token, err := s.issuer.Issue(account.Username, role, now)
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error().Err(err).Msg("failed to issue token")
		return nil, err
	}

	metrics.AuthAttemptsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.logger.Debug().Int64("account_id", account.ID).Str("role", role.String()).Msg("token issued")
	return token, nil
}

func (s *AuthService) reject() error {
	metrics.AuthAttemptsTotal.WithLabelValues(metrics.ResultFailure).Inc()
	s.logger.Warn().Msg("authentication failed")
	return domain.ErrAuthenticationFailed
}
