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

// AccountService implements registration, lookups and password changes.
type AccountService struct {
	repo   ports.AccountRepository
	hasher ports.PasswordHasher
	roles  ports.RoleCache // optional
	logger zerolog.Logger
	now    func() time.Time
}

// NewAccountService wires the service. roles may be nil when no cache is configured.
func NewAccountService(repo ports.AccountRepository, hasher ports.PasswordHasher, roles ports.RoleCache, logger zerolog.Logger) *AccountService {
	return &AccountService{
		repo:   repo,
		hasher: hasher,
		roles:  roles,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a CLIENT account. Input format is validated by the caller.
func (s *AccountService) Register(ctx context.Context, input ports.RegisterInput) (*domain.Account, error) {
	return s.create(ctx, input.Username, input.Password, domain.DefaultRole)
}

func (s *AccountService) create(ctx context.Context, username, password string, role domain.Role) (*domain.Account, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		metrics.AccountsRegisteredTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}

	now := s.now()
	actor := domain.ActorFrom(ctx, username)
	account := &domain.Account{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		ModifiedAt:   now,
		CreatedBy:    actor,
		ModifiedBy:   actor,
	}

	created, err := s.repo.Insert(ctx, account)
	if err != nil {
		var uv *domain.UniqueViolationError
		if errors.As(err, &uv) && uv.Field == "username" {
			metrics.AccountsRegisteredTotal.WithLabelValues("conflict").Inc()
			return nil, domain.ErrUsernameConflict
		}
		metrics.AccountsRegisteredTotal.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error().Err(err).Msg("failed to insert account")
		return nil, err
	}

	metrics.AccountsRegisteredTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.logger.Info().Int64("account_id", created.ID).Str("role", created.Role.String()).Msg("account created")
	return created, nil
}

func (s *AccountService) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *AccountService) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return s.repo.FindByUsername(ctx, username)
}

func (s *AccountService) ListAll(ctx context.Context) ([]*domain.Account, error) {
	return s.repo.ListAll(ctx)
}

// ChangePassword applies the password change rules in a fixed order, stopping
// at the first violation:
//
//	current == new      → ErrPasswordUnchanged
//	new != confirm      → ErrPasswordMismatch
//	current is not valid → ErrWrongPassword
//
// The lookup, verification and write run inside repo.UpdateWith so concurrent
// changes to the same account never interleave.
func (s *AccountService) ChangePassword(ctx context.Context, input ports.ChangePasswordInput) (*domain.Account, error) {
	if input.CurrentPassword == input.NewPassword {
		metrics.PasswordChangesTotal.WithLabelValues("unchanged").Inc()
		return nil, domain.ErrPasswordUnchanged
	}
	if input.NewPassword != input.ConfirmPassword {
		metrics.PasswordChangesTotal.WithLabelValues("mismatch").Inc()
		return nil, domain.ErrPasswordMismatch
	}

	updated, err := s.repo.UpdateWith(ctx, input.ID, func(account *domain.Account) error {
		if !s.hasher.Verify(input.CurrentPassword, account.PasswordHash) {
			return domain.ErrWrongPassword
		}
		hash, err := s.hasher.Hash(input.NewPassword)
		if err != nil {
			return err
		}
		account.PasswordHash = hash
		account.ModifiedAt = s.now()
		account.ModifiedBy = domain.ActorFrom(ctx, account.Username)
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrWrongPassword):
			metrics.PasswordChangesTotal.WithLabelValues("wrong_password").Inc()
		case errors.Is(err, domain.ErrAccountNotFound):
			metrics.PasswordChangesTotal.WithLabelValues("not_found").Inc()
		default:
			metrics.PasswordChangesTotal.WithLabelValues(metrics.ResultError).Inc()
			s.logger.Error().Err(err).Int64("account_id", input.ID).Msg("failed to change password")
		}
		return nil, err
	}

	metrics.PasswordChangesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.logger.Info().Int64("account_id", updated.ID).Msg("password changed")
	return updated, nil
}

// ChangeRole assigns role to the account and writes the new role through to
// the cache. If the cache write fails the entry is dropped instead.
func (s *AccountService) ChangeRole(ctx context.Context, id int64, role domain.Role) (*domain.Account, error) {
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	updated, err := s.repo.UpdateWith(ctx, id, func(account *domain.Account) error {
		account.Role = role
		account.ModifiedAt = s.now()
		account.ModifiedBy = domain.ActorFrom(ctx, domain.SystemActor)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.roles != nil {
		if err := s.roles.Set(ctx, updated.Username, updated.Role); err != nil {
			s.logger.Warn().Err(err).Int64("account_id", id).Msg("role cache update failed")
			if err := s.roles.Invalidate(ctx, updated.Username); err != nil {
				s.logger.Warn().Err(err).Int64("account_id", id).Msg("role cache invalidation failed")
			}
		}
	}

	s.logger.Info().Int64("account_id", id).Str("role", role.String()).Msg("role changed")
	return updated, nil
}

// GetRoleByUsername reads through the role cache when one is configured.
// Cache failures are logged and the store is used instead. The fill never
// replaces an entry, so a role written by ChangeRole after the store read wins.
func (s *AccountService) GetRoleByUsername(ctx context.Context, username string) (domain.Role, error) {
	if s.roles != nil {
		role, ok, err := s.roles.Get(ctx, username)
		switch {
		case err != nil:
			metrics.RoleCacheLookupsTotal.WithLabelValues(metrics.ResultError).Inc()
			s.logger.Warn().Err(err).Msg("role cache lookup failed")
		case ok:
			metrics.RoleCacheLookupsTotal.WithLabelValues("hit").Inc()
			return role, nil
		default:
			metrics.RoleCacheLookupsTotal.WithLabelValues("miss").Inc()
		}
	}

	role, err := s.repo.FindRoleByUsername(ctx, username)
	if err != nil {
		return "", err
	}

	if s.roles != nil {
		if err := s.roles.SetIfAbsent(ctx, username, role); err != nil {
			s.logger.Warn().Err(err).Msg("role cache store failed")
		}
	}
	return role, nil
}
