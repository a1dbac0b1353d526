package service

import (
	"context"
	"errors"

	"github.com/demopark/accounts/internal/core/domain"
)

// BootstrapAdmin creates an ADMIN account for username when it does not exist yet.
// It is idempotent: an existing account with that username is left untouched.
func (s *AccountService) BootstrapAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	_, err := s.repo.FindByUsername(ctx, username)
	if err == nil {
		s.logger.Debug().Msg("bootstrap admin already present")
		return nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return err
	}

	created, err := s.create(domain.WithActor(ctx, domain.SystemActor), username, password, domain.RoleAdmin)
	if errors.Is(err, domain.ErrUsernameConflict) {
		// another instance won the race
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info().Int64("account_id", created.ID).Msg("bootstrap admin created")
	return nil
}
