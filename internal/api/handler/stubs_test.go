package handler

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/demopark/accounts/internal/api/middleware"
	"github.com/demopark/accounts/internal/core/domain"
	"github.com/demopark/accounts/internal/core/ports"
)

type stubAuthService struct {
	authenticateFn func(ctx context.Context, username, password string, now time.Time) (*domain.AuthToken, error)
}

func (s *stubAuthService) Authenticate(ctx context.Context, username, password string, now time.Time) (*domain.AuthToken, error) {
	return s.authenticateFn(ctx, username, password, now)
}

// stubAccountService implements ports.AccountService; unset funcs panic.
type stubAccountService struct {
	registerFn       func(ctx context.Context, input ports.RegisterInput) (*domain.Account, error)
	getByIDFn        func(ctx context.Context, id int64) (*domain.Account, error)
	getByUsernameFn  func(ctx context.Context, username string) (*domain.Account, error)
	changePasswordFn func(ctx context.Context, input ports.ChangePasswordInput) (*domain.Account, error)
	changeRoleFn     func(ctx context.Context, id int64, role domain.Role) (*domain.Account, error)
	listAllFn        func(ctx context.Context) ([]*domain.Account, error)
}

func (s *stubAccountService) Register(ctx context.Context, input ports.RegisterInput) (*domain.Account, error) {
	return s.registerFn(ctx, input)
}

func (s *stubAccountService) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	return s.getByIDFn(ctx, id)
}

func (s *stubAccountService) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return s.getByUsernameFn(ctx, username)
}

func (s *stubAccountService) ChangePassword(ctx context.Context, input ports.ChangePasswordInput) (*domain.Account, error) {
	return s.changePasswordFn(ctx, input)
}

func (s *stubAccountService) ChangeRole(ctx context.Context, id int64, role domain.Role) (*domain.Account, error) {
	return s.changeRoleFn(ctx, id, role)
}

func (s *stubAccountService) ListAll(ctx context.Context) ([]*domain.Account, error) {
	return s.listAllFn(ctx)
}

func (s *stubAccountService) GetRoleByUsername(ctx context.Context, username string) (domain.Role, error) {
	a, err := s.getByUsernameFn(ctx, username)
	if err != nil {
		return "", err
	}
	return a.Role, nil
}

// newContext builds an echo context with the validator installed. A non-empty
// username sets the principal the Auth middleware would have set.
func newContext(method, target, body, username string, role domain.Role) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if username != "" {
		c.Set(middleware.UsernameKey, username)
		c.Set(middleware.RoleKey, role)
	}
	return c, rec
}

func account(id int64, username string, role domain.Role) *domain.Account {
	return &domain.Account{ID: id, Username: username, PasswordHash: "secret-hash", Role: role}
}
