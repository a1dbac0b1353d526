package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/demopark/accounts/internal/core/domain"
	"github.com/demopark/accounts/internal/core/ports"
)

type authFixture struct {
	repo     *stubAccountRepo
	accounts *AccountService
	issuer   *stubIssuer
	auth     *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	repo := newStubAccountRepo()
	accounts := newTestAccountService(repo, newStubRoleCache())
	issuer := &stubIssuer{ttl: 2 * time.Hour}
	auth, err := NewAuthService(repo, &stubHasher{}, accounts, issuer, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return &authFixture{repo: repo, accounts: accounts, issuer: issuer, auth: auth}
}

func TestAuthService_Authenticate_Success(t *testing.T) {
	f := newAuthFixture(t)
	seedAccount(t, f.accounts, "real@x.com", "123456")

	tok, err := f.auth.Authenticate(context.Background(), "real@x.com", "123456", fixedNow)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if tok.Subject != "real@x.com" || tok.Role != domain.RoleClient {
		t.Fatalf("unexpected token: %+v", tok)
	}
	if !tok.IssuedAt.Equal(fixedNow) || tok.TTL() != 2*time.Hour {
		t.Fatalf("unexpected token times: %+v", tok)
	}
}

func TestAuthService_Authenticate_UsesBareRoleOfAdmin(t *testing.T) {
	f := newAuthFixture(t)
	a := seedAccount(t, f.accounts, "boss@x.com", "123456")
	if _, err := f.accounts.ChangeRole(context.Background(), a.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}

	tok, err := f.auth.Authenticate(context.Background(), "boss@x.com", "123456", fixedNow)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if tok.Role != domain.RoleAdmin || tok.Role.String() != "ADMIN" {
		t.Fatalf("expected bare ADMIN role, got %q", tok.Role)
	}
}

func TestAuthService_Authenticate_FailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	seedAccount(t, f.accounts, "real@x.com", "123456")

	_, errGhost := f.auth.Authenticate(context.Background(), "ghost@x.com", "whatever", fixedNow)
	_, errWrong := f.auth.Authenticate(context.Background(), "real@x.com", "wrongpass", fixedNow)

	if errGhost != domain.ErrAuthenticationFailed || errWrong != domain.ErrAuthenticationFailed {
		t.Fatalf("expected identical ErrAuthenticationFailed, got %v / %v", errGhost, errWrong)
	}
	if errGhost.Error() != errWrong.Error() {
		t.Fatalf("error messages differ: %q vs %q", errGhost, errWrong)
	}
	if len(f.issuer.issued) != 0 {
		t.Fatalf("no token may be issued on failure")
	}
}

func TestAuthService_Authenticate_AfterPasswordChange(t *testing.T) {
	f := newAuthFixture(t)
	a := seedAccount(t, f.accounts, "user@x.com", "123456")

	_, err := f.accounts.ChangePassword(context.Background(), ports.ChangePasswordInput{
		ID: a.ID, CurrentPassword: "123456", NewPassword: "1234567", ConfirmPassword: "1234567",
	})
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := f.auth.Authenticate(context.Background(), "user@x.com", "1234567", fixedNow); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if _, err := f.auth.Authenticate(context.Background(), "user@x.com", "123456", fixedNow); !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("login with old password should fail, got %v", err)
	}
}

func TestAuthService_Authenticate_IssuerError(t *testing.T) {
	f := newAuthFixture(t)
	seedAccount(t, f.accounts, "user@x.com", "123456")
	f.issuer.issueErr = errBoom

	if _, err := f.auth.Authenticate(context.Background(), "user@x.com", "123456", fixedNow); !errors.Is(err, errBoom) {
		t.Fatalf("expected issuer error, got %v", err)
	}
}

func TestNewAuthService_HasherError(t *testing.T) {
	_, err := NewAuthService(newStubAccountRepo(), &stubHasher{hashErr: errBoom}, nil, &stubIssuer{}, zerolog.Nop())
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected hasher error, got %v", err)
	}
}
